package index

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// Fingerprint computes a SHA-256 digest over the index contents with doc ids
// resolved to paths via pathFor, so two indexes built from the same corpus
// with different worker counts or id assignment orders hash identically.
// Postings whose doc id cannot be resolved are skipped.
func (ix *Index) Fingerprint(pathFor func(int32) (string, bool)) string {
	snapshot := ix.Snapshot()

	h := sha256.New()
	for _, tp := range snapshot {
		type pathFreq struct {
			path string
			freq int32
		}
		entries := make([]pathFreq, 0, len(tp.Postings))
		for _, p := range tp.Postings {
			path, ok := pathFor(p.DocID)
			if !ok {
				continue
			}
			entries = append(entries, pathFreq{path: path, freq: p.Freq})
		}
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].path != entries[j].path {
				return entries[i].path < entries[j].path
			}
			return entries[i].freq < entries[j].freq
		})
		for _, e := range entries {
			fmt.Fprintf(h, "%s\x00%s\x00%d\n", tp.Term, e.path, e.freq)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
