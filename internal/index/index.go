// Package index implements the concurrent sharded inverted index at the heart
// of the search service. Terms are partitioned across a fixed number of
// shards, each guarded by its own reader/writer lock, so that concurrent
// builder workers contend on different shards rather than one global lock.
// A forward index (doc id -> term/freq list) under a separate lock is the
// source of truth for cleanly replacing a document's postings on upsert.
//
// Lock ordering: a shard lock is never held while acquiring another shard
// lock or the forward lock. The forward lock may be taken before shard locks
// but never while one is held.
package index

import (
	"hash/fnv"
	"sort"
	"sync"
)

// DefaultShardCount is the shard count used by the service when the
// configuration does not override it.
const DefaultShardCount = 64

type shard struct {
	mu    sync.RWMutex
	terms map[string][]Posting
}

// Index is a sharded term -> postings map with a forward-index companion.
// Concurrent upserts for distinct doc ids are safe; callers must not issue
// two concurrent upserts for the same doc id.
type Index struct {
	shards []shard

	forwardMu sync.RWMutex
	forward   map[int32][]TermFreq
}

// New creates an Index with the given shard count (minimum 1).
func New(shardCount int) *Index {
	if shardCount < 1 {
		shardCount = 1
	}
	ix := &Index{
		shards:  make([]shard, shardCount),
		forward: make(map[int32][]TermFreq),
	}
	for i := range ix.shards {
		ix.shards[i].terms = make(map[string][]Posting)
	}
	return ix
}

// ShardCount returns the number of shards.
func (ix *Index) ShardCount() int {
	return len(ix.shards)
}

func (ix *Index) shardFor(term string) *shard {
	h := fnv.New32a()
	h.Write([]byte(term))
	return &ix.shards[int(h.Sum32()%uint32(len(ix.shards)))]
}

// forwardCopy returns a copy of the forward entry for docID so that shard
// locks are never acquired while the forward lock is held.
func (ix *Index) forwardCopy(docID int32) []TermFreq {
	ix.forwardMu.RLock()
	defer ix.forwardMu.RUnlock()
	entry, ok := ix.forward[docID]
	if !ok {
		return nil
	}
	out := make([]TermFreq, len(entry))
	copy(out, entry)
	return out
}

// removePostings deletes every posting for docID under the given terms,
// grouping terms by shard so each shard write lock is taken once. Terms whose
// posting list becomes empty are deleted.
func (ix *Index) removePostings(docID int32, terms []TermFreq) {
	if len(terms) == 0 {
		return
	}
	byShard := make(map[*shard][]string, len(terms))
	for _, tf := range terms {
		sh := ix.shardFor(tf.Term)
		byShard[sh] = append(byShard[sh], tf.Term)
	}

	for sh, termList := range byShard {
		sh.mu.Lock()
		for _, term := range termList {
			postings, ok := sh.terms[term]
			if !ok {
				continue
			}
			kept := postings[:0]
			for _, p := range postings {
				if p.DocID != docID {
					kept = append(kept, p)
				}
			}
			if len(kept) == 0 {
				delete(sh.terms, term)
			} else {
				sh.terms[term] = kept
			}
		}
		sh.mu.Unlock()
	}
}

// UpsertDocument replaces all postings for docID with the supplied term
// frequencies. Entries with freq <= 0 are dropped. A concurrent reader may
// observe the document partially applied between the removal and insertion
// phases; at quiescence the forward and inverted maps agree exactly.
func (ix *Index) UpsertDocument(docID int32, termFreq map[string]int) {
	old := ix.forwardCopy(docID)
	ix.removePostings(docID, old)

	fresh := make([]TermFreq, 0, len(termFreq))
	for term, freq := range termFreq {
		if freq <= 0 || term == "" {
			continue
		}
		fresh = append(fresh, TermFreq{Term: term, Freq: int32(freq)})
	}

	ix.forwardMu.Lock()
	if len(fresh) == 0 {
		delete(ix.forward, docID)
	} else {
		ix.forward[docID] = fresh
	}
	ix.forwardMu.Unlock()

	if len(fresh) == 0 {
		return
	}

	byShard := make(map[*shard][]TermFreq, len(fresh))
	for _, tf := range fresh {
		sh := ix.shardFor(tf.Term)
		byShard[sh] = append(byShard[sh], tf)
	}
	for sh, updates := range byShard {
		sh.mu.Lock()
		for _, tf := range updates {
			sh.terms[tf.Term] = append(sh.terms[tf.Term], Posting{DocID: docID, Freq: tf.Freq})
		}
		sh.mu.Unlock()
	}
}

// RemoveDocument deletes every posting referencing docID and its forward
// entry. No-op if the document is absent.
func (ix *Index) RemoveDocument(docID int32) {
	old := ix.forwardCopy(docID)
	ix.removePostings(docID, old)

	ix.forwardMu.Lock()
	delete(ix.forward, docID)
	ix.forwardMu.Unlock()
}

// Search scores documents by summing posting frequencies across the query
// terms. Duplicate query terms accumulate additively. Results are ordered by
// score descending, then doc id ascending; topK == 0 means no limit.
func (ix *Index) Search(queryTerms []string, topK int) []SearchResult {
	scores := make(map[int32]float64, 256)

	for _, term := range queryTerms {
		if term == "" {
			continue
		}
		sh := ix.shardFor(term)
		sh.mu.RLock()
		for _, p := range sh.terms[term] {
			scores[p.DocID] += float64(p.Freq)
		}
		sh.mu.RUnlock()
	}

	results := make([]SearchResult, 0, len(scores))
	for docID, score := range scores {
		results = append(results, SearchResult{DocID: docID, Score: score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocID < results[j].DocID
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}

// Snapshot returns a deep copy of every term's posting list, ordered by term.
// Shard read locks are taken one at a time, so the snapshot is not globally
// consistent across shards while writers are active.
func (ix *Index) Snapshot() []TermPostings {
	var out []TermPostings
	for i := range ix.shards {
		sh := &ix.shards[i]
		sh.mu.RLock()
		for term, postings := range sh.terms {
			cp := make([]Posting, len(postings))
			copy(cp, postings)
			sort.Slice(cp, func(a, b int) bool { return cp[a].DocID < cp[b].DocID })
			out = append(out, TermPostings{Term: term, Postings: cp})
		}
		sh.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Term < out[j].Term })
	return out
}

// ForwardEntry returns a copy of the forward-index record for docID.
func (ix *Index) ForwardEntry(docID int32) ([]TermFreq, bool) {
	ix.forwardMu.RLock()
	defer ix.forwardMu.RUnlock()
	entry, ok := ix.forward[docID]
	if !ok {
		return nil, false
	}
	out := make([]TermFreq, len(entry))
	copy(out, entry)
	return out, true
}

// Stats counts documents from the forward map and terms/postings shard by
// shard. Like Snapshot, the result is not linearizable across shards.
func (ix *Index) Stats() Stats {
	var st Stats

	ix.forwardMu.RLock()
	st.Documents = len(ix.forward)
	ix.forwardMu.RUnlock()

	for i := range ix.shards {
		sh := &ix.shards[i]
		sh.mu.RLock()
		st.Terms += len(sh.terms)
		for _, postings := range sh.terms {
			st.Postings += len(postings)
		}
		sh.mu.RUnlock()
	}
	return st
}
