package builder

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/searchstack/textsearchd/internal/docstore"
	"github.com/searchstack/textsearchd/internal/index"
	"github.com/searchstack/textsearchd/internal/scanner"
	"github.com/searchstack/textsearchd/internal/tokenizer"
)

func newBuilder() (*Builder, *index.Index, *docstore.Store) {
	ix := index.New(index.DefaultShardCount)
	store := docstore.New()
	tok := tokenizer.New(tokenizer.DefaultConfig())
	sc := scanner.New(scanner.DefaultConfig())
	return New(ix, store, tok, sc), ix, store
}

func writeDataset(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestFullBuild(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, root, map[string]string{
		"a.txt": "alpha beta beta",
		"b.txt": "beta gamma",
		"c.md":  "ignored entirely",
	})

	b, ix, store := newBuilder()
	res, err := b.BuildFromDirectory(root, 4)
	if err != nil {
		t.Fatal(err)
	}
	if res.Scanned != 2 || res.Indexed != 2 || res.Skipped != 0 || res.Errors != 0 {
		t.Errorf("result = %+v", res)
	}

	got := ix.Search([]string{"beta"}, 0)
	if len(got) != 2 {
		t.Fatalf("beta matched %d docs, want 2", len(got))
	}
	idA, _ := store.DocIDFor(filepath.Join(root, "a.txt"))
	if got[0].DocID != idA || got[0].Score != 2 {
		t.Errorf("top hit = %+v, want doc a with score 2", got[0])
	}
}

func TestIncrementalSkipsUnchanged(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, root, map[string]string{
		"a.txt": "alpha",
		"b.txt": "beta",
	})

	b, _, _ := newBuilder()
	if _, err := b.BuildFromDirectory(root, 2); err != nil {
		t.Fatal(err)
	}

	res, err := b.UpdateFromDirectory(root, 2)
	if err != nil {
		t.Fatal(err)
	}
	if res.Scanned != 2 || res.Indexed != 0 || res.Skipped != 2 {
		t.Errorf("unchanged incremental = %+v", res)
	}
}

func TestIncrementalReindexesModified(t *testing.T) {
	root := t.TempDir()
	aPath := filepath.Join(root, "a.txt")
	writeDataset(t, root, map[string]string{
		"a.txt": "alpha",
		"b.txt": "beta",
	})

	b, ix, _ := newBuilder()
	if _, err := b.BuildFromDirectory(root, 2); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(aPath, []byte("delta delta"), 0o644); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(aPath, future, future); err != nil {
		t.Fatal(err)
	}

	res, err := b.UpdateFromDirectory(root, 2)
	if err != nil {
		t.Fatal(err)
	}
	if res.Indexed != 1 || res.Skipped != 1 {
		t.Errorf("modified incremental = %+v", res)
	}
	if got := ix.Search([]string{"alpha"}, 0); len(got) != 0 {
		t.Errorf("stale term alpha still matches: %v", got)
	}
	if got := ix.Search([]string{"delta"}, 0); len(got) != 1 || got[0].Score != 2 {
		t.Errorf("delta results = %v", got)
	}
}

func TestIncrementalPicksUpNewFiles(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, root, map[string]string{"a.txt": "alpha"})

	b, ix, _ := newBuilder()
	if _, err := b.BuildFromDirectory(root, 1); err != nil {
		t.Fatal(err)
	}

	writeDataset(t, root, map[string]string{"new.txt": "omega"})
	res, err := b.UpdateFromDirectory(root, 1)
	if err != nil {
		t.Fatal(err)
	}
	if res.Indexed != 1 || res.Skipped != 1 {
		t.Errorf("new-file incremental = %+v", res)
	}
	if got := ix.Search([]string{"omega"}, 0); len(got) != 1 {
		t.Errorf("omega missing: %v", got)
	}
}

func TestMissingRootYieldsEmptyResult(t *testing.T) {
	b, _, _ := newBuilder()
	res, err := b.BuildFromDirectory(filepath.Join(t.TempDir(), "nope"), 2)
	if err != nil {
		t.Fatal(err)
	}
	if res.Scanned != 0 || res.Indexed != 0 || res.Errors != 0 {
		t.Errorf("missing root = %+v", res)
	}
}

func TestUnreadableFileCountsError(t *testing.T) {
	b, _, _ := newBuilder()
	files := []scanner.FileInfo{
		{Path: filepath.Join(t.TempDir(), "ghost.txt"), Mtime: time.Now(), Size: 10},
	}
	res := b.IndexFiles(files, 2, false)
	if res.Scanned != 1 || res.Errors != 1 || res.Indexed != 0 {
		t.Errorf("unreadable file = %+v", res)
	}
}

func TestDeterministicAcrossWorkerCounts(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, root, map[string]string{
		"1.txt":     "the quick brown fox",
		"2.txt":     "jumps over the lazy dog",
		"3.txt":     "the the the fox fox",
		"sub/4.txt": "quick quick lazy",
		"sub/5.txt": "dog fox jumps",
	})

	b1, ix1, st1 := newBuilder()
	if _, err := b1.BuildFromDirectory(root, 1); err != nil {
		t.Fatal(err)
	}
	b4, ix4, st4 := newBuilder()
	if _, err := b4.BuildFromDirectory(root, 4); err != nil {
		t.Fatal(err)
	}

	fp1 := ix1.Fingerprint(st1.PathFor)
	fp4 := ix4.Fingerprint(st4.PathFor)
	if fp1 != fp4 {
		t.Errorf("fingerprints differ across worker counts:\n  w1=%s\n  w4=%s", fp1, fp4)
	}
}
