// Package builder drives index construction: it scans a dataset directory,
// fans file-indexing tasks out to a worker pool, and aggregates counters into
// a BuildResult. Incremental passes skip files whose mtime has not advanced
// since the last successful indexing.
package builder

import (
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/searchstack/textsearchd/internal/docstore"
	"github.com/searchstack/textsearchd/internal/index"
	"github.com/searchstack/textsearchd/internal/scanner"
	"github.com/searchstack/textsearchd/internal/tokenizer"
	"github.com/searchstack/textsearchd/internal/workerpool"
)

// BuildResult aggregates the outcome of one build pass.
type BuildResult struct {
	Scanned   int64 `json:"scanned_files"`
	Indexed   int64 `json:"indexed_files"`
	Skipped   int64 `json:"skipped_files"`
	Errors    int64 `json:"errors"`
	ElapsedMS int64 `json:"elapsed_ms"`
}

// Builder owns the scan -> tokenize -> upsert pipeline.
type Builder struct {
	index   *index.Index
	store   *docstore.Store
	tok     *tokenizer.Tokenizer
	scanner *scanner.Scanner
	logger  *slog.Logger
}

// New wires a Builder over its collaborators.
func New(ix *index.Index, store *docstore.Store, tok *tokenizer.Tokenizer, sc *scanner.Scanner) *Builder {
	return &Builder{
		index:   ix,
		store:   store,
		tok:     tok,
		scanner: sc,
		logger:  slog.Default().With("component", "builder"),
	}
}

// BuildFromDirectory indexes every file under root unconditionally.
func (b *Builder) BuildFromDirectory(root string, workers int) (BuildResult, error) {
	return b.buildDir(root, workers, false)
}

// UpdateFromDirectory indexes only files that are new or whose mtime is
// strictly newer than the catalogued mtime.
func (b *Builder) UpdateFromDirectory(root string, workers int) (BuildResult, error) {
	return b.buildDir(root, workers, true)
}

func (b *Builder) buildDir(root string, workers int, incremental bool) (BuildResult, error) {
	files, err := b.scanner.Scan(root)
	if err != nil {
		return BuildResult{}, err
	}
	res := b.IndexFiles(files, workers, incremental)

	mode := "full"
	if incremental {
		mode = "incremental"
	}
	b.logger.Info("build finished",
		"mode", mode,
		"dataset", root,
		"workers", workers,
		"scanned", res.Scanned,
		"indexed", res.Indexed,
		"skipped", res.Skipped,
		"errors", res.Errors,
		"elapsed_ms", res.ElapsedMS,
	)
	return res, nil
}

// IndexFiles runs one indexing pass over the given files using a dedicated
// worker pool. Counter updates are atomic; the result is read only after
// every task future has resolved.
func (b *Builder) IndexFiles(files []scanner.FileInfo, workers int, incremental bool) BuildResult {
	var scanned, indexed, skipped, errCount int64
	start := time.Now()

	pool := workerpool.New(workers)
	futures := make([]*workerpool.Future, 0, len(files))

	for _, fi := range files {
		fi := fi
		atomic.AddInt64(&scanned, 1)

		if incremental && !b.store.NeedsIndexing(fi.Path, fi.Mtime) {
			atomic.AddInt64(&skipped, 1)
			continue
		}

		fut, err := pool.Submit(func() error {
			if err := b.indexFile(fi); err != nil {
				b.logger.Warn("failed to index file", "path", fi.Path, "error", err)
				atomic.AddInt64(&errCount, 1)
				return nil
			}
			atomic.AddInt64(&indexed, 1)
			return nil
		})
		if err != nil {
			atomic.AddInt64(&errCount, 1)
			continue
		}
		futures = append(futures, fut)
	}

	for _, fut := range futures {
		if err := fut.Wait(); err != nil {
			atomic.AddInt64(&errCount, 1)
		}
	}
	pool.Shutdown()

	return BuildResult{
		Scanned:   atomic.LoadInt64(&scanned),
		Indexed:   atomic.LoadInt64(&indexed),
		Skipped:   atomic.LoadInt64(&skipped),
		Errors:    atomic.LoadInt64(&errCount),
		ElapsedMS: time.Since(start).Milliseconds(),
	}
}

func (b *Builder) indexFile(fi scanner.FileInfo) error {
	data, err := os.ReadFile(fi.Path)
	if err != nil {
		return err
	}
	docID, _ := b.store.GetOrCreate(fi.Path, fi.Mtime)
	tokens := b.tok.Tokenize(data)
	tf := tokenizer.TermFrequencies(tokens)
	b.index.UpsertDocument(docID, tf)
	b.store.UpdateMtime(fi.Path, fi.Mtime)
	return nil
}
