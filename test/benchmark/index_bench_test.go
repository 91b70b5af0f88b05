// Package benchmark contains Go benchmarks for the inverted index, tokenizer,
// and search pipeline, measuring throughput and allocation behaviour.
package benchmark

import (
	"fmt"
	"testing"
	"time"

	"github.com/searchstack/textsearchd/internal/docstore"
	"github.com/searchstack/textsearchd/internal/index"
)

func syntheticTF(i int) map[string]int {
	terms := []string{"distributed", "search", "analytics", "platform", "indexing", "query", "engine", "ranking"}
	tf := make(map[string]int, 4)
	tf[terms[i%len(terms)]] = (i % 5) + 1
	tf[terms[(i+2)%len(terms)]] = 1
	tf[terms[(i+5)%len(terms)]] = 2
	return tf
}

// BenchmarkIndexUpsert measures per-document insert throughput into the
// sharded in-memory inverted index.
func BenchmarkIndexUpsert(b *testing.B) {
	ix := index.New(index.DefaultShardCount)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ix.UpsertDocument(int32(i+1), syntheticTF(i))
	}
}

// BenchmarkIndexReUpsert measures the cost of replacing an existing document's
// postings, which exercises the remove-then-insert path.
func BenchmarkIndexReUpsert(b *testing.B) {
	ix := index.New(index.DefaultShardCount)
	for i := 0; i < 1000; i++ {
		ix.UpsertDocument(int32(i+1), syntheticTF(i))
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ix.UpsertDocument(int32(i%1000+1), syntheticTF(i + 1))
	}
}

// BenchmarkIndexSearch measures single-term lookup and ranking latency over
// 10 000 documents.
func BenchmarkIndexSearch(b *testing.B) {
	ix := index.New(index.DefaultShardCount)
	for i := 0; i < 10000; i++ {
		ix.UpsertDocument(int32(i+1), syntheticTF(i))
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		results := ix.Search([]string{"search"}, 10)
		_ = results
	}
}

// BenchmarkIndexSearchParallel measures concurrent read throughput while the
// shard locks are uncontended by writers.
func BenchmarkIndexSearchParallel(b *testing.B) {
	ix := index.New(index.DefaultShardCount)
	for i := 0; i < 10000; i++ {
		ix.UpsertDocument(int32(i+1), syntheticTF(i))
	}

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			results := ix.Search([]string{"distributed", "search"}, 10)
			_ = results
		}
	})
}

// BenchmarkIndexSearchShardCounts compares multi-term search latency across
// shard counts on a fixed 5 000 document corpus.
func BenchmarkIndexSearchShardCounts(b *testing.B) {
	shardCounts := []int{1, 8, 64}
	for _, shards := range shardCounts {
		b.Run(fmt.Sprintf("shards_%d", shards), func(b *testing.B) {
			ix := index.New(shards)
			for i := 0; i < 5000; i++ {
				ix.UpsertDocument(int32(i+1), syntheticTF(i))
			}

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				results := ix.Search([]string{"analytics", "platform", "ranking"}, 10)
				_ = results
			}
		})
	}
}

// BenchmarkIndexSnapshot measures the cost of producing the sorted term dump
// used for fingerprinting.
func BenchmarkIndexSnapshot(b *testing.B) {
	ix := index.New(index.DefaultShardCount)
	for i := 0; i < 5000; i++ {
		ix.UpsertDocument(int32(i+1), syntheticTF(i))
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		snapshot := ix.Snapshot()
		_ = snapshot
	}
}

// BenchmarkIndexFingerprint measures the full content hash over indexes of
// varying size, including path resolution through the document catalog.
func BenchmarkIndexFingerprint(b *testing.B) {
	sizes := []int{100, 1000, 5000}
	for _, numDocs := range sizes {
		b.Run(fmt.Sprintf("docs_%d", numDocs), func(b *testing.B) {
			ix := index.New(index.DefaultShardCount)
			store := docstore.New()
			now := time.Now()
			for i := 0; i < numDocs; i++ {
				id, _ := store.GetOrCreate(fmt.Sprintf("/data/doc-%d.txt", i), now)
				ix.UpsertDocument(id, syntheticTF(i))
			}

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				fp := ix.Fingerprint(store.PathFor)
				_ = fp
			}
		})
	}
}
