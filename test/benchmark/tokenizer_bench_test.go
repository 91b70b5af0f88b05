package benchmark

import (
	"fmt"
	"strings"
	"testing"

	"github.com/searchstack/textsearchd/internal/tokenizer"
)

var sampleTexts = map[string][]byte{
	"short": []byte("The quick brown fox jumps over the lazy dog"),
	"medium": []byte(`Distributed search engines process queries across multiple shards to achieve
        horizontal scalability. Each shard maintains its own inverted index and responds
        to queries independently. Results are merged using a global ranking algorithm
        that accounts for term frequency and inverse document frequency across the
        entire corpus. This architecture enables sub-second query latency even with
        billions of documents spread across hundreds of nodes.`),
	"long": []byte(strings.Repeat(`Information retrieval systems form the backbone of modern search
        infrastructure. These systems combine tokenization and normalization to turn
        raw text into searchable terms. The inverted index maps each term to the
        documents containing it along with per-document frequencies. Ranking orders
        documents by summed term frequency with deterministic tie-breaking. Caching
        layers reduce latency for repeated queries while worker pools keep index
        builds off the serving path. `, 20)),
}

func BenchmarkTokenize(b *testing.B) {
	tok := tokenizer.New(tokenizer.DefaultConfig())
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				tokens := tok.Tokenize(text)
				_ = tokens
			}
		})
	}
}

func BenchmarkTokenizeParallel(b *testing.B) {
	tok := tokenizer.New(tokenizer.DefaultConfig())
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			tokens := tok.Tokenize(text)
			_ = tokens
		}
	})
}

func BenchmarkTermFrequencies(b *testing.B) {
	tok := tokenizer.New(tokenizer.DefaultConfig())
	tokens := tok.Tokenize(sampleTexts["long"])
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tf := tokenizer.TermFrequencies(tokens)
		_ = tf
	}
}

func BenchmarkTokenizeVaryingSize(b *testing.B) {
	tok := tokenizer.New(tokenizer.DefaultConfig())
	sizes := []int{10, 100, 500, 1000, 5000}
	baseWord := "distributed search analytics platform indexing "
	for _, size := range sizes {
		text := []byte(strings.Repeat(baseWord, size/len(baseWord)+1)[:size])
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				tokens := tok.Tokenize(text)
				_ = tokens
			}
		})
	}
}
