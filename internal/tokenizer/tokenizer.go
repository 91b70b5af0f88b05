// Package tokenizer turns raw document bytes into normalised terms. The
// tokenizer is byte-oriented: ASCII letters (and optionally digits) are token
// characters, everything else is a separator. Non-ASCII bytes are never token
// characters.
package tokenizer

// Config controls normalisation and token length bounds.
type Config struct {
	ToLower     bool
	KeepDigits  bool
	MinTokenLen int
	MaxTokenLen int
}

// DefaultConfig matches the service defaults: lowercase folding, digits kept,
// tokens between 2 and 64 bytes.
func DefaultConfig() Config {
	return Config{
		ToLower:     true,
		KeepDigits:  true,
		MinTokenLen: 2,
		MaxTokenLen: 64,
	}
}

// Tokenizer is immutable after construction and safe for concurrent use.
type Tokenizer struct {
	cfg Config
}

// New creates a Tokenizer. Degenerate length bounds are clamped so that the
// tokenizer always emits well-formed tokens.
func New(cfg Config) *Tokenizer {
	if cfg.MinTokenLen < 1 {
		cfg.MinTokenLen = 1
	}
	if cfg.MaxTokenLen < cfg.MinTokenLen {
		cfg.MaxTokenLen = cfg.MinTokenLen
	}
	return &Tokenizer{cfg: cfg}
}

// Config returns the tokenizer's effective configuration.
func (t *Tokenizer) Config() Config {
	return t.cfg
}

// Tokenize scans text left to right and returns the ordered token runs.
// Characters beyond MaxTokenLen in a single run are dropped without splitting
// the run; runs shorter than MinTokenLen are discarded.
func (t *Tokenizer) Tokenize(text []byte) []string {
	tokens := make([]string, 0, 64)
	cur := make([]byte, 0, 32)

	for _, c := range text {
		if t.isTokenChar(c) {
			if len(cur) < t.cfg.MaxTokenLen {
				cur = append(cur, t.normalize(c))
			}
			continue
		}
		if len(cur) >= t.cfg.MinTokenLen {
			tokens = append(tokens, string(cur))
		}
		cur = cur[:0]
	}
	if len(cur) >= t.cfg.MinTokenLen {
		tokens = append(tokens, string(cur))
	}
	return tokens
}

// TermFrequencies folds an ordered token list into a term -> count map.
func TermFrequencies(tokens []string) map[string]int {
	tf := make(map[string]int, len(tokens)/2+16)
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		tf[tok]++
	}
	return tf
}

func (t *Tokenizer) isTokenChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return t.cfg.KeepDigits
	}
	return false
}

func (t *Tokenizer) normalize(c byte) byte {
	if t.cfg.ToLower && c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}
