// Package embedding turns canonical text into fixed-dimension unit vectors.
package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Embedder maps text to a vector of Dimensions() length. Implementations
// must be deterministic for equal input.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// HashEmbedder is a feature-hashing embedder: unigrams, bigrams and numeric
// magnitude buckets are hashed into signed buckets and the result is
// L2-normalized. Texts sharing vocabulary land close together.
type HashEmbedder struct {
	dims int
}

func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 384
	}
	return &HashEmbedder{dims: dims}
}

func (e *HashEmbedder) Dimensions() int {
	return e.dims
}

func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float64, e.dims)
	tokens := tokenize(text)
	for i, tok := range tokens {
		e.add(vec, "u:"+tok, 1)
		if i > 0 {
			e.add(vec, "b:"+tokens[i-1]+" "+tok, 0.5)
		}
		if bucket, ok := magnitude(tok); ok {
			e.add(vec, "m:"+bucket, 1)
		}
	}
	return normalize(vec), nil
}

func (e *HashEmbedder) add(vec []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dims))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.'
	})
}

// magnitude buckets numbers by their count of integer digits, so 4200 and
// 4900 share a feature that 42 does not.
func magnitude(tok string) (string, bool) {
	tok = strings.Trim(tok, ".")
	if tok == "" {
		return "", false
	}
	intPart, _, _ := strings.Cut(tok, ".")
	for _, r := range intPart {
		if !unicode.IsDigit(r) {
			return "", false
		}
	}
	if intPart == "" {
		return "", false
	}
	return string(rune('0' + min(len(intPart), 9))), true
}

func normalize(vec []float64) []float32 {
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, len(vec))
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

// Distance is the Euclidean distance between two vectors of equal length.
func Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
