// Package similarity matches normalized vendors against confirmed history,
// by exact key or by embedding nearest neighbor.
package similarity

import (
	"hash/fnv"
	"math"
)

// Embedder turns a normalized vendor string into a fixed-size vector.
type Embedder interface {
	Embed(text string) []float32
}

// trigramDim is the hashed vector size for the default embedder.
const trigramDim = 256

// TrigramEmbedder is the default embedder: character trigrams hashed into a
// fixed-size vector, L2-normalized. It is deterministic and fully offline,
// which keeps vendor lookups off the network entirely.
type TrigramEmbedder struct{}

// NewTrigramEmbedder creates the default offline embedder.
func NewTrigramEmbedder() *TrigramEmbedder {
	return &TrigramEmbedder{}
}

// Embed hashes the padded character trigrams of text into a normalized vector.
func (e *TrigramEmbedder) Embed(text string) []float32 {
	vec := make([]float32, trigramDim)
	if text == "" {
		return vec
	}

	padded := "  " + text + "  "
	runes := []rune(padded)
	for i := 0; i+3 <= len(runes); i++ {
		h := fnv.New32a()
		_, _ = h.Write([]byte(string(runes[i : i+3])))
		vec[h.Sum32()%trigramDim]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// Cosine returns the cosine similarity of two vectors, 0 for mismatched or
// zero-length inputs.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
