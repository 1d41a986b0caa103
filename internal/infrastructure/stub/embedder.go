package stub

import (
	"context"
	"math"

	"github.com/cespare/xxhash/v2"
)

const defaultHashDimensions = 256

// HashingEmbedder maps text to a unit vector by feature hashing its tokens and character trigrams.
// Texts sharing words land close together, which is enough for offline semantic recall.
type HashingEmbedder struct {
	dimensions int
}

// NewHashingEmbedder creates an embedder; dimensions <= 0 selects 256
func NewHashingEmbedder(dimensions int) *HashingEmbedder {
	if dimensions <= 0 {
		dimensions = defaultHashDimensions
	}
	return &HashingEmbedder{dimensions: dimensions}
}

// Embed returns the vector of text
func (e *HashingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.vector(text), nil
}

// EmbedBatch returns one vector per text
func (e *HashingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		vectors[i] = e.vector(t)
	}
	return vectors, nil
}

// Dimensions returns the vector length
func (e *HashingEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *HashingEmbedder) vector(text string) []float32 {
	acc := make([]float64, e.dimensions)
	for _, token := range tokenize(text) {
		e.add(acc, "w:"+token, 1)
		runes := []rune("^" + token + "$")
		for i := 0; i+3 <= len(runes); i++ {
			e.add(acc, "t:"+string(runes[i:i+3]), 0.5)
		}
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	out := make([]float32, e.dimensions)
	if norm == 0 {
		// Empty text still gets a valid non-zero vector.
		out[0] = 1
		return out
	}
	norm = math.Sqrt(norm)
	for i, v := range acc {
		out[i] = float32(v / norm)
	}
	return out
}

// add hashes feature into a bucket; the top bit picks the sign so collisions tend to cancel
func (e *HashingEmbedder) add(acc []float64, feature string, weight float64) {
	h := xxhash.Sum64String(feature)
	bucket := int(h % uint64(e.dimensions))
	if h>>63 == 1 {
		weight = -weight
	}
	acc[bucket] += weight
}
