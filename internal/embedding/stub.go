package embedding

import (
	"context"
	"crypto/sha256"
	"math"
)

// Stub is a deterministic in-process embedder for tests and offline
// runs. Vectors are derived from a content digest, so identical text
// always embeds identically and distinct text rarely collides.
type Stub struct {
	Dim  int
	Fail error
}

func NewStub(dim int) *Stub {
	if dim <= 0 {
		dim = 16
	}
	return &Stub{Dim: dim}
}

func (s *Stub) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.Fail != nil {
		return nil, s.Fail
	}
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, s.Dim)
	var norm float64
	for i := range vec {
		vec[i] = float32(sum[i%len(sum)])/255 - 0.5
		norm += float64(vec[i]) * float64(vec[i])
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		norm = 1
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

func (s *Stub) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if s.Fail != nil {
		return nil, s.Fail
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}
