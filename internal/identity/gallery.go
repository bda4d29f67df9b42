// SPDX-License-Identifier: MIT

// Package identity matches detection embeddings against the enrolled gallery
// of a class and maintains per-track identity assignments.
package identity

import (
	"context"
	"math"

	"github.com/edupresencia/presencia/internal/log"
	"github.com/edupresencia/presencia/internal/store"
	"github.com/edupresencia/presencia/internal/vision"
)

// unit-norm tolerance for enrolled vectors
const normTolerance = 1e-3

// Gallery is an immutable snapshot of the enrolled embeddings of one class:
// a row-major n×512 matrix with a parallel student-id vector. Because rows
// and queries are unit-norm, cosine similarity reduces to a dot product.
type Gallery struct {
	rows [][]float32
	ids  []string
}

// EmbeddingSource yields the enrolled embeddings of a class.
type EmbeddingSource interface {
	EmbeddingsForClass(ctx context.Context, idClase string) ([]store.Embedding, error)
}

// LoadGallery builds the gallery snapshot for a class. Embeddings with the
// wrong shape or a non-unit norm are skipped with a warning and never
// compared. An empty gallery is valid: the session runs and nobody matches.
func LoadGallery(ctx context.Context, src EmbeddingSource, idClase string) (*Gallery, error) {
	embs, err := src.EmbeddingsForClass(ctx, idClase)
	if err != nil {
		return nil, err
	}

	logger := log.WithComponent("gallery")
	g := &Gallery{}
	skipped := 0
	for _, e := range embs {
		if len(e.Vector) != vision.EmbeddingDim {
			logger.Warn().
				Str("id_estudiante", e.IDEstudiante).
				Int("dim", len(e.Vector)).
				Msg("skipping embedding with wrong shape")
			skipped++
			continue
		}
		if !isUnitNorm(e.Vector) {
			logger.Warn().
				Str("id_estudiante", e.IDEstudiante).
				Msg("skipping embedding with non-unit norm")
			skipped++
			continue
		}
		g.rows = append(g.rows, e.Vector)
		g.ids = append(g.ids, e.IDEstudiante)
	}

	logger.Info().
		Str("id_clase", idClase).
		Int("embeddings", len(g.rows)).
		Int("skipped", skipped).
		Msg("gallery snapshot loaded")
	return g, nil
}

// Len returns the number of gallery rows.
func (g *Gallery) Len() int { return len(g.rows) }

// Best returns the student id and cosine similarity of the closest gallery
// row, or ("", 0) for an empty gallery.
func (g *Gallery) Best(query []float32) (string, float64) {
	bestID := ""
	best := math.Inf(-1)
	for i, row := range g.rows {
		sim := dot(row, query)
		if sim > best {
			best = sim
			bestID = g.ids[i]
		}
	}
	if bestID == "" {
		return "", 0
	}
	return bestID, best
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func isUnitNorm(v []float32) bool {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Abs(math.Sqrt(sum)-1) <= normTolerance
}
