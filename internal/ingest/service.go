// Package ingest turns external recipe sources into stored recipes.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"recipebox/internal/recipe"
)

// Extractor converts one kind of source (a URL, an image payload) into an Extraction.
type Extractor interface {
	Extract(ctx context.Context, source string) (*recipe.Extraction, error)
}

// Inserter is the slice of recipe.Store the service writes through.
type Inserter interface {
	Insert(ctx context.Context, r *recipe.Recipe) (*recipe.Recipe, error)
}

// Service runs an extractor, stamps provenance, and persists the result.
type Service struct {
	store   Inserter
	webpage Extractor
	image   Extractor
	now     recipe.Clock
	newID   recipe.IDFunc
}

// NewService creates a Service.
func NewService(store Inserter, webpage, image Extractor) *Service {
	return &Service{store: store, webpage: webpage, image: image}
}

// CreateFromURL imports the recipe published at url.
func (s *Service) CreateFromURL(ctx context.Context, url string) (*recipe.Recipe, error) {
	ext, err := s.webpage.Extract(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("could not extract recipe from URL %s: %w", url, err)
	}

	r := recipe.FromExtraction(*ext, s.now, s.newID)
	r.SourceURL = &url
	return s.persist(ctx, r, "url", url)
}

// CreateFromImage extracts a recipe from a photo. The stored image is the
// payload exactly as submitted.
func (s *Service) CreateFromImage(ctx context.Context, imageBase64 string) (*recipe.Recipe, error) {
	ext, err := s.image.Extract(ctx, imageBase64)
	if err != nil {
		return nil, fmt.Errorf("could not extract recipe from image: %w", err)
	}

	r := recipe.FromExtraction(*ext, s.now, s.newID)
	r.ImageBase64 = &imageBase64
	return s.persist(ctx, r, "image", "")
}

func (s *Service) persist(ctx context.Context, r *recipe.Recipe, kind, source string) (*recipe.Recipe, error) {
	// A cancelled request must not leave a record behind.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stored, err := s.store.Insert(ctx, r)
	if err != nil {
		return nil, err
	}
	slog.Info("recipe ingested", "kind", kind, "id", stored.ID, "title", stored.Title, "source_url", source)
	return stored, nil
}
