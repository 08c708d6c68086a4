// Package query implements the Admin/Query Surface's Query API (§6):
// top-k nearest-neighbor search over a tenant's vector collections, either
// from a caller-supplied vector or a file the service embeds on the fly
// using the same modality rules the Multi-modal Worker uses (§4.6).
package query

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"ingestpipe/internal/config"
	"ingestpipe/internal/domain"
	"ingestpipe/internal/embedding"
	"ingestpipe/internal/multimodal"
	"ingestpipe/internal/persistence/databases"
)

// Hit is one ranked nearest-neighbor result.
type Hit struct {
	ID       string            `json:"id"`
	Score    float64           `json:"score"`
	Payload  map[string]string `json:"payload"`
}

// File carries a query-by-file upload: its name (used only to route by
// extension) and raw bytes.
type File struct {
	Filename string
	Content  []byte
}

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".tiff": true, ".bmp": true,
}

var audioExtensions = map[string]bool{
	".wav": true,
}

// VectorResolver returns the live vector collections for tenantID,
// opening and caching a connection on first use.
type VectorResolver func(ctx context.Context, tenantID string) (databases.Manager, error)

// Service answers Query API requests.
type Service struct {
	Resolve       VectorResolver
	TextEmbedCfg  config.EmbeddingConfig
	ImageEmbedCfg config.ImageEmbeddingConfig
	Vision        *multimodal.VisionClient
	Transcriber   multimodal.Transcriber
}

// New builds a Service.
func New(resolve VectorResolver, textCfg config.EmbeddingConfig, imageCfg config.ImageEmbeddingConfig, vision *multimodal.VisionClient, transcriber multimodal.Transcriber) *Service {
	return &Service{Resolve: resolve, TextEmbedCfg: textCfg, ImageEmbedCfg: imageCfg, Vision: vision, Transcriber: transcriber}
}

// Collection names the vector-store naming convention of §6:
// "tenant_{id}" for text/transcript vectors, "tenant_{id}_images" for
// visual embeddings.
type Collection struct {
	TenantID string
	Image    bool
}

// ParseCollection derives the owning tenant and modality from a collection
// name. Returns an error if name doesn't follow the tenant_{id}[_images]
// convention.
func ParseCollection(name string) (Collection, error) {
	const prefix = "tenant_"
	if !strings.HasPrefix(name, prefix) {
		return Collection{}, fmt.Errorf("unrecognized collection name: %q", name)
	}
	rest := strings.TrimPrefix(name, prefix)
	if strings.HasSuffix(rest, "_images") {
		return Collection{TenantID: strings.TrimSuffix(rest, "_images"), Image: true}, nil
	}
	return Collection{TenantID: rest}, nil
}

// Query runs a top-k nearest-neighbor search. At least one of vector or
// file must be supplied; when both are, file is ignored. vector is used
// verbatim, file is embedded first
// using the modality rules of §4.6 (image -> vision description -> image
// embedding endpoint; audio -> transcript -> text embedding endpoint).
func (s *Service) Query(ctx context.Context, collectionName string, vector []float32, file *File, topK int) ([]Hit, error) {
	coll, err := ParseCollection(collectionName)
	if err != nil {
		return nil, domain.NewError(domain.ErrResourceNotFound, err.Error())
	}

	mgr, err := s.Resolve(ctx, coll.TenantID)
	if err != nil {
		return nil, domain.Wrap(domain.ErrResourceNotFound, "resolve tenant vector collections", err)
	}

	store := mgr.Text
	if coll.Image {
		store = mgr.Image
	}

	if vector == nil {
		if file == nil {
			return nil, domain.NewError(domain.ErrManifestInvalid, "query requires either a vector or a query_file")
		}
		vector, err = s.embedFile(ctx, coll, *file)
		if err != nil {
			return nil, err
		}
	}

	if len(vector) != store.Dimension() {
		return nil, domain.NewError(domain.ErrDimensionMismatch,
			fmt.Sprintf("query vector has dimension %d, collection requires %d", len(vector), store.Dimension()))
	}

	results, err := store.SimilaritySearch(ctx, vector, topK, nil)
	if err != nil {
		return nil, domain.Wrap(domain.ErrResourceNotFound, "similarity search failed", err)
	}

	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{ID: r.ID, Score: r.Score, Payload: r.Metadata}
	}
	return hits, nil
}

// embedFile derives a query vector from an uploaded file using the same
// modality routing the Multi-modal Worker applies to ingested content.
func (s *Service) embedFile(ctx context.Context, coll Collection, file File) ([]float32, error) {
	ext := strings.ToLower(filepath.Ext(file.Filename))

	switch {
	case imageExtensions[ext]:
		if s.Vision == nil {
			return nil, domain.NewError(domain.ErrParserError, "image query not supported: vision assist is not configured")
		}
		description, err := s.Vision.Describe(ctx, "image/"+strings.TrimPrefix(ext, "."), file.Content)
		if err != nil {
			return nil, domain.Wrap(domain.ErrParserError, "describe query image", err)
		}
		// The Multi-modal Worker ingests the same description into both
		// collections (image_text into text, image_embedding into image,
		// §4.6) — mirror that here by embedding through whichever config
		// matches the collection being queried.
		if coll.Image {
			vectors, err := embedding.EmbedText(ctx, config.EmbeddingConfig{
				BaseURL: s.ImageEmbedCfg.BaseURL, Path: s.ImageEmbedCfg.Path, Model: s.ImageEmbedCfg.Model,
				APIHeader: s.ImageEmbedCfg.APIHeader, APIKey: s.ImageEmbedCfg.APIKey, Timeout: s.ImageEmbedCfg.Timeout,
			}, []string{description})
			if err != nil {
				return nil, domain.Wrap(domain.ErrParserError, "embed query image description", err)
			}
			return vectors[0], nil
		}
		vectors, err := embedding.EmbedText(ctx, s.TextEmbedCfg, []string{description})
		if err != nil {
			return nil, domain.Wrap(domain.ErrParserError, "embed query image description", err)
		}
		return vectors[0], nil

	case audioExtensions[ext]:
		if coll.Image {
			return nil, domain.NewError(domain.ErrManifestInvalid, "an audio query_file requires the text collection")
		}
		if s.Transcriber == nil {
			return nil, domain.NewError(domain.ErrParserError, "audio query not supported: transcription is not configured")
		}
		transcript, err := s.Transcriber.Transcribe(file.Content)
		if err != nil {
			return nil, domain.Wrap(domain.ErrParserError, "transcribe query audio", err)
		}
		vectors, err := embedding.EmbedText(ctx, s.TextEmbedCfg, []string{transcript})
		if err != nil {
			return nil, domain.Wrap(domain.ErrParserError, "embed query transcript", err)
		}
		return vectors[0], nil

	default:
		if coll.Image {
			return nil, domain.NewError(domain.ErrUnsupportedFormat, "unsupported query_file extension for an image collection: "+ext)
		}
		vectors, err := embedding.EmbedText(ctx, s.TextEmbedCfg, []string{string(file.Content)})
		if err != nil {
			return nil, domain.Wrap(domain.ErrParserError, "embed query text", err)
		}
		return vectors[0], nil
	}
}
