// Package multimodal implements the Multi-modal Worker (§4.6): it runs
// alongside the text chunking pipeline and handles content that never
// becomes a Chunk — audio, which is transcribed into the 768-d
// text/transcript collection, and images, which a vision model describes
// once to produce two points: an image_text chunk embedded into the
// 768-d text collection, and an image_embedding chunk embedded into the
// 512-d visual collection. Both paths still go through the same
// dimension-locked upsert and the same audit trail as the text pipeline.
package multimodal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"ingestpipe/internal/audit"
	"ingestpipe/internal/config"
	"ingestpipe/internal/domain"
	"ingestpipe/internal/embedding"
	"ingestpipe/internal/persistence/databases"
	"ingestpipe/internal/queue"
)

var audioExtensions = map[string]bool{
	".wav": true,
}

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".tiff": true,
	".bmp":  true,
}

// videoExtensions lists the containers §4.6 bullet 3 names for frame
// sampling and audio-track transcription. No video-decoding or
// frame-sampling library appears anywhere in the retrieval pack (see
// DESIGN.md), so video is rejected explicitly rather than silently
// falling through to the text Parse Worker, which would otherwise decode
// the raw container bytes as UTF-8 garbage.
var videoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".avi":  true,
	".mkv":  true,
	".webm": true,
}

// IsRoutableExtension reports whether filename's extension is one the
// Multi-modal Worker handles, so the intake layer can short-circuit such
// files away from the text parse queue (§4.6).
func IsRoutableExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return audioExtensions[ext] || imageExtensions[ext]
}

// IsVideoExtension reports whether filename names a video container.
// Video ingestion (§4.6 bullet 3) is not implemented — see DESIGN.md — so
// the Intake Gateway rejects these outright instead of routing them
// anywhere.
func IsVideoExtension(filename string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(filename))]
}

// Worker processes one tenant's multimodal queue.
type Worker struct {
	tenantID      string
	q             *queue.Queue
	vectors       databases.Manager
	textEmbedCfg  config.EmbeddingConfig
	imageEmbedCfg config.ImageEmbeddingConfig
	transcriber   Transcriber
	vision        *VisionClient
	auditLog      audit.Log
}

// New builds a Worker. transcriber and vision may each be nil, in which
// case jobs of that modality are rejected with a clear audit reason
// instead of the process refusing to start.
func New(tenantID string, q *queue.Queue, vectors databases.Manager, textEmbedCfg config.EmbeddingConfig, imageEmbedCfg config.ImageEmbeddingConfig, transcriber Transcriber, vision *VisionClient, auditLog audit.Log) *Worker {
	return &Worker{
		tenantID:      tenantID,
		q:             q,
		vectors:       vectors,
		textEmbedCfg:  textEmbedCfg,
		imageEmbedCfg: imageEmbedCfg,
		transcriber:   transcriber,
		vision:        vision,
		auditLog:      auditLog,
	}
}

// Run blocks, popping multimodal jobs for the worker's tenant until ctx
// is canceled.
func (w *Worker) Run(ctx context.Context, pollTimeout time.Duration) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		payload, err := w.q.Pop(ctx, w.tenantID, queue.StageMultimodal, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("pop multimodal job: %w", err)
		}
		if payload == nil {
			continue
		}

		var job domain.MultimodalJob
		if err := json.Unmarshal(payload, &job); err != nil {
			continue
		}
		_ = w.ProcessJob(ctx, job)
	}
}

// ProcessJob routes job by its filename extension to the audio or visual
// path, embeds the resulting text, and upserts it into the matching
// dimension-locked collection.
func (w *Worker) ProcessJob(ctx context.Context, job domain.MultimodalJob) error {
	ext := strings.ToLower(filepath.Ext(job.Filename))

	switch {
	case audioExtensions[ext]:
		return w.processAudio(ctx, job)
	case imageExtensions[ext]:
		return w.processImage(ctx, job)
	default:
		err := fmt.Errorf("unsupported multimodal content type: %q", ext)
		w.recordFailure(ctx, job, err, "unknown")
		return err
	}
}

func (w *Worker) processAudio(ctx context.Context, job domain.MultimodalJob) error {
	if w.transcriber == nil {
		err := fmt.Errorf("audio transcription not configured")
		w.recordFailure(ctx, job, err, "audio")
		return err
	}
	transcript, err := w.transcriber.Transcribe(job.Content)
	if err != nil {
		w.recordFailure(ctx, job, err, "audio")
		return fmt.Errorf("transcribe audio for job %s: %w", job.JobID, err)
	}
	if strings.TrimSpace(transcript) == "" {
		err := fmt.Errorf("empty transcript")
		w.recordFailure(ctx, job, err, "audio")
		return err
	}

	vectors, err := embedding.EmbedText(ctx, w.textEmbedCfg, []string{transcript})
	if err != nil {
		w.recordFailure(ctx, job, err, "audio")
		return fmt.Errorf("embed transcript for job %s: %w", job.JobID, err)
	}

	pointID := multimodalPointID(job.JobID, "audio")
	metadata := map[string]string{
		"doc_id":   job.DocumentID,
		"job_id":   job.JobID,
		"filename": job.Filename,
		"modality": "audio",
	}
	if err := w.vectors.Text.Upsert(ctx, pointID, vectors[0], metadata); err != nil {
		w.recordFailure(ctx, job, err, "audio")
		return fmt.Errorf("upsert transcript for job %s: %w", job.JobID, err)
	}

	w.recordSuccess(ctx, job, "audio")
	return nil
}

// processImage produces the two vector points §4.6 requires per image: an
// image_text chunk (the vision model's description, read as OCR/caption
// text, embedded into the tenant's 768-d text collection) and an
// image_embedding chunk (the same description embedded through the
// image-specific endpoint into the 512-d image collection — the pack
// carries no dedicated visual-embedding model, see DESIGN.md). Both
// points are derived from one vision.Describe call; losing either one
// would leave an image either unsearchable from the text collection or
// missing its visual-similarity point entirely.
func (w *Worker) processImage(ctx context.Context, job domain.MultimodalJob) error {
	if w.vision == nil {
		err := fmt.Errorf("image description not configured")
		w.recordFailure(ctx, job, err, "image")
		return err
	}

	mediaType := mime.TypeByExtension(strings.ToLower(filepath.Ext(job.Filename)))
	if mediaType == "" {
		mediaType = "image/png"
	}

	description, err := w.vision.Describe(ctx, mediaType, job.Content)
	if err != nil {
		w.recordFailure(ctx, job, err, "image")
		return fmt.Errorf("describe image for job %s: %w", job.JobID, err)
	}
	if strings.TrimSpace(description) == "" {
		err := fmt.Errorf("empty image description")
		w.recordFailure(ctx, job, err, "image")
		return err
	}

	textVectors, err := embedding.EmbedText(ctx, w.textEmbedCfg, []string{description})
	if err != nil {
		w.recordFailure(ctx, job, err, "image")
		return fmt.Errorf("embed image_text chunk for job %s: %w", job.JobID, err)
	}
	textMetadata := map[string]string{
		"doc_id":   job.DocumentID,
		"job_id":   job.JobID,
		"filename": job.Filename,
		"modality": "image_text",
	}
	if err := w.vectors.Text.Upsert(ctx, multimodalPointID(job.JobID, "text"), textVectors[0], textMetadata); err != nil {
		w.recordFailure(ctx, job, err, "image")
		return fmt.Errorf("upsert image_text chunk for job %s: %w", job.JobID, err)
	}

	imageVectors, err := embedding.EmbedText(ctx, config.EmbeddingConfig{
		BaseURL:   w.imageEmbedCfg.BaseURL,
		Path:      w.imageEmbedCfg.Path,
		Model:     w.imageEmbedCfg.Model,
		APIHeader: w.imageEmbedCfg.APIHeader,
		APIKey:    w.imageEmbedCfg.APIKey,
		Timeout:   w.imageEmbedCfg.Timeout,
	}, []string{description})
	if err != nil {
		w.recordFailure(ctx, job, err, "image")
		return fmt.Errorf("embed image_embedding chunk for job %s: %w", job.JobID, err)
	}
	imageMetadata := map[string]string{
		"doc_id":   job.DocumentID,
		"job_id":   job.JobID,
		"filename": job.Filename,
		"modality": "image_embedding",
	}
	if err := w.vectors.Image.Upsert(ctx, multimodalPointID(job.JobID, "image"), imageVectors[0], imageMetadata); err != nil {
		w.recordFailure(ctx, job, err, "image")
		return fmt.Errorf("upsert image_embedding chunk for job %s: %w", job.JobID, err)
	}

	w.recordSuccess(ctx, job, "image")
	return nil
}

// multimodalPointID derives a stable vector-store key from the job id and
// a role suffix: multimodal content has no (page, start, end) position the
// way a parsed chunk does, so the job id is the only stable identity to
// hash, and role keeps an image job's two points (image_text,
// image_embedding) from colliding on the same key.
func multimodalPointID(jobID, role string) string {
	sum := sha256.Sum256([]byte(jobID + ":" + role))
	return "mm_" + hex.EncodeToString(sum[:])[:12]
}

func (w *Worker) recordSuccess(ctx context.Context, job domain.MultimodalJob, modality string) {
	if w.auditLog == nil {
		return
	}
	event := domain.Event{
		EventID:      "evt_" + uuid.NewString(),
		TenantID:     job.TenantID,
		EventType:    domain.EventDocumentEmbedded,
		Timestamp:    time.Now().UTC(),
		ResourceType: "document",
		ResourceID:   job.DocumentID,
		Details: map[string]any{
			"job_id":   job.JobID,
			"modality": modality,
		},
	}
	_ = w.auditLog.Append(ctx, event)
}

func (w *Worker) recordFailure(ctx context.Context, job domain.MultimodalJob, cause error, modality string) {
	if w.auditLog == nil {
		return
	}
	event := domain.Event{
		EventID:      "evt_" + uuid.NewString(),
		TenantID:     job.TenantID,
		EventType:    domain.EventDocumentRejected,
		Timestamp:    time.Now().UTC(),
		ResourceType: "document",
		ResourceID:   job.DocumentID,
		Details: map[string]any{
			"job_id":   job.JobID,
			"modality": modality,
			"reason":   cause.Error(),
			"stage":    "multimodal",
		},
	}
	_ = w.auditLog.Append(ctx, event)
}
