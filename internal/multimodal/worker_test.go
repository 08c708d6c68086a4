package multimodal

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ingestpipe/internal/audit"
	"ingestpipe/internal/config"
	"ingestpipe/internal/domain"
	"ingestpipe/internal/persistence/databases"
)

// fixedTranscriber is a test double standing in for a loaded whisper
// model: it never touches the audio bytes, just returns a fixed
// transcript (or an error) so tests stay independent of cgo/model weights.
type fixedTranscriber struct {
	transcript string
	err        error
}

func (f fixedTranscriber) Transcribe(_ []byte) (string, error) { return f.transcript, f.err }

func newTestEmbeddingServer(t *testing.T, dim int) config.EmbeddingConfig {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			vec := make([]float32, dim)
			for j := range vec {
				vec[j] = float32(i+1) * 0.01
			}
			data[i] = map[string]any{"embedding": vec}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	t.Cleanup(ts.Close)
	return config.EmbeddingConfig{BaseURL: ts.URL, Path: "/", Model: "test-model", APIHeader: "Authorization"}
}

// newTestVisionServer fakes the Anthropic Messages API closely enough for
// VisionClient.Describe: it always returns a single text content block,
// regardless of the inline image bytes in the request.
func newTestVisionServer(t *testing.T, description string) config.VisionAssistConfig {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":   "msg_test",
			"type": "message",
			"role": "assistant",
			"content": []map[string]any{
				{"type": "text", "text": description},
			},
			"model":         "test-model",
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"usage":         map[string]any{"input_tokens": 1, "output_tokens": 1},
		})
	}))
	t.Cleanup(ts.Close)
	return config.VisionAssistConfig{APIKey: "test-key", BaseURL: ts.URL, Model: "test-model", Timeout: 5 * time.Second}
}

// syntheticWAV builds a minimal valid mono 16-bit PCM WAV file so
// decodeWAV has real header bytes to parse; the fixedTranscriber never
// actually reads the samples.
func syntheticWAV(t *testing.T, numSamples int) []byte {
	t.Helper()
	var buf bytes.Buffer
	dataSize := uint32(numSamples * 2)
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint32(16000))
	binary.Write(&buf, binary.LittleEndian, uint32(32000))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataSize)
	buf.Write(make([]byte, dataSize))
	return buf.Bytes()
}

func TestDecodeWAV_MonoSixteenBit(t *testing.T) {
	samples, err := decodeWAV(syntheticWAV(t, 100))
	if err != nil {
		t.Fatalf("decodeWAV: %v", err)
	}
	if len(samples) != 100 {
		t.Fatalf("expected 100 samples, got %d", len(samples))
	}
}

func TestDecodeWAV_RejectsNonRIFF(t *testing.T) {
	if _, err := decodeWAV(make([]byte, 44)); err == nil {
		t.Fatalf("expected an error for a non-RIFF header")
	}
}

func TestWorker_ProcessJob_AudioTranscribesAndUpserts(t *testing.T) {
	t.Parallel()
	textCfg := newTestEmbeddingServer(t, 4)
	vectors := databases.Manager{Text: databases.NewMemoryVectorWithDimension(4), Image: databases.NewMemoryVectorWithDimension(4)}
	auditLog := audit.NewMemoryLog()

	w := New("acme", nil, vectors, textCfg, config.ImageEmbeddingConfig{}, fixedTranscriber{transcript: "a recorded meeting about renewal terms"}, nil, auditLog)

	job := domain.MultimodalJob{
		JobID:      "job_1",
		DocumentID: "doc_1",
		TenantID:   "acme",
		Filename:   "meeting.wav",
		Content:    syntheticWAV(t, 10),
	}

	if err := w.ProcessJob(context.Background(), job); err != nil {
		t.Fatalf("ProcessJob: %v", err)
	}

	results, err := vectors.Text.SimilaritySearch(context.Background(), []float32{0.01, 0.02, 0.03, 0.04}, 10, nil)
	if err != nil {
		t.Fatalf("SimilaritySearch: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 upserted transcript vector, got %d", len(results))
	}

	events, err := auditLog.ListByResource(context.Background(), "acme", "document", "doc_1")
	if err != nil || len(events) != 1 || events[0].EventType != domain.EventDocumentEmbedded {
		t.Fatalf("expected one DOCUMENT_EMBEDDED event, got %+v err=%v", events, err)
	}
}

func TestWorker_ProcessJob_AudioDisabledRecordsFailure(t *testing.T) {
	t.Parallel()
	textCfg := newTestEmbeddingServer(t, 4)
	vectors := databases.Manager{Text: databases.NewMemoryVectorWithDimension(4), Image: databases.NewMemoryVectorWithDimension(4)}
	auditLog := audit.NewMemoryLog()

	w := New("acme", nil, vectors, textCfg, config.ImageEmbeddingConfig{}, nil, nil, auditLog)

	job := domain.MultimodalJob{JobID: "job_2", DocumentID: "doc_2", TenantID: "acme", Filename: "voicemail.wav", Content: syntheticWAV(t, 10)}

	if err := w.ProcessJob(context.Background(), job); err == nil {
		t.Fatalf("expected an error when no transcriber is configured")
	}

	events, err := auditLog.ListByResource(context.Background(), "acme", "document", "doc_2")
	if err != nil || len(events) != 1 || events[0].EventType != domain.EventDocumentRejected {
		t.Fatalf("expected one DOCUMENT_REJECTED event, got %+v err=%v", events, err)
	}
}

func TestWorker_ProcessJob_UnsupportedExtensionRecordsFailure(t *testing.T) {
	t.Parallel()
	vectors := databases.Manager{Text: databases.NewMemoryVectorWithDimension(4), Image: databases.NewMemoryVectorWithDimension(4)}
	auditLog := audit.NewMemoryLog()

	w := New("acme", nil, vectors, config.EmbeddingConfig{}, config.ImageEmbeddingConfig{}, nil, nil, auditLog)

	job := domain.MultimodalJob{JobID: "job_3", DocumentID: "doc_3", TenantID: "acme", Filename: "archive.zip", Content: []byte("whatever")}

	if err := w.ProcessJob(context.Background(), job); err == nil {
		t.Fatalf("expected an error for an unsupported extension")
	}

	events, err := auditLog.ListByResource(context.Background(), "acme", "document", "doc_3")
	if err != nil || len(events) != 1 || events[0].EventType != domain.EventDocumentRejected {
		t.Fatalf("expected one DOCUMENT_REJECTED event, got %+v err=%v", events, err)
	}
}

func TestWorker_ProcessJob_ImageProducesImageTextAndImageEmbeddingChunks(t *testing.T) {
	t.Parallel()
	textCfg := newTestEmbeddingServer(t, 4)
	imageCfg := newTestEmbeddingServer(t, 6)
	vectors := databases.Manager{Text: databases.NewMemoryVectorWithDimension(4), Image: databases.NewMemoryVectorWithDimension(6)}
	auditLog := audit.NewMemoryLog()
	vision := NewVisionClient(newTestVisionServer(t, "a bar chart showing quarterly revenue growth"))

	w := New("acme", nil, vectors, textCfg,
		config.ImageEmbeddingConfig{BaseURL: imageCfg.BaseURL, Path: imageCfg.Path, Model: imageCfg.Model, APIHeader: imageCfg.APIHeader},
		nil, vision, auditLog)

	job := domain.MultimodalJob{JobID: "job_5", DocumentID: "doc_5", TenantID: "acme", Filename: "chart.png", Content: []byte("fake-png-bytes")}

	if err := w.ProcessJob(context.Background(), job); err != nil {
		t.Fatalf("ProcessJob: %v", err)
	}

	textResults, err := vectors.Text.SimilaritySearch(context.Background(), []float32{0.01, 0.02, 0.03, 0.04}, 10, nil)
	if err != nil {
		t.Fatalf("SimilaritySearch text: %v", err)
	}
	if len(textResults) != 1 {
		t.Fatalf("expected an image_text chunk upserted into the text collection, got %d", len(textResults))
	}
	if textResults[0].Metadata["modality"] != "image_text" {
		t.Fatalf("expected modality=image_text, got %+v", textResults[0].Metadata)
	}

	imageResults, err := vectors.Image.SimilaritySearch(context.Background(), []float32{0.01, 0.02, 0.03, 0.04, 0.05, 0.06}, 10, nil)
	if err != nil {
		t.Fatalf("SimilaritySearch image: %v", err)
	}
	if len(imageResults) != 1 {
		t.Fatalf("expected an image_embedding chunk upserted into the image collection, got %d", len(imageResults))
	}
	if imageResults[0].Metadata["modality"] != "image_embedding" {
		t.Fatalf("expected modality=image_embedding, got %+v", imageResults[0].Metadata)
	}

	if textResults[0].ID == imageResults[0].ID {
		t.Fatalf("expected image_text and image_embedding to use distinct point ids")
	}

	events, err := auditLog.ListByResource(context.Background(), "acme", "document", "doc_5")
	if err != nil || len(events) != 1 || events[0].EventType != domain.EventDocumentEmbedded {
		t.Fatalf("expected one DOCUMENT_EMBEDDED event, got %+v err=%v", events, err)
	}
}

func TestWorker_ProcessJob_ImageVisionDisabledRecordsFailure(t *testing.T) {
	t.Parallel()
	vectors := databases.Manager{Text: databases.NewMemoryVectorWithDimension(4), Image: databases.NewMemoryVectorWithDimension(6)}
	auditLog := audit.NewMemoryLog()

	w := New("acme", nil, vectors, config.EmbeddingConfig{}, config.ImageEmbeddingConfig{}, nil, nil, auditLog)
	job := domain.MultimodalJob{JobID: "job_6", DocumentID: "doc_6", TenantID: "acme", Filename: "photo.jpg", Content: []byte("fake-jpg-bytes")}

	if err := w.ProcessJob(context.Background(), job); err == nil {
		t.Fatalf("expected an error when no vision client is configured")
	}

	events, err := auditLog.ListByResource(context.Background(), "acme", "document", "doc_6")
	if err != nil || len(events) != 1 || events[0].EventType != domain.EventDocumentRejected {
		t.Fatalf("expected one DOCUMENT_REJECTED event, got %+v err=%v", events, err)
	}
}

func TestWorker_ProcessJob_DimensionMismatchRecordsFailure(t *testing.T) {
	t.Parallel()
	textCfg := newTestEmbeddingServer(t, 4)
	vectors := databases.Manager{Text: databases.NewMemoryVectorWithDimension(8), Image: databases.NewMemoryVectorWithDimension(8)}
	auditLog := audit.NewMemoryLog()

	w := New("acme", nil, vectors, textCfg, config.ImageEmbeddingConfig{}, fixedTranscriber{transcript: "mismatched dimensions"}, nil, auditLog)

	job := domain.MultimodalJob{JobID: "job_4", DocumentID: "doc_4", TenantID: "acme", Filename: "clip.wav", Content: syntheticWAV(t, 10)}

	if err := w.ProcessJob(context.Background(), job); err == nil {
		t.Fatalf("expected a dimension mismatch error")
	}

	events, err := auditLog.ListByResource(context.Background(), "acme", "document", "doc_4")
	if err != nil || len(events) != 1 || events[0].EventType != domain.EventDocumentRejected {
		t.Fatalf("expected one DOCUMENT_REJECTED event, got %+v err=%v", events, err)
	}
}

func TestMultimodalPointID_StableAndDeterministic(t *testing.T) {
	a := multimodalPointID("job_1", "audio")
	b := multimodalPointID("job_1", "audio")
	if a != b {
		t.Fatalf("multimodalPointID not stable: %q != %q", a, b)
	}
	if multimodalPointID("job_2", "audio") == a {
		t.Fatalf("expected different job ids to hash to different point ids")
	}
	if multimodalPointID("job_1", "text") == a {
		t.Fatalf("expected different roles for the same job id to hash to different point ids")
	}
}
