package intake

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"ingestpipe/internal/audit"
	"ingestpipe/internal/config"
	"ingestpipe/internal/domain"
	"ingestpipe/internal/malware"
	"ingestpipe/internal/objectstore"
	"ingestpipe/internal/persistence"
	"ingestpipe/internal/queue"
	"ingestpipe/internal/ratelimit"
	"ingestpipe/internal/tenant"
)

func newTestGateway(t *testing.T, cfg domain.TenantConfig, scanner *malware.Scanner) (*Gateway, string) {
	t.Helper()
	ctx := context.Background()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)

	limiterClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { limiterClient.Close() })
	limiter := ratelimit.New(limiterClient, config.RateLimitConfig{MaxRequests: 1000, Window: time.Minute})

	q, err := queue.New(ctx, mr.Addr(), "")
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	t.Cleanup(func() { q.Close() })

	registry := tenant.NewMemoryRegistry()
	if _, err := registry.Create(ctx, "acme", cfg); err != nil {
		t.Fatalf("Create tenant: %v", err)
	}

	objects := objectstore.NewMemoryStore()
	receipts, _ := persistence.NewMemoryStore()
	auditLog := audit.NewMemoryLog()

	return New(registry, objects, receipts, q, auditLog, limiter, scanner), "acme"
}

func manifestFor(batchID, tenantID string, files ...domain.ManifestFile) domain.BatchManifest {
	return domain.BatchManifest{
		BatchID:   batchID,
		TenantID:  tenantID,
		FileCount: len(files),
		Files:     files,
	}
}

func shaOf(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func TestGateway_AdmitBatch_AcceptsCleanFile(t *testing.T) {
	content := []byte("This is a perfectly ordinary plain text document about quarterly revenue.")
	gw, tenantID := newTestGateway(t, domain.DefaultTenantConfig(), nil)

	manifest := manifestFor("batch_1", tenantID, domain.ManifestFile{
		FileID:    "file_1",
		Filename:  "report.txt",
		MIMEType:  "text/plain",
		SizeBytes: int64(len(content)),
		SHA256:    shaOf(content),
	})

	result, err := gw.AdmitBatch(context.Background(), tenantID, manifest, [][]byte{content})
	if err != nil {
		t.Fatalf("AdmitBatch: %v", err)
	}
	if result.Accepted != 1 || result.Rejected != 0 || result.Quarantined != 0 {
		t.Fatalf("expected 1 accepted file, got %+v", result)
	}
	if result.Receipts[0].Status != statusAccepted {
		t.Fatalf("expected accepted receipt, got %q", result.Receipts[0].Status)
	}
	if result.Receipts[0].StoragePath == "" {
		t.Fatalf("expected a storage path on the accepted receipt")
	}
}

func TestGateway_AdmitBatch_RejectsChecksumMismatch(t *testing.T) {
	content := []byte("some content")
	gw, tenantID := newTestGateway(t, domain.DefaultTenantConfig(), nil)

	manifest := manifestFor("batch_1", tenantID, domain.ManifestFile{
		FileID:    "file_1",
		Filename:  "a.txt",
		MIMEType:  "text/plain",
		SizeBytes: int64(len(content)),
		SHA256:    "0000000000000000000000000000000000000000000000000000000000000",
	})

	result, err := gw.AdmitBatch(context.Background(), tenantID, manifest, [][]byte{content})
	if err != nil {
		t.Fatalf("AdmitBatch: %v", err)
	}
	if result.Rejected != 1 || result.Accepted != 0 {
		t.Fatalf("expected 1 rejected file, got %+v", result)
	}
	if result.RejectedFiles[0].Reason != domain.ErrChecksumMismatch {
		t.Fatalf("expected CHECKSUM_MISMATCH, got %q", result.RejectedFiles[0].Reason)
	}
}

func TestGateway_AdmitBatch_RejectsSizeExceeded(t *testing.T) {
	content := []byte("this file is bigger than the tenant's tiny size cap allows")
	cfg := domain.DefaultTenantConfig()
	cfg.MaxFileSizeMB = 0 // any non-empty content now exceeds the cap

	gw, tenantID := newTestGateway(t, cfg, nil)
	manifest := manifestFor("batch_1", tenantID, domain.ManifestFile{
		FileID:    "file_1",
		Filename:  "a.txt",
		MIMEType:  "text/plain",
		SizeBytes: int64(len(content)),
		SHA256:    shaOf(content),
	})

	result, err := gw.AdmitBatch(context.Background(), tenantID, manifest, [][]byte{content})
	if err != nil {
		t.Fatalf("AdmitBatch: %v", err)
	}
	if result.Rejected != 1 || result.RejectedFiles[0].Reason != domain.ErrSizeExceeded {
		t.Fatalf("expected SIZE_EXCEEDED, got %+v", result)
	}
}

func TestGateway_AdmitBatch_RejectsManifestFileCountMismatch(t *testing.T) {
	gw, tenantID := newTestGateway(t, domain.DefaultTenantConfig(), nil)
	manifest := domain.BatchManifest{BatchID: "batch_1", TenantID: tenantID, FileCount: 2, Files: nil}

	_, err := gw.AdmitBatch(context.Background(), tenantID, manifest, nil)
	if err == nil {
		t.Fatalf("expected an error for a file_count mismatch")
	}
	derr, ok := err.(*domain.Error)
	if !ok || derr.Code != domain.ErrManifestFileCountMismatch {
		t.Fatalf("expected MANIFEST_FILE_COUNT_MISMATCH, got %v", err)
	}
}

func TestGateway_AdmitBatch_RejectsDuplicateFileID(t *testing.T) {
	gw, tenantID := newTestGateway(t, domain.DefaultTenantConfig(), nil)
	entry := domain.ManifestFile{FileID: "dupe", Filename: "a.txt", MIMEType: "text/plain", SHA256: shaOf([]byte("x"))}
	manifest := manifestFor("batch_1", tenantID, entry, entry)

	_, err := gw.AdmitBatch(context.Background(), tenantID, manifest, [][]byte{[]byte("x"), []byte("x")})
	derr, ok := err.(*domain.Error)
	if !ok || derr.Code != domain.ErrDuplicateFileID {
		t.Fatalf("expected DUPLICATE_FILE_ID, got %v", err)
	}
}

func TestGateway_AdmitBatch_QuarantinesInfectedFile(t *testing.T) {
	addr := fakeClamd(t, "stream: Eicar-Test-Signature FOUND\n")
	scanner := malware.NewScanner(config.MalwareScannerConfig{Addr: addr, Timeout: time.Second})

	content := []byte("eicar test content")
	gw, tenantID := newTestGateway(t, domain.DefaultTenantConfig(), scanner)
	manifest := manifestFor("batch_1", tenantID, domain.ManifestFile{
		FileID:   "file_1",
		Filename: "a.txt",
		MIMEType: "text/plain",
		SHA256:   shaOf(content),
	})

	result, err := gw.AdmitBatch(context.Background(), tenantID, manifest, [][]byte{content})
	if err != nil {
		t.Fatalf("AdmitBatch: %v", err)
	}
	if result.Quarantined != 1 || result.QuarantinedFiles[0].Reason != domain.ErrMalwareDetected {
		t.Fatalf("expected 1 quarantined file with MALWARE_DETECTED, got %+v", result)
	}
}

func TestGateway_AdmitBatch_RoutesImageToMultimodalQueue(t *testing.T) {
	content := append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, []byte("fake png body")...)
	gw, tenantID := newTestGateway(t, domain.DefaultTenantConfig(), nil)

	manifest := manifestFor("batch_1", tenantID, domain.ManifestFile{
		FileID:    "file_1",
		Filename:  "photo.png",
		MIMEType:  "image/png",
		SizeBytes: int64(len(content)),
		SHA256:    shaOf(content),
	})

	result, err := gw.AdmitBatch(context.Background(), tenantID, manifest, [][]byte{content})
	if err != nil {
		t.Fatalf("AdmitBatch: %v", err)
	}
	if result.Accepted != 1 {
		t.Fatalf("expected 1 accepted file, got %+v", result)
	}

	payload, err := gw.Queue.Pop(context.Background(), tenantID, queue.StageMultimodal, time.Second)
	if err != nil {
		t.Fatalf("pop multimodal queue: %v", err)
	}
	if payload == nil {
		t.Fatalf("expected a multimodal job, parse queue was used instead")
	}

	noParseJob, err := gw.Queue.Pop(context.Background(), tenantID, queue.StageParse, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("pop parse queue: %v", err)
	}
	if noParseJob != nil {
		t.Fatalf("image file should not also be queued for text parsing")
	}
}

func TestGateway_AdmitBatch_RejectsVideoExtension(t *testing.T) {
	content := []byte("This is plain text content wearing a video file's extension.")
	gw, tenantID := newTestGateway(t, domain.DefaultTenantConfig(), nil)

	manifest := manifestFor("batch_1", tenantID, domain.ManifestFile{
		FileID:    "file_1",
		Filename:  "clip.mp4",
		MIMEType:  "text/plain",
		SizeBytes: int64(len(content)),
		SHA256:    shaOf(content),
	})

	result, err := gw.AdmitBatch(context.Background(), tenantID, manifest, [][]byte{content})
	if err != nil {
		t.Fatalf("AdmitBatch: %v", err)
	}
	if result.Rejected != 1 || result.Accepted != 0 {
		t.Fatalf("expected 1 rejected file, got %+v", result)
	}
	if result.RejectedFiles[0].Reason != domain.ErrUnsupportedFormat {
		t.Fatalf("expected UNSUPPORTED_FORMAT, got %q", result.RejectedFiles[0].Reason)
	}

	noMultimodalJob, err := gw.Queue.Pop(context.Background(), tenantID, queue.StageMultimodal, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("pop multimodal queue: %v", err)
	}
	if noMultimodalJob != nil {
		t.Fatalf("video file should not be routed to the multimodal queue")
	}

	noParseJob, err := gw.Queue.Pop(context.Background(), tenantID, queue.StageParse, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("pop parse queue: %v", err)
	}
	if noParseJob != nil {
		t.Fatalf("video file should not be routed to the parse queue either")
	}
}

// fakeClamd spins up a minimal clamd INSTREAM responder for the quarantine
// test; it mirrors the protocol fake used in internal/malware's own tests.
func fakeClamd(t *testing.T, response string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		cmd := make([]byte, len("zINSTREAM\x00"))
		if _, err := io.ReadFull(conn, cmd); err != nil {
			return
		}
		lenBuf := make([]byte, 4)
		for {
			if _, err := io.ReadFull(conn, lenBuf); err != nil {
				return
			}
			n := binary.BigEndian.Uint32(lenBuf)
			if n == 0 {
				break
			}
			if _, err := io.CopyN(io.Discard, conn, int64(n)); err != nil {
				return
			}
		}
		_, _ = conn.Write([]byte(response))
	}()

	return ln.Addr().String()
}
