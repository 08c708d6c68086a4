// Package policy implements the Policy Engine (§4.4): three sequential
// gates — PII, classification, and prompt-injection defense — applied to
// every parsed document before its chunks reach the embed queue.
package policy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ingestpipe/internal/audit"
	"ingestpipe/internal/config"
	"ingestpipe/internal/domain"
	"ingestpipe/internal/queue"
)

// headerSampleChunks/headerSampleChars bound how much of a document the
// classification gate reads: a document-level category is cheap to get
// right from the opening chunks and expensive to recompute per chunk.
const (
	headerSampleChunks = 5
	headerSampleChars  = 3000
)

// Engine wires the three gates to the audit log and the embed queue.
type Engine struct {
	auditLog audit.Log
	queue    *queue.Queue
	assist   *AssistClient
}

// New builds an Engine. assist may be nil (NewAssistClient returns nil
// when unconfigured); the classification gate degrades to rules-only.
func New(auditLog audit.Log, q *queue.Queue, assist *AssistClient) *Engine {
	return &Engine{auditLog: auditLog, queue: q, assist: assist}
}

// NewAssistFromConfig is a convenience constructor so callers need not
// import the Anthropic SDK types directly to wire the Engine.
func NewAssistFromConfig(cfg config.ClassificationAssistConfig) *AssistClient {
	return NewAssistClient(cfg)
}

// Result is the outcome of running every gate over one document.
type Result struct {
	Document   domain.CanonicalDocument
	Chunks     []domain.PolicyEnrichedChunk
	Blocked    bool
	BlockedWhy string
}

// Apply runs all three gates over doc's chunks and, unless the document is
// blocked outright, pushes the surviving chunks to the embed queue and
// records a DOCUMENT_POLICY_APPLIED audit event.
func (e *Engine) Apply(ctx context.Context, doc domain.CanonicalDocument, filename string, cfg domain.TenantConfig) (Result, error) {
	header := headerSample(doc.Chunks)

	class := gate2Classification(ctx, filename, header, cfg, e.assist)

	enriched := make([]domain.PolicyEnrichedChunk, 0, len(doc.Chunks))
	anyQuarantined := false
	blockedOnPII := false

	for _, chunk := range doc.Chunks {
		pii := gate1PII(chunk.Text, cfg)
		text := chunk.Text
		if pii.scanResult == domain.PIIScanRedacted {
			text = pii.modifiedText
		}
		if pii.scanResult == domain.PIIScanBlocked {
			blockedOnPII = true
		}

		matches := scanInjectionPatterns(text)
		score := computeInjectionScore(text, matches)
		injectionAction := injectionActionFor(score, cfg)
		if injectionAction == domain.InjectionQuarantine {
			anyQuarantined = true
		}

		patternNames := make([]string, 0, len(matches))
		for _, m := range matches {
			patternNames = append(patternNames, m.category)
		}

		out := chunk
		out.Text = text
		ec := domain.PolicyEnrichedChunk{
			Chunk: out,

			PIIScanResult:  pii.scanResult,
			PIITypesFound:  pii.found,
			PIIActionTaken: pii.actionTaken,

			Classification:           class.Category,
			ClassificationConfidence: class.Confidence,
			ClassificationSource:     class.Source,

			InjectionScore:           score,
			InjectionPatternsMatched: patternNames,
			InjectionActionTaken:     injectionAction,
		}
		enriched = append(enriched, ec)
	}

	result := Result{Document: doc, Chunks: enriched}

	if blockedOnPII {
		result.Blocked = true
		result.BlockedWhy = "pii_policy_block"
		result.Chunks = nil
	} else if cfg.InjectionPerDocumentQuarantine && anyQuarantined {
		result.Blocked = true
		result.BlockedWhy = "injection_quarantine"
		result.Chunks = nil
	} else {
		var surviving []domain.PolicyEnrichedChunk
		for _, c := range enriched {
			if !c.Blocked() {
				surviving = append(surviving, c)
			}
		}
		result.Chunks = surviving
	}

	if err := e.recordAndForward(ctx, doc, result); err != nil {
		return result, err
	}
	return result, nil
}

func (e *Engine) recordAndForward(ctx context.Context, doc domain.CanonicalDocument, result Result) error {
	passCount, quarantineCount := 0, 0
	for _, c := range result.Chunks {
		if c.Blocked() {
			quarantineCount++
		} else {
			passCount++
		}
	}

	eventType := domain.EventDocumentPolicyApplied
	details := map[string]any{
		"chunk_count":      len(doc.Chunks),
		"pass_count":       passCount,
		"quarantine_count": quarantineCount,
		"blocked":          result.Blocked,
	}
	if result.Blocked {
		details["blocked_reason"] = result.BlockedWhy
		eventType = domain.EventDocumentQuarantined
	}

	if e.auditLog != nil {
		event := domain.Event{
			EventID:      "evt_" + uuid.NewString(),
			TenantID:     doc.TenantID,
			EventType:    eventType,
			Timestamp:    time.Now().UTC(),
			ResourceType: "document",
			ResourceID:   doc.DocID,
			Details:      details,
		}
		if err := e.auditLog.Append(ctx, event); err != nil {
			return fmt.Errorf("append policy audit event: %w", err)
		}
	}

	if result.Blocked || len(result.Chunks) == 0 {
		return nil
	}

	if e.queue != nil {
		job := domain.EmbedJob{
			DocID:    doc.DocID,
			FileID:   doc.FileID,
			TenantID: doc.TenantID,
			Chunks:   result.Chunks,
		}
		if err := e.queue.Push(ctx, doc.TenantID, queue.StageEmbedding, job); err != nil {
			return fmt.Errorf("push embed job: %w", err)
		}
	}
	return nil
}

// injectionActionFor maps a score to pass/flag/quarantine using the
// tenant's configured thresholds, falling back to the defaults when unset.
func injectionActionFor(score float64, cfg domain.TenantConfig) domain.InjectionAction {
	flagAt := cfg.InjectionFlagThreshold
	quarantineAt := cfg.InjectionQuarantineThreshold
	if quarantineAt <= 0 {
		quarantineAt = 0.7
	}
	if flagAt <= 0 {
		flagAt = 0.3
	}
	switch {
	case score >= quarantineAt:
		return domain.InjectionQuarantine
	case score >= flagAt:
		return domain.InjectionFlag
	default:
		return domain.InjectionPass
	}
}

// headerSample concatenates the first headerSampleChunks chunks, capped at
// headerSampleChars, as the text the classification gate reads.
func headerSample(chunks []domain.Chunk) string {
	var sb strings.Builder
	n := len(chunks)
	if n > headerSampleChunks {
		n = headerSampleChunks
	}
	for i := 0; i < n; i++ {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(chunks[i].Text)
		if sb.Len() >= headerSampleChars {
			break
		}
	}
	s := sb.String()
	if len(s) > headerSampleChars {
		s = s[:headerSampleChars]
	}
	return s
}
