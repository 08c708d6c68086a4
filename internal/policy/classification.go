package policy

import (
	"context"
	"net/http"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"ingestpipe/internal/config"
	"ingestpipe/internal/domain"
)

// classRule is one filename or header-keyword signal feeding Gate 2's
// rule engine: if its pattern is present in the relevant text, it casts a
// vote of the given confidence for category.
type classRule struct {
	category   domain.Classification
	confidence float64
	match      func(filenameLower, headerUpper string) bool
}

func contains(haystack, needle string) bool { return strings.Contains(haystack, needle) }

// classificationRules is the closed rule table: a filename signal carries
// slightly higher confidence than a header-keyword signal, matching how
// confidently a named file extension predicts its own content versus a
// few keywords appearing in the document's opening text.
var classificationRules = []classRule{
	{domain.ClassContract, 0.85, func(f, _ string) bool { return contains(f, "contract") || contains(f, "agreement") }},
	{domain.ClassInvoice, 0.85, func(f, _ string) bool { return contains(f, "invoice") || contains(f, "bill") }},
	{domain.ClassSOP, 0.85, func(f, _ string) bool { return contains(f, "sop") || contains(f, "procedure") }},
	{domain.ClassPolicy, 0.85, func(f, _ string) bool { return contains(f, "policy") }},
	{domain.ClassLegalFiling, 0.85, func(f, _ string) bool { return contains(f, "legal") || contains(f, "court") || contains(f, "filing") }},
	{domain.ClassCorrespondence, 0.75, func(f, _ string) bool { return contains(f, "letter") || contains(f, "email") || contains(f, "correspondence") }},

	{domain.ClassContract, 0.8, func(_, h string) bool { return contains(h, "AGREEMENT") || contains(h, "CONTRACT") }},
	{domain.ClassInvoice, 0.8, func(_, h string) bool { return contains(h, "INVOICE") || contains(h, "BILL TO") }},
	{domain.ClassSOP, 0.8, func(_, h string) bool { return contains(h, "STANDARD OPERATING PROCEDURE") || contains(h, "SOP") }},
	{domain.ClassPolicy, 0.75, func(_, h string) bool { return contains(h, "POLICY") && contains(h, "DOCUMENT") }},
}

// class2Result is Gate 2's verdict for one document.
type class2Result struct {
	Category   domain.Classification
	Confidence float64
	Source     domain.ClassificationSource
}

// categoryRank supports the exact-tie precedence from
// domain.ClassificationOrder (earlier category wins a tie).
func categoryRank(c domain.Classification) int {
	for i, candidate := range domain.ClassificationOrder {
		if candidate == c {
			return i
		}
	}
	return len(domain.ClassificationOrder)
}

// gate2Classification evaluates the rule table once per document against
// its filename and the first headerSampleChars of its extracted text,
// picks the highest-confidence match (ties broken by category order), and
// falls back to ("other", 0.5) when nothing matched. When an assist client
// is supplied and the winning confidence falls within [threshold-0.15,
// threshold), the LLM tiebreak supplement is consulted before the rule
// verdict is accepted as final.
func gate2Classification(ctx context.Context, filename, headerSample string, cfg domain.TenantConfig, assist *AssistClient) class2Result {
	filenameLower := strings.ToLower(filename)
	headerUpper := strings.ToUpper(headerSample)

	var best *classRule
	for i := range classificationRules {
		r := &classificationRules[i]
		if !r.match(filenameLower, headerUpper) {
			continue
		}
		if best == nil ||
			r.confidence > best.confidence ||
			(r.confidence == best.confidence && categoryRank(r.category) < categoryRank(best.category)) {
			best = r
		}
	}

	if best == nil {
		return class2Result{Category: domain.ClassOther, Confidence: 0.5, Source: domain.ClassificationSourceRules}
	}

	result := class2Result{Category: best.category, Confidence: best.confidence, Source: domain.ClassificationSourceRules}

	threshold := cfg.ClassificationThreshold
	if threshold <= 0 {
		threshold = 0.7
	}
	lowerBand := threshold - 0.15
	if assist != nil && result.Confidence >= lowerBand && result.Confidence < threshold {
		if assisted, ok := assist.Classify(ctx, headerSample); ok {
			return class2Result{Category: assisted, Confidence: threshold, Source: domain.ClassificationSourceLLMAssist}
		}
	}

	if result.Confidence < threshold {
		return class2Result{Category: domain.ClassOther, Confidence: 0.5, Source: domain.ClassificationSourceRules}
	}
	return result
}

// AssistClient wraps the LLM tiebreak supplement to Gate 2: when the rule
// engine's top confidence lands just under the tenant's threshold, a single
// cheap completion call either confirms the rule verdict or nudges it
// across the line, rather than silently falling back to "other".
type AssistClient struct {
	sdk   anthropic.Client
	model string
}

// NewAssistClient returns nil when no API key is configured, so callers can
// pass the result straight into gate2Classification unconditionally.
func NewAssistClient(cfg config.ClassificationAssistConfig) *AssistClient {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")))
	}
	model := cfg.Model
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	return &AssistClient{sdk: anthropic.NewClient(opts...), model: model}
}

// Classify asks the model to pick one category label for the sample text.
// A malformed or unrecognized reply is treated as "no opinion" (ok=false)
// so the rule engine's own verdict is never discarded on a parsing failure.
func (c *AssistClient) Classify(ctx context.Context, sample string) (domain.Classification, bool) {
	if c == nil {
		return "", false
	}
	if len(sample) > 3000 {
		sample = sample[:3000]
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 16,
		System: []anthropic.TextBlockParam{{
			Text: "Classify the document excerpt into exactly one category: contract, invoice, SOP, policy, correspondence, legal_filing, other. Reply with only the category label.",
		}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(sample)),
		},
	}

	resp, err := c.sdk.Messages.New(ctx, params)
	if err != nil || resp == nil {
		return "", false
	}

	var label strings.Builder
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			label.WriteString(text.Text)
		}
	}

	return parseCategoryLabel(label.String())
}

func parseCategoryLabel(s string) (domain.Classification, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, c := range domain.ClassificationOrder {
		if strings.Contains(s, strings.ToLower(string(c))) {
			return c, true
		}
	}
	return "", false
}
