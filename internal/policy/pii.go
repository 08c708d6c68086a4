package policy

import (
	"regexp"

	"ingestpipe/internal/domain"
)

// piiPattern pairs a PII code with the regex that detects it. No
// entity-recognition library in the retrieval pack offers a Go surface
// (the source system used Presidio, a Python-only NLP library with no
// in-pack equivalent), so detection here is regex-based per entity type —
// adequate for the closed, format-shaped entity set §4.4 names by default
// (SSN, DOB, EMAIL) and extended to the rest of the glossary's PII codes
// that have a reliably regex-shaped form.
var piiPatterns = map[domain.PIIType]*regexp.Regexp{
	domain.PIISSN:    regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	domain.PIIDOB:    regexp.MustCompile(`\b(0[1-9]|1[0-2])[/-](0[1-9]|[12]\d|3[01])[/-](19|20)\d{2}\b`),
	domain.PIIEmail:  regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`),
	domain.PIIPhone:  regexp.MustCompile(`\b(\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]\d{3}[-.\s]\d{4}\b`),
	domain.PIIFinancialAccount: regexp.MustCompile(`\b\d{10,17}\b`),
}

// pii1Result is Gate 1's verdict for one chunk's text.
type pii1Result struct {
	found        []domain.PIIType
	scanResult   domain.PIIScanResult
	actionTaken  domain.PIIPolicyAction
	modifiedText string
}

// gate1PII scans text for the tenant's configured PII types and applies
// the tenant's configured action: BLOCK drops the whole document upstream
// (the caller checks scanResult==blocked), REDACT returns modifiedText
// with detected spans replaced, FLAG leaves text untouched.
func gate1PII(text string, cfg domain.TenantConfig) pii1Result {
	types := cfg.PIITypes
	if len(types) == 0 {
		types = []domain.PIIType{domain.PIISSN, domain.PIIDOB, domain.PIIEmail}
	}

	var found []domain.PIIType
	spans := make(map[domain.PIIType][][]int)
	for _, t := range types {
		re, ok := piiPatterns[t]
		if !ok {
			continue
		}
		idx := re.FindAllStringIndex(text, -1)
		if len(idx) > 0 {
			found = append(found, t)
			spans[t] = idx
		}
	}

	if len(found) == 0 {
		return pii1Result{scanResult: domain.PIIScanClean, actionTaken: ""}
	}

	switch cfg.PIIPolicy {
	case domain.PIIActionBlock:
		return pii1Result{found: found, scanResult: domain.PIIScanBlocked, actionTaken: domain.PIIActionBlock}
	case domain.PIIActionRedact:
		return pii1Result{found: found, scanResult: domain.PIIScanRedacted, actionTaken: domain.PIIActionRedact, modifiedText: redactSpans(text, types)}
	default:
		return pii1Result{found: found, scanResult: domain.PIIScanFound, actionTaken: domain.PIIActionFlag}
	}
}

// redactSpans replaces every detected span of every pii type with
// [REDACTED:ENTITY], scanning left to right so overlapping replacements
// never double-consume text.
func redactSpans(text string, types []domain.PIIType) string {
	type span struct {
		start, end int
		entity     domain.PIIType
	}
	var spans []span
	for _, t := range types {
		re, ok := piiPatterns[t]
		if !ok {
			continue
		}
		for _, loc := range re.FindAllStringIndex(text, -1) {
			spans = append(spans, span{start: loc[0], end: loc[1], entity: t})
		}
	}
	if len(spans) == 0 {
		return text
	}

	// Sort by start offset; drop spans that overlap an already-accepted one.
	for i := 1; i < len(spans); i++ {
		for j := i; j > 0 && spans[j-1].start > spans[j].start; j-- {
			spans[j-1], spans[j] = spans[j], spans[j-1]
		}
	}
	var accepted []span
	lastEnd := -1
	for _, s := range spans {
		if s.start >= lastEnd {
			accepted = append(accepted, s)
			lastEnd = s.end
		}
	}

	var out []byte
	cursor := 0
	for _, s := range accepted {
		out = append(out, text[cursor:s.start]...)
		out = append(out, []byte("[REDACTED:"+string(s.entity)+"]")...)
		cursor = s.end
	}
	out = append(out, text[cursor:]...)
	return string(out)
}
