// Package parse implements the Parse Worker (§4.3): it turns raw document
// bytes into a domain.CanonicalDocument by extracting text, splitting it
// into title-delimited chunks, and classifying each chunk's element type.
//
// Text/CSV extraction is direct byte decoding; every other supported MIME
// type is decoded best-effort as UTF-8 rather than run through a format-
// specific extractor, since no PDF/DOCX text-extraction library appears
// anywhere in the retrieval pack (see DESIGN.md). The chunk-by-title
// splitting and element-type normalization this package performs is
// unaffected by that simplification — it operates on whatever text the
// extraction step produced.
package parse

import (
	"bytes"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"ingestpipe/internal/domain"
)

const parserVersion = "ingestpipe-parse/1"

// chunk tuning mirrors the title-chunking knobs used by the system this
// pipeline was modeled on: merge small runs, split overlong ones.
const (
	maxChunkChars          = 1500
	splitAfterChars        = 1200
	combineUnderChars       = 400
)

// Error is returned when a document cannot be parsed at all (maps to
// domain.ErrParserError / domain.ErrFileCorrupted upstream).
type Error struct {
	Code    domain.ErrorCode
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

// Parse turns raw document bytes into a CanonicalDocument. fileID and
// sha256 must already be computed by the caller (the Intake Gateway
// computes sha256 during validation; re-hashing here would be redundant).
func Parse(fileID, tenantID, sha256, mimeType string, content []byte) (domain.CanonicalDocument, error) {
	if len(content) == 0 {
		return domain.CanonicalDocument{}, &Error{Code: domain.ErrFileCorrupted, Message: "empty file content"}
	}

	text, dropped := extractText(mimeType, content)
	if strings.TrimSpace(text) == "" {
		return domain.CanonicalDocument{}, &Error{Code: domain.ErrParserError, Message: "no content extracted"}
	}

	docID := domain.DocID(fileID)
	titledChunks := splitByTitle(text)

	chunks := make([]domain.Chunk, 0, len(titledChunks))
	var tableCount, figureCount, totalChars int
	var currentSectionTitle *string

	for _, tc := range titledChunks {
		start := tc.startChar
		end := tc.endChar
		page := 1 // plain-text extraction carries no page boundaries
		totalChars += end - start

		if tc.elementType == domain.ElementHeading {
			title := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(tc.text), "#"))
			currentSectionTitle = &title
		}

		meta := domain.ChunkMetadata{}
		if currentSectionTitle != nil && tc.elementType != domain.ElementHeading {
			meta.SectionTitle = currentSectionTitle
		}

		chunks = append(chunks, domain.Chunk{
			ChunkID:     domain.ChunkID(docID, page, start, end),
			Text:        tc.text,
			Page:        page,
			StartChar:   start,
			EndChar:     end,
			ElementType: tc.elementType,
			Metadata:    meta,
		})

		switch tc.elementType {
		case domain.ElementTable:
			tableCount++
		case domain.ElementFigureCaption:
			figureCount++
		}
	}

	doc := domain.CanonicalDocument{
		DocID:    docID,
		FileID:   fileID,
		TenantID: tenantID,
		Chunks:   chunks,
		Lineage: domain.Lineage{
			RawSHA256:           sha256,
			Stage1ParserVersion: parserVersion,
			Stage2ParserVersion: parserVersion,
			ParseTimestamp:      time.Now().UTC(),
		},
		Stats: domain.Stats{
			PageCount:       1,
			TableCount:      tableCount,
			FigureCount:     figureCount,
			ChunkCount:      len(chunks),
			TotalCharacters: totalChars,
			DroppedContent:  dropped,
		},
	}
	return doc, nil
}

// extractText decodes content to text. Content that is not valid UTF-8,
// whatever its MIME type, has its invalid byte sequences stripped and the
// loss recorded as dropped content; valid UTF-8 is returned unchanged.
func extractText(mimeType string, content []byte) (string, []domain.DroppedContent) {
	if !utf8.Valid(content) {
		// Best-effort: strip invalid sequences rather than fail the whole
		// document, recording the loss for the audit trail.
		valid := bytes.ToValidUTF8(content, nil)
		return string(valid), []domain.DroppedContent{{
			ElementType: "binary",
			Page:        1,
			Reason:      "non-UTF-8 byte sequences replaced during extraction for mime_type=" + mimeType,
		}}
	}
	return string(content), nil
}

type titledChunk struct {
	text        string
	elementType domain.ElementType
	startChar   int
	endChar     int
}

// splitByTitle implements the element-typed, title-delimited chunking the
// original pipeline's chunk_by_title performed: headings are hard boundaries,
// blank-line paragraph breaks are soft boundaries once a chunk exceeds
// splitAfterChars, and non-heading chunks smaller than combineUnderChars
// are merged into the next chunk when it has the same element type.
func splitByTitle(text string) []titledChunk {
	lines := strings.Split(text, "\n")

	var raw []titledChunk
	var buf strings.Builder
	bufStart := 0
	pos := 0
	bufIsHeading := false

	flush := func(end int) {
		s := strings.TrimSpace(buf.String())
		if s != "" {
			elemType := domain.ElementParagraph
			if bufIsHeading {
				elemType = domain.ElementHeading
			} else if isListItem(s) {
				elemType = domain.ElementListItem
			} else if isTableLike(s) {
				elemType = domain.ElementTable
			}
			raw = append(raw, titledChunk{text: s, elementType: elemType, startChar: bufStart, endChar: end})
		}
		buf.Reset()
		bufIsHeading = false
	}

	// appendSpan writes s (starting at absolute offset absStart) into buf,
	// hard-splitting on maxChunkChars whenever a single unbroken span would
	// otherwise overflow it — chunk_by_title enforces max_characters as a
	// true character-length cap, not just a between-lines one, so a single
	// line longer than maxChunkChars must still be split mid-line.
	appendSpan := func(s string, absStart int) {
		for len(s) > 0 {
			room := maxChunkChars - buf.Len()
			if room <= 0 {
				flush(absStart)
				bufStart = absStart
				room = maxChunkChars
			}
			if len(s) <= room {
				buf.WriteString(s)
				absStart += len(s)
				s = ""
			} else {
				buf.WriteString(s[:room])
				absStart += room
				s = s[room:]
				flush(absStart)
				bufStart = absStart
			}
		}
	}

	for i, ln := range lines {
		lineStart := pos
		lineLen := len(ln)
		isHeading := looksLikeHeading(ln)
		isBlank := strings.TrimSpace(ln) == ""

		if isHeading && buf.Len() > 0 {
			flush(lineStart)
			bufStart = lineStart
		}
		if buf.Len() == 0 {
			bufStart = lineStart
		}
		if isHeading {
			bufIsHeading = true
		}
		if !isBlank {
			sepPos := lineStart
			if buf.Len() > 0 {
				if buf.Len()+1 > maxChunkChars {
					flush(sepPos)
					bufStart = sepPos
				} else {
					buf.WriteString("\n")
				}
			}
			appendSpan(ln, sepPos)
		}

		nextPos := lineStart + lineLen + 1 // +1 for the stripped newline
		pos = nextPos

		if isHeading {
			flush(nextPos)
			bufStart = nextPos
			continue
		}
		if isBlank && buf.Len() >= splitAfterChars {
			flush(nextPos)
			bufStart = nextPos
		}
		if buf.Len() >= maxChunkChars {
			flush(nextPos)
			bufStart = nextPos
		}
		_ = i
	}
	flush(pos)

	return mergeSmallChunks(raw)
}

// mergeSmallChunks folds any non-heading chunk under combineUnderChars
// into the following chunk of the same element type, matching chunk_by_title's
// combine_text_under_n_chars behavior.
func mergeSmallChunks(chunks []titledChunk) []titledChunk {
	if len(chunks) == 0 {
		return chunks
	}
	var out []titledChunk
	for _, c := range chunks {
		if len(out) > 0 {
			prev := out[len(out)-1]
			if prev.elementType != domain.ElementHeading && len(prev.text) < combineUnderChars && prev.elementType == c.elementType {
				out[len(out)-1] = titledChunk{
					text:        prev.text + "\n" + c.text,
					elementType: prev.elementType,
					startChar:   prev.startChar,
					endChar:     c.endChar,
				}
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

func looksLikeHeading(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	if strings.HasPrefix(trimmed, "#") {
		return true
	}
	// All-caps short lines with no trailing punctuation read as section
	// titles in plain-text extractions that carry no markdown.
	if len(trimmed) <= 80 && trimmed == strings.ToUpper(trimmed) && strings.ToUpper(trimmed) != strings.ToLower(trimmed) {
		return !strings.HasSuffix(trimmed, ".")
	}
	return false
}

func isListItem(s string) bool {
	trimmed := strings.TrimSpace(s)
	return strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") || strings.HasPrefix(trimmed, "• ")
}

func isTableLike(s string) bool {
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return false
	}
	delimited := 0
	for _, ln := range lines {
		if strings.Count(ln, "\t") >= 1 || strings.Count(ln, "|") >= 2 {
			delimited++
		}
	}
	return delimited == len(lines)
}
