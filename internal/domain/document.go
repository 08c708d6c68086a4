package domain

import "time"

// ElementType is the canonical element classification a parsed chunk falls
// into, mirroring the fixed set the Parse Worker normalizes every upstream
// parser's element taxonomy down to.
type ElementType string

const (
	ElementParagraph     ElementType = "paragraph"
	ElementTable         ElementType = "table"
	ElementHeading       ElementType = "heading"
	ElementListItem      ElementType = "list_item"
	ElementFigureCaption ElementType = "figure_caption"
)

// Section is a heading-delimited span of the source document.
type Section struct {
	SectionID string `json:"section_id"`
	Title     string `json:"title"`
	Level     int    `json:"level"`
	Page      int    `json:"page"`
	StartChar int    `json:"start_char"`
	EndChar   int    `json:"end_char"`
}

// Table is an extracted tabular region, flattened to rows of string cells.
type Table struct {
	TableID   string     `json:"table_id"`
	Page      int        `json:"page"`
	Rows      int        `json:"rows"`
	Columns   int        `json:"columns"`
	Cells     [][]string `json:"cells"`
	StartChar int        `json:"start_char"`
	EndChar   int        `json:"end_char"`
}

// Figure is an extracted image region with an optional caption.
type Figure struct {
	FigureID  string  `json:"figure_id"`
	Page      int     `json:"page"`
	Caption   *string `json:"caption"`
	StartChar int     `json:"start_char"`
	EndChar   int     `json:"end_char"`
}

// ChunkMetadata carries section context that survived chunking, when known.
type ChunkMetadata struct {
	SectionTitle *string `json:"section_title,omitempty"`
	HeadingLevel *int    `json:"heading_level,omitempty"`
}

// Chunk is one embeddable unit of text, positioned by page and byte offset
// within that page so its ChunkID is reproducible from the document alone.
type Chunk struct {
	ChunkID     string        `json:"chunk_id"`
	Text        string        `json:"text"`
	Page        int           `json:"page"`
	StartChar   int           `json:"start_char"`
	EndChar     int           `json:"end_char"`
	ElementType ElementType   `json:"element_type"`
	Metadata    ChunkMetadata `json:"metadata"`
}

// Lineage records what produced this document and from what raw bytes, so a
// re-parse can be verified bit-identical against a prior run.
type Lineage struct {
	RawSHA256          string    `json:"raw_sha256"`
	Stage1ParserVersion string   `json:"stage1_parser_version"`
	Stage2ParserVersion string   `json:"stage2_parser_version"`
	ParseTimestamp      time.Time `json:"parse_timestamp"`
}

// DroppedContent records an upstream element the parser could not retain.
type DroppedContent struct {
	ElementType string `json:"element_type"`
	Page        int    `json:"page"`
	Reason      string `json:"reason"`
}

// Stats summarizes the parse for monitoring and for the audit trail.
type Stats struct {
	PageCount        int              `json:"page_count"`
	SectionCount     int              `json:"section_count"`
	TableCount       int              `json:"table_count"`
	FigureCount      int              `json:"figure_count"`
	ChunkCount       int              `json:"chunk_count"`
	TotalCharacters  int              `json:"total_characters"`
	OCRPages         int              `json:"ocr_pages"`
	OCRAvgConfidence *float64         `json:"ocr_avg_confidence,omitempty"`
	DroppedContent   []DroppedContent `json:"dropped_content"`
}

// CanonicalDocument is the Parse Worker's output: every downstream stage
// (Policy Engine, Embed & Index Worker) consumes this shape exclusively and
// never re-reads raw source bytes.
type CanonicalDocument struct {
	DocID        string    `json:"doc_id"`
	FileID       string    `json:"file_id"`
	TenantID     string    `json:"tenant_id"`
	Sections     []Section `json:"sections"`
	Tables       []Table   `json:"tables"`
	Figures      []Figure  `json:"figures"`
	ReadingOrder []string  `json:"reading_order"`
	Chunks       []Chunk   `json:"chunks"`
	Lineage      Lineage   `json:"lineage"`
	Stats        Stats     `json:"stats"`
}
