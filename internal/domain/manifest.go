package domain

// ManifestFile is one entry in a Batch Manifest: the submitter's declared
// facts about a file, checked against the bytes actually received.
type ManifestFile struct {
	FileID      string         `json:"file_id"`
	Filename    string         `json:"filename"`
	MIMEType    string         `json:"mime_type"`
	SizeBytes   int64          `json:"size_bytes"`
	SHA256      string         `json:"sha256"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// BatchManifest accompanies a file bundle submitted to the Intake Gateway.
type BatchManifest struct {
	BatchID   string         `json:"batch_id"`
	TenantID  string         `json:"tenant_id"`
	FileCount int            `json:"file_count"`
	Files     []ManifestFile `json:"files"`
}
