package domain

// LifecycleState is a tenant's place in its PENDING → ACTIVE → SUSPENDED →
// DELETED progression.
type LifecycleState string

const (
	TenantPending   LifecycleState = "PENDING"
	TenantActive    LifecycleState = "ACTIVE"
	TenantSuspended LifecycleState = "SUSPENDED"
	TenantDeleted   LifecycleState = "DELETED"
)

// TenantConfig is the closed set of options a tenant may set, replacing the
// source system's free-form config bag (§9 Design Notes: dynamic config
// bags must become an explicit, schema-validated structure). Registries
// take and return this struct as is: no check rejects JSON keys outside
// it, and such keys in a stored config document are dropped on decode.
type TenantConfig struct {
	MIMEAllowlist  []string `json:"mime_allowlist"`
	MaxFileSizeMB  int64    `json:"max_file_size_mb"`

	PIIPolicy PIIPolicyAction `json:"pii_policy"`
	PIITypes  []PIIType       `json:"pii_types"`

	ClassificationThreshold float64 `json:"classification_threshold"`

	InjectionFlagThreshold         float64 `json:"injection_flag_threshold"`
	InjectionQuarantineThreshold   float64 `json:"injection_quarantine_threshold"`
	InjectionPerDocumentQuarantine bool    `json:"injection_per_document_quarantine"`

	// RequireMalwareScan is a supplement: when true, an unreachable malware
	// daemon fails the file instead of admitting it with scan_result=skipped.
	RequireMalwareScan bool `json:"require_malware_scan"`

	// MetadataSchema is an optional JSON-Schema document (supplement) that
	// custom per-file metadata submitted with a batch must validate against.
	MetadataSchema map[string]any `json:"metadata_schema,omitempty"`
}

// DefaultMIMEAllowlist mirrors the tenant-configurable default in §4.1.
var DefaultMIMEAllowlist = []string{
	"application/pdf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"text/plain",
	"text/csv",
	"image/png",
	"image/tiff",
}

// DefaultTenantConfig is applied when a tenant is created without overrides.
func DefaultTenantConfig() TenantConfig {
	return TenantConfig{
		MIMEAllowlist:                  append([]string(nil), DefaultMIMEAllowlist...),
		MaxFileSizeMB:                  500,
		PIIPolicy:                      PIIActionFlag,
		PIITypes:                       []PIIType{PIISSN, PIIDOB, PIIEmail},
		ClassificationThreshold:        0.7,
		InjectionFlagThreshold:         0.3,
		InjectionQuarantineThreshold:   0.7,
		InjectionPerDocumentQuarantine: false,
		RequireMalwareScan:             false,
	}
}

// Tenant is a control-plane record for one isolated customer scope.
type Tenant struct {
	TenantID      string         `json:"tenant_id"`
	State         LifecycleState `json:"state"`
	Config        TenantConfig   `json:"config"`
	ConfigVersion int64          `json:"config_version"`
}
