package domain

// PIIType is a closed code for a detectable personal-data category.
type PIIType string

const (
	PIISSN              PIIType = "SSN"
	PIIDOB              PIIType = "DOB"
	PIIEmail            PIIType = "EMAIL"
	PIIPhone            PIIType = "PHONE"
	PIIName             PIIType = "NAME"
	PIIAddress          PIIType = "ADDRESS"
	PIIFinancialAccount PIIType = "FINANCIAL_ACCOUNT"
	PIIDriversLicense   PIIType = "DRIVERS_LICENSE"
	PIIMedicalRecord    PIIType = "MEDICAL_RECORD"
)

// PIIPolicyAction is the tenant-configured response to a PII hit.
type PIIPolicyAction string

const (
	PIIActionRedact PIIPolicyAction = "REDACT"
	PIIActionFlag   PIIPolicyAction = "FLAG"
	PIIActionBlock  PIIPolicyAction = "BLOCK"
)

// PIIScanResult is the per-chunk outcome after Gate 1 runs.
type PIIScanResult string

const (
	PIIScanClean    PIIScanResult = "clean"
	PIIScanFound    PIIScanResult = "pii_found"
	PIIScanRedacted PIIScanResult = "redacted"
	PIIScanBlocked  PIIScanResult = "blocked"
)

// Classification is the closed document-category set Gate 2 assigns.
// Order matters: it is also the tiebreak order for equal-confidence rules.
type Classification string

const (
	ClassContract       Classification = "contract"
	ClassInvoice        Classification = "invoice"
	ClassSOP            Classification = "SOP"
	ClassPolicy         Classification = "policy"
	ClassCorrespondence Classification = "correspondence"
	ClassLegalFiling    Classification = "legal_filing"
	ClassOther          Classification = "other"
)

// ClassificationOrder lists the categories in tiebreak precedence.
var ClassificationOrder = []Classification{
	ClassContract, ClassInvoice, ClassSOP, ClassPolicy,
	ClassCorrespondence, ClassLegalFiling, ClassOther,
}

// ClassificationSource records whether a classification came from the rule
// engine alone or was adjusted by the LLM-assisted tiebreak supplement.
type ClassificationSource string

const (
	ClassificationSourceRules ClassificationSource = "rules"
	ClassificationSourceLLMAssist ClassificationSource = "llm_assist"
)

// InjectionAction is the per-chunk outcome after Gate 3 runs.
type InjectionAction string

const (
	InjectionPass       InjectionAction = "pass"
	InjectionFlag       InjectionAction = "flag"
	InjectionQuarantine InjectionAction = "quarantine"
)

// PolicyEnrichedChunk is a Chunk plus every governance verdict attached to
// it. Chunks with PIIActionTaken=blocked or InjectionActionTaken=quarantine
// never reach the embed queue.
type PolicyEnrichedChunk struct {
	Chunk

	PIIScanResult   PIIScanResult   `json:"pii_scan_result"`
	PIITypesFound   []PIIType       `json:"pii_types_found"`
	PIIActionTaken  PIIPolicyAction `json:"pii_action_taken"`

	Classification           Classification       `json:"classification"`
	ClassificationConfidence float64              `json:"classification_confidence"`
	ClassificationSource     ClassificationSource `json:"classification_source"`

	InjectionScore             float64         `json:"injection_score"`
	InjectionPatternsMatched   []string        `json:"injection_patterns_matched"`
	InjectionActionTaken       InjectionAction `json:"injection_action_taken"`
}

// Blocked reports whether the chunk must be dropped before the embed queue.
func (c PolicyEnrichedChunk) Blocked() bool {
	return c.PIIActionTaken == PIIActionBlock || c.InjectionActionTaken == InjectionQuarantine
}
