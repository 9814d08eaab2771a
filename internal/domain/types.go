// Package domain holds the core types shared across the analysis engine:
// contract categories, pipeline stages, task lifecycle states, and the
// structured payloads each reasoning stage produces.
package domain

import (
	"encoding/json"
	"time"
)

// Category identifies a contract category. Each category maps to its own
// partition of the legal-provision vector index.
type Category string

const (
	CategoryLaborEmployment     Category = "LaborEmployment"
	CategoryRealEstate          Category = "RealEstate"
	CategoryConsumerServices    Category = "ConsumerServices"
	CategoryFinanceLending      Category = "FinanceLending"
	CategoryDigitalNetwork      Category = "DigitalNetwork"
	CategoryMarriageFamily      Category = "MarriageFamily"
	CategoryBusinessCooperation Category = "BusinessCooperation"
	CategoryGeneral             Category = "General"
)

// Categories lists every supported category in a stable order.
var Categories = []Category{
	CategoryLaborEmployment,
	CategoryRealEstate,
	CategoryConsumerServices,
	CategoryFinanceLending,
	CategoryDigitalNetwork,
	CategoryMarriageFamily,
	CategoryBusinessCooperation,
	CategoryGeneral,
}

// Valid reports whether c is a supported category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Severity is the ordinal risk level attached to issues and to the
// overall report.
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// Valid reports whether s is one of the declared severity levels.
func (s Severity) Valid() bool {
	return s == SeverityLow || s == SeverityMedium || s == SeverityHigh
}

// Rank returns the ordinal position of a severity, with Low lowest.
// Unknown severities rank below Low.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	default:
		return 0
	}
}

// Stage names one step of the reasoning pipeline.
type Stage string

const (
	StageRetrieval   Stage = "retrieval"
	StageRisk        Stage = "risk_identification"
	StageNegotiation Stage = "negotiation_strategy"
	StageRevision    Stage = "revision_drafting"
)

// TaskState is a task's lifecycle state. Transitions are strictly
// forward; see Next and CanTransition.
type TaskState string

const (
	StatePending       TaskState = "PENDING"
	StateRetrieving    TaskState = "RETRIEVING"
	StateAnalyzingRisk TaskState = "ANALYZING_RISK"
	StateNegotiating   TaskState = "NEGOTIATING"
	StateRevising      TaskState = "REVISING"
	StateCompleted     TaskState = "COMPLETED"
	StateFailed        TaskState = "FAILED"
)

// Terminal reports whether no further transitions are allowed from s.
func (s TaskState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// order assigns each non-terminal state its position in the pipeline.
var stateOrder = map[TaskState]int{
	StatePending:       0,
	StateRetrieving:    1,
	StateAnalyzingRisk: 2,
	StateNegotiating:   3,
	StateRevising:      4,
	StateCompleted:     5,
}

// CanTransition reports whether moving from s to next is legal: either
// the single forward step in the pipeline, or FAILED from any
// non-terminal state. States are never re-entered.
func (s TaskState) CanTransition(next TaskState) bool {
	if s.Terminal() {
		return false
	}
	if next == StateFailed {
		return true
	}
	from, ok := stateOrder[s]
	if !ok {
		return false
	}
	to, ok := stateOrder[next]
	if !ok {
		return false
	}
	return to == from+1
}

// Citation is one retrieved legal-provision excerpt. ChunkID is the
// ingest-time identifier of the chunk inside its partition and doubles
// as the deterministic tie-break for equal similarity scores.
type Citation struct {
	ChunkID   int64   `json:"chunkId"`
	Source    string  `json:"source"`
	Provision string  `json:"provision"`
	Score     float64 `json:"score"`
}

// RetrievalContext is the ranked set of citations grounding the
// reasoning stages. It may be empty (degraded-grounding mode).
type RetrievalContext struct {
	Category  Category   `json:"category"`
	Citations []Citation `json:"citations"`
}

// Empty reports whether no citations were retrieved.
func (rc RetrievalContext) Empty() bool { return len(rc.Citations) == 0 }

// RiskIssue is one identified risk in the contract. ClauseExcerpt must
// be a verbatim excerpt of the contract under review.
type RiskIssue struct {
	ID            int      `json:"id"`
	Severity      Severity `json:"severity"`
	Title         string   `json:"title"`
	ClauseExcerpt string   `json:"clauseExcerpt"`
	LegalBasis    string   `json:"legalBasis"`
	PlainLanguage []string `json:"plainLanguage"`
	Problem       string   `json:"problem"`
	Mitigation    string   `json:"mitigation"`
	Alternative   string   `json:"alternative"`
}

// RiskReport is the validated payload of the risk-identification stage.
type RiskReport struct {
	ContractType string      `json:"contractType"`
	Jurisdiction string      `json:"jurisdiction"`
	OverallRisk  Severity    `json:"overallRisk"`
	RiskScore    int         `json:"riskScore"`
	Summary      string      `json:"summary"`
	Issues       []RiskIssue `json:"issues"`
}

// TalkTrack is the spoken negotiation script: an opening line and the
// core persuasion points.
type TalkTrack struct {
	Opening string   `json:"opening"`
	Reasons []string `json:"reasons"`
}

// NegotiationStyles carries three alternative negotiation postures.
type NegotiationStyles struct {
	Aggressive   string `json:"aggressive"`
	Consultative string `json:"consultative"`
	Compromise   string `json:"compromise"`
}

// NegotiationPlan is the validated payload of the negotiation stage.
type NegotiationPlan struct {
	Strategy  string            `json:"strategy"`
	Email     string            `json:"email"`
	TalkTrack TalkTrack         `json:"talkTrack"`
	Styles    NegotiationStyles `json:"styles"`
}

// RevisionNote describes one edit applied to the revised contract.
type RevisionNote struct {
	ClauseRef string `json:"clauseRef"`
	Change    string `json:"change"`
}

// Revision is the validated payload of the revision-drafting stage.
type Revision struct {
	FullText    string         `json:"fullText"`
	InlineNotes []RevisionNote `json:"inlineNotes"`
	Summary     string         `json:"summary"`
}

// StageResult records one validated stage output. It is immutable once
// recorded: exactly one successful validator pass produces it.
type StageResult struct {
	TaskID      string          `json:"taskId"`
	Stage       Stage           `json:"stage"`
	Payload     json.RawMessage `json:"payload"`
	Citations   []Citation      `json:"citations,omitempty"`
	RepairCount int             `json:"repairCount"`
	CompletedAt time.Time       `json:"completedAt"`
}

// AnalysisResult is the externally visible result of a completed task:
// the union of all stage payloads. It is all-or-nothing; a failed task
// never exposes a partial result.
type AnalysisResult struct {
	ContractType    string            `json:"contractType"`
	Jurisdiction    string            `json:"jurisdiction"`
	OverallRisk     Severity          `json:"overallRisk"`
	RiskScore       int               `json:"riskScore"`
	Summary         string            `json:"summary"`
	Issues          []RiskIssue       `json:"issues"`
	Negotiation     NegotiationPlan   `json:"negotiationStrategies"`
	RevisedContract Revision          `json:"revisedContract"`
	Citations       []Citation        `json:"citations"`
}
