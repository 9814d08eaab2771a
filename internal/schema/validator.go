package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/contractclarity/engine/internal/domain"
)

// Validator checks raw model output against a stage's data contract.
// On violation it reports the exact unmet constraints so the repair
// loop can feed them back as corrective instruction.
type Validator struct {
	banding  domain.Banding
	compiled map[domain.Stage]*jsonschema.Schema
}

// NewValidator compiles the stage schemas and captures the configured
// score banding.
func NewValidator(banding domain.Banding) (*Validator, error) {
	if err := banding.Validate(); err != nil {
		return nil, err
	}
	compiled, err := compileStageSchemas()
	if err != nil {
		return nil, err
	}
	return &Validator{banding: banding, compiled: compiled}, nil
}

// Validate parses raw model output for stage. It returns the canonical
// payload on success, or the list of violated constraints for the
// repair loop. The error return is reserved for misuse (unknown stage).
func (v *Validator) Validate(stage domain.Stage, raw string) (json.RawMessage, []string, error) {
	compiled, ok := v.compiled[stage]
	if !ok {
		return nil, nil, fmt.Errorf("no schema declared for stage %s", stage)
	}

	cleaned, ok := ExtractJSON(raw)
	if !ok {
		return nil, []string{"output must contain a single JSON object wrapped in { and }"}, nil
	}

	var decoded any
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return nil, []string{fmt.Sprintf("output is not valid JSON: %v", err)}, nil
	}

	if err := compiled.Validate(decoded); err != nil {
		return nil, flattenViolations(err), nil
	}

	payload, violations := v.canonicalize(stage, cleaned)
	if len(violations) > 0 {
		return nil, violations, nil
	}
	return payload, nil, nil
}

// canonicalize re-marshals the validated output through the stage's
// typed payload, dropping unknown fields, and applies the rules that
// live outside the static schema. The configured banding decides the
// overall risk: a score-inconsistent overallRisk is normalized rather
// than bounced back for repair, since the banded value is fully
// determined by the score.
func (v *Validator) canonicalize(stage domain.Stage, cleaned string) (json.RawMessage, []string) {
	switch stage {
	case domain.StageRisk:
		var report domain.RiskReport
		if err := json.Unmarshal([]byte(cleaned), &report); err != nil {
			return nil, []string{fmt.Sprintf("risk payload shape: %v", err)}
		}
		report.OverallRisk = v.banding.Severity(report.RiskScore)
		payload, err := json.Marshal(report)
		if err != nil {
			return nil, []string{fmt.Sprintf("risk payload marshal: %v", err)}
		}
		return payload, nil

	case domain.StageNegotiation:
		var plan domain.NegotiationPlan
		if err := json.Unmarshal([]byte(cleaned), &plan); err != nil {
			return nil, []string{fmt.Sprintf("negotiation payload shape: %v", err)}
		}
		payload, err := json.Marshal(plan)
		if err != nil {
			return nil, []string{fmt.Sprintf("negotiation payload marshal: %v", err)}
		}
		return payload, nil

	case domain.StageRevision:
		var rev domain.Revision
		if err := json.Unmarshal([]byte(cleaned), &rev); err != nil {
			return nil, []string{fmt.Sprintf("revision payload shape: %v", err)}
		}
		payload, err := json.Marshal(rev)
		if err != nil {
			return nil, []string{fmt.Sprintf("revision payload marshal: %v", err)}
		}
		return payload, nil

	default:
		return json.RawMessage(cleaned), nil
	}
}

// ExtractJSON slices the outermost {...} out of raw model text and
// strips markdown code fences. Models decorate structured output with
// prose and fences often enough that this is the first repair step,
// free of any model round-trip.
func ExtractJSON(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return "", false
	}
	content := raw[start : end+1]
	content = strings.ReplaceAll(content, "```json", "")
	content = strings.ReplaceAll(content, "```", "")
	return strings.TrimSpace(content), true
}

// flattenViolations walks a jsonschema validation error tree and
// renders one actionable line per leaf cause.
func flattenViolations(err error) []string {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{err.Error()}
	}
	var out []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			out = append(out, fmt.Sprintf("%s: %s (%s)", loc, e.Message, e.KeywordLocation))
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(verr)
	return out
}
