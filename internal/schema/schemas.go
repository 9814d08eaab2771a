// Package schema validates raw model output against each stage's data
// contract and turns violations into repair instructions. It is the
// mechanism that guarantees every stage hands schema-conformant data to
// the next one.
package schema

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/contractclarity/engine/internal/domain"
)

// riskSchema is the contract for the risk-identification stage. The
// 5-7 issue bound is the product contract, not a stylistic choice.
const riskSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["contractType", "jurisdiction", "overallRisk", "riskScore", "summary", "issues"],
  "properties": {
    "contractType": {"type": "string", "minLength": 1},
    "jurisdiction": {"type": "string", "minLength": 1},
    "overallRisk": {"enum": ["Low", "Medium", "High"]},
    "riskScore": {"type": "integer", "minimum": 0, "maximum": 100},
    "summary": {"type": "string", "minLength": 1},
    "issues": {
      "type": "array",
      "minItems": 5,
      "maxItems": 7,
      "items": {
        "type": "object",
        "required": ["id", "severity", "title", "clauseExcerpt", "legalBasis", "problem", "mitigation"],
        "properties": {
          "id": {"type": "integer"},
          "severity": {"enum": ["Low", "Medium", "High"]},
          "title": {"type": "string", "minLength": 1},
          "clauseExcerpt": {"type": "string", "minLength": 1},
          "legalBasis": {"type": "string", "minLength": 1},
          "plainLanguage": {"type": "array", "items": {"type": "string"}},
          "problem": {"type": "string", "minLength": 1},
          "mitigation": {"type": "string", "minLength": 1},
          "alternative": {"type": "string"}
        }
      }
    }
  }
}`

// negotiationSchema is the contract for the negotiation-strategy stage.
const negotiationSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["strategy", "email", "talkTrack", "styles"],
  "properties": {
    "strategy": {"type": "string", "minLength": 1},
    "email": {"type": "string", "minLength": 1},
    "talkTrack": {
      "type": "object",
      "required": ["opening", "reasons"],
      "properties": {
        "opening": {"type": "string", "minLength": 1},
        "reasons": {
          "type": "array",
          "minItems": 3,
          "maxItems": 3,
          "items": {"type": "string", "minLength": 1}
        }
      }
    },
    "styles": {
      "type": "object",
      "required": ["aggressive", "consultative", "compromise"],
      "properties": {
        "aggressive": {"type": "string", "minLength": 1},
        "consultative": {"type": "string", "minLength": 1},
        "compromise": {"type": "string", "minLength": 1}
      }
    }
  }
}`

// revisionSchema is the contract for the revision-drafting stage.
const revisionSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["fullText", "inlineNotes", "summary"],
  "properties": {
    "fullText": {"type": "string", "minLength": 1},
    "inlineNotes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["clauseRef", "change"],
        "properties": {
          "clauseRef": {"type": "string", "minLength": 1},
          "change": {"type": "string", "minLength": 1}
        }
      }
    },
    "summary": {"type": "string", "minLength": 1}
  }
}`

var stageSchemas = map[domain.Stage]string{
	domain.StageRisk:        riskSchema,
	domain.StageNegotiation: negotiationSchema,
	domain.StageRevision:    revisionSchema,
}

// compileStageSchemas compiles every stage schema once at startup.
func compileStageSchemas() (map[domain.Stage]*jsonschema.Schema, error) {
	compiled := make(map[domain.Stage]*jsonschema.Schema, len(stageSchemas))
	for stage, doc := range stageSchemas {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		url := fmt.Sprintf("https://contractclarity.schemas.local/%s.schema.json", stage)
		if err := c.AddResource(url, strings.NewReader(doc)); err != nil {
			return nil, fmt.Errorf("load schema for stage %s: %w", stage, err)
		}
		s, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile schema for stage %s: %w", stage, err)
		}
		compiled[stage] = s
	}
	return compiled, nil
}
