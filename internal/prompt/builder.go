package prompt

import (
	"fmt"
	"strings"

	"github.com/contractclarity/engine/internal/domain"
)

// Builder renders the stage prompts. Given the same inputs it always
// produces the same prompt; all variation lives in the model.
type Builder struct {
	budgeter    *Budgeter
	tokenBudget int
}

// NewBuilder creates a Builder enforcing the given token budget on
// contract text and citations.
func NewBuilder(budgeter *Budgeter, tokenBudget int) *Builder {
	return &Builder{budgeter: budgeter, tokenBudget: tokenBudget}
}

// contractBudget and citationBudget split the overall budget: the
// contract dominates every prompt, citations ground it.
func (b *Builder) contractBudget() int { return b.tokenBudget * 2 / 3 }
func (b *Builder) citationBudget() int { return b.tokenBudget / 3 }

func languageDirective(code string) string {
	return fmt.Sprintf("CRITICAL LANGUAGE REQUIREMENT: write ALL output text "+
		"(titles, summaries, explanations, every JSON string value) in %s. "+
		"Do not use any other language for output values.", languageName(code))
}

// renderCitations joins retrieved provisions as a numbered reference
// block, truncated to the citation budget. An empty context yields a
// note that no provisions were retrieved, so the model grounds its
// analysis accordingly instead of inventing citations.
func (b *Builder) renderCitations(citations []domain.Citation) (string, error) {
	if len(citations) == 0 {
		return "(no matching provisions retrieved; analyze on general legal principles and say so in legalBasis)", nil
	}
	var sb strings.Builder
	for i, c := range citations {
		fmt.Fprintf(&sb, "[Reference %d] %s: %s\n", i+1, c.Source, c.Provision)
	}
	return b.budgeter.Truncate(sb.String(), b.citationBudget())
}

// Risk builds the risk-identification prompt.
func (b *Builder) Risk(contractText string, category domain.Category, language string, citations []domain.Citation) (string, error) {
	text, err := b.budgeter.Truncate(contractText, b.contractBudget())
	if err != nil {
		return "", err
	}
	refs, err := b.renderCitations(citations)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(`%s

You are a senior legal partner with a top-tier firm background, expert at spotting legal risk in small details.

Task: deeply review the contract below, grounded in the %s legal provisions provided.

Legal provisions:
%s

Contract under review:
%s

Requirements:
1. Identify hidden traps, one-sided liability, and missing key clauses. For every issue cite the supporting provision in legalBasis (statute name, article, substance).
2. Give an overall riskScore between 0 and 100 and an overallRisk of Low, Medium or High consistent with that score.
3. Report ONLY the 5 to 7 most severe issues. Never more than 7.
4. clauseExcerpt must be a complete verbatim excerpt of the original contract text. Do not alter a single character.

Output a single JSON object (all string values in the required language):
{
  "contractType": "...",
  "jurisdiction": "...",
  "overallRisk": "Low|Medium|High",
  "riskScore": 0,
  "summary": "one objective overall assessment",
  "issues": [
    {
      "id": 1,
      "severity": "Low|Medium|High",
      "title": "...",
      "clauseExcerpt": "verbatim excerpt",
      "legalBasis": "statute name, article and substance",
      "plainLanguage": ["plain-language explanation"],
      "problem": "in-depth risk analysis",
      "mitigation": "concrete action to take",
      "alternative": "defensive replacement clause text"
    }
  ]
}`, languageDirective(language), category, refs, text), nil
}

// Negotiation builds the negotiation-strategy prompt from the validated
// risk issues.
func (b *Builder) Negotiation(issuesJSON []byte, language string) (string, error) {
	return fmt.Sprintf(`%s

You are a senior commercial lawyer and negotiation expert. Based on the identified risk issues below, prepare a complete negotiation package.

Risk issues:
%s

Requirements:
1. email: a detailed, professionally formatted negotiation email of at least 500 words, addressing each key risk and its impact on the cooperation. Use single quotes inside the text, never double quotes.
2. talkTrack: a natural spoken opening plus exactly 3 core persuasion reasons. Do not assume the counterparty's surname or gender.
3. styles: three genuinely different postures - aggressive pressure, consultative win-win, and compromise with bottom-line protection.

Output a single JSON object:
{
  "strategy": "overall game plan in brief",
  "email": "full email text, 500+ words",
  "talkTrack": {
    "opening": "...",
    "reasons": ["reason 1", "reason 2", "reason 3"]
  },
  "styles": {
    "aggressive": "...",
    "consultative": "...",
    "compromise": "..."
  }
}`, languageDirective(language), issuesJSON), nil
}

// Revision builds the contract-revision prompt from the original text
// and the validated risk issues.
func (b *Builder) Revision(contractText string, issuesJSON []byte, language string) (string, error) {
	text, err := b.budgeter.Truncate(contractText, b.contractBudget())
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(`%s

You are a senior legal counsel expert in contract drafting. Produce a complete revised contract from the original contract and the identified issues with their suggested alternatives.

Original contract:
%s

Risk issues and revision suggestions:
%s

Requirements:
1. Keep the original structure, clause numbering, and every clause not touched by an issue verbatim.
2. For each risky clause, apply its "alternative" replacement or supplement.
3. Add any missing essential clauses in an appropriate position.
4. Mark every edit with a leading 【REVISED】 tag for side-by-side review.
5. inlineNotes lists one short note per edit; summary explains the revision as a whole in under 100 words.

Output a single JSON object:
{
  "fullText": "complete revised contract, edits tagged 【REVISED】",
  "inlineNotes": [
    {"clauseRef": "clause number or name", "change": "what changed and why"}
  ],
  "summary": "overall revision summary"
}`, languageDirective(language), text, issuesJSON), nil
}

// Repair builds the corrective re-prompt for the repair loop: the
// original stage prompt, the prior malformed output, and the exact
// constraints it violated.
func (b *Builder) Repair(stagePrompt, rawOutput string, violations []string) string {
	var sb strings.Builder
	sb.WriteString(stagePrompt)
	sb.WriteString("\n\nYour previous answer did not conform to the required JSON contract.\n\nPrevious answer:\n")
	sb.WriteString(rawOutput)
	sb.WriteString("\n\nViolated constraints:\n")
	for _, v := range violations {
		sb.WriteString("- ")
		sb.WriteString(v)
		sb.WriteString("\n")
	}
	sb.WriteString("\nRegenerate the COMPLETE answer as a single JSON object fixing every violation above. Output nothing but the JSON object.")
	return sb.String()
}
