package prompt

import (
	"strings"
	"testing"

	"github.com/contractclarity/engine/internal/domain"
)

func newTestBuilder(t *testing.T, budget int) *Builder {
	t.Helper()
	budgeter, err := NewBudgeter()
	if err != nil {
		t.Fatalf("NewBudgeter() error = %v", err)
	}
	return NewBuilder(budgeter, budget)
}

func TestNormalizeLanguage(t *testing.T) {
	if got := NormalizeLanguage("en"); got != "en" {
		t.Errorf("NormalizeLanguage(en) = %s", got)
	}
	if got := NormalizeLanguage("tlh"); got != DefaultLanguage {
		t.Errorf("unknown code should fall back to %s, got %s", DefaultLanguage, got)
	}
	if got := NormalizeLanguage(""); got != DefaultLanguage {
		t.Errorf("empty code should fall back to %s, got %s", DefaultLanguage, got)
	}
	if len(Languages()) != 11 {
		t.Errorf("supported languages = %d, want 11", len(Languages()))
	}
}

func TestBuilder_Risk_Deterministic(t *testing.T) {
	b := newTestBuilder(t, 24000)
	citations := []domain.Citation{
		{ChunkID: 1, Source: "劳动法 第四十四条", Provision: "安排加班应支付加班费", Score: 0.91},
	}

	p1, err := b.Risk("contract text", domain.CategoryLaborEmployment, "zh-CN", citations)
	if err != nil {
		t.Fatal(err)
	}
	p2, err := b.Risk("contract text", domain.CategoryLaborEmployment, "zh-CN", citations)
	if err != nil {
		t.Fatal(err)
	}
	if p1 != p2 {
		t.Error("identical inputs must build identical prompts")
	}

	for _, want := range []string{"contract text", "LaborEmployment", "[Reference 1]", "劳动法 第四十四条", "5 to 7", "clauseExcerpt"} {
		if !strings.Contains(p1, want) {
			t.Errorf("risk prompt missing %q", want)
		}
	}
}

func TestBuilder_Risk_EmptyCitations(t *testing.T) {
	b := newTestBuilder(t, 24000)
	p, err := b.Risk("text", domain.CategoryGeneral, "en", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(p, "no matching provisions retrieved") {
		t.Error("degraded-grounding prompt should flag the missing provisions")
	}
	if !strings.Contains(p, "English") {
		t.Error("language directive should name the output language")
	}
}

func TestBuilder_TruncatesOversizedContract(t *testing.T) {
	b := newTestBuilder(t, 300)

	huge := strings.Repeat("The party of the first part shall indemnify the party of the second part. ", 500)
	p, err := b.Risk(huge, domain.CategoryGeneral, "en", nil)
	if err != nil {
		t.Fatal(err)
	}

	count, err := b.budgeter.Count(p)
	if err != nil {
		t.Fatal(err)
	}
	// Template overhead sits on top of the bounded contract slice, so
	// allow slack but require the contract itself was cut hard.
	if count > 1200 {
		t.Errorf("prompt tokens = %d, contract truncation did not hold", count)
	}
	if strings.Contains(p, huge) {
		t.Error("oversized contract should not appear verbatim")
	}
}

func TestBuilder_NegotiationAndRevision(t *testing.T) {
	b := newTestBuilder(t, 24000)
	issues := []byte(`[{"id":1,"title":"unlimited overtime"}]`)

	neg, err := b.Negotiation(issues, "en")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"unlimited overtime", "talkTrack", "aggressive", "consultative", "compromise", "500"} {
		if !strings.Contains(neg, want) {
			t.Errorf("negotiation prompt missing %q", want)
		}
	}

	rev, err := b.Revision("original contract", issues, "en")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"original contract", "unlimited overtime", "inlineNotes", "【REVISED】"} {
		if !strings.Contains(rev, want) {
			t.Errorf("revision prompt missing %q", want)
		}
	}
}

func TestBuilder_Repair(t *testing.T) {
	b := newTestBuilder(t, 24000)
	p := b.Repair("original prompt", `{"riskScore": 400}`, []string{
		"riskScore must be between 0 and 100",
		"issues must contain between 5 and 7 entries",
	})

	for _, want := range []string{"original prompt", `{"riskScore": 400}`, "riskScore must be between 0 and 100", "- issues must contain"} {
		if !strings.Contains(p, want) {
			t.Errorf("repair prompt missing %q", want)
		}
	}
}

func TestBudgeter_Truncate(t *testing.T) {
	budgeter, err := NewBudgeter()
	if err != nil {
		t.Fatal(err)
	}

	short := "hello world"
	out, err := budgeter.Truncate(short, 100)
	if err != nil {
		t.Fatal(err)
	}
	if out != short {
		t.Error("text under budget must pass through unchanged")
	}

	long := strings.Repeat("alpha beta gamma ", 1000)
	out, err = budgeter.Truncate(long, 50)
	if err != nil {
		t.Fatal(err)
	}
	n, err := budgeter.Count(out)
	if err != nil {
		t.Fatal(err)
	}
	if n > 50 {
		t.Errorf("truncated text counts %d tokens, budget 50", n)
	}
	if !strings.HasPrefix(long, out) {
		t.Error("truncation must preserve the head of the text")
	}
}
