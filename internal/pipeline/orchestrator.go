// Package pipeline drives a submitted contract through retrieval and
// the three reasoning stages, owning every lifecycle transition along
// the way. One task runs its stages strictly in sequence; concurrency
// exists only across tasks, bounded by a weighted semaphore.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/contractclarity/engine/internal/domain"
	"github.com/contractclarity/engine/internal/llm"
	"github.com/contractclarity/engine/internal/prompt"
	"github.com/contractclarity/engine/internal/schema"
	"github.com/contractclarity/engine/internal/task"
)

// Generation budgets per stage. The revision stage runs colder: it
// rewrites text it was handed rather than reasoning afresh.
const (
	riskMaxTokens        = 3000
	negotiationMaxTokens = 4000
	revisionMaxTokens    = 4000

	stageTemperature    = 0.2
	revisionTemperature = 0.1
)

// Retriever yields grounding citations for a contract. Failures inside
// the retriever degrade to an empty context rather than surfacing here.
type Retriever interface {
	Retrieve(ctx context.Context, text string, category domain.Category, topK int) (domain.RetrievalContext, error)
}

// Options carries the orchestrator's collaborators and tuning knobs.
type Options struct {
	Store     task.Store
	Retriever Retriever
	Completer llm.Completer
	Builder   *prompt.Builder
	Validator *schema.Validator

	MaxConcurrent    int
	RepairBudget     int
	MaxContractChars int
	TopK             int

	Logger *slog.Logger
}

// Orchestrator accepts submissions and runs each accepted task through
// the full stage sequence asynchronously.
type Orchestrator struct {
	store     task.Store
	retriever Retriever
	completer llm.Completer
	builder   *prompt.Builder
	validator *schema.Validator

	repairBudget     int
	maxContractChars int
	topK             int

	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	logger *slog.Logger
	tracer trace.Tracer
}

func New(opts Options) *Orchestrator {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	return &Orchestrator{
		store:            opts.Store,
		retriever:        opts.Retriever,
		completer:        opts.Completer,
		builder:          opts.Builder,
		validator:        opts.Validator,
		repairBudget:     opts.RepairBudget,
		maxContractChars: opts.MaxContractChars,
		topK:             opts.TopK,
		sem:              semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		logger:           opts.Logger,
		tracer:           otel.Tracer("pipeline"),
	}
}

// Submit validates the submission, registers a pending task, and
// launches its run. It returns the task identifier immediately; callers
// observe progress by polling. The run detaches from the caller's
// context so an impatient client cannot abort an accepted task.
func (o *Orchestrator) Submit(ctx context.Context, contractText, category, language string) (string, error) {
	if strings.TrimSpace(contractText) == "" {
		return "", domain.ErrEmptyInput("contract text must not be empty")
	}
	if o.maxContractChars > 0 && len(contractText) > o.maxContractChars {
		return "", domain.ErrEmptyInput(fmt.Sprintf("contract text exceeds %d characters", o.maxContractChars))
	}
	cat := domain.Category(category)
	if !cat.Valid() {
		return "", domain.ErrInvalidCategory(category)
	}
	lang := prompt.NormalizeLanguage(language)

	t := task.New(contractText, cat, lang)
	if err := o.store.Create(t); err != nil {
		return "", domain.ErrInternal("register task", err)
	}

	o.logger.Info("task accepted",
		slog.String("task_id", t.ID),
		slog.String("category", string(cat)),
		slog.String("language", lang),
		slog.Int("contract_chars", len(contractText)))

	runCtx := context.WithoutCancel(ctx)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(runCtx, t.ID, contractText, cat, lang)
	}()
	return t.ID, nil
}

// Cancel marks a task FAILED between stages. The stage currently in
// flight, if any, finishes its upstream call and then observes the
// terminal state instead of starting the next stage.
func (o *Orchestrator) Cancel(id string) error {
	return o.store.Fail(id, domain.ErrInternal("analysis canceled by client", nil))
}

// Wait blocks until every in-flight task run has finished. Used during
// shutdown so accepted work is not silently dropped.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) run(ctx context.Context, id string, contractText string, category domain.Category, language string) {
	if err := o.sem.Acquire(ctx, 1); err != nil {
		o.fail(id, domain.ErrInternal("acquire pipeline slot", err))
		return
	}
	defer o.sem.Release(1)

	ctx, span := o.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("task.id", id),
			attribute.String("task.category", string(category)),
		))
	defer span.End()

	start := time.Now()

	// Retrieval never fails the task: a cold index means the stages run
	// ungrounded, which the prompts state explicitly.
	if !o.advance(id, domain.StateRetrieving, "retrieving legal grounding") {
		return
	}
	rc := o.retrieve(ctx, id, contractText, category)

	// Risk identification.
	if !o.advance(id, domain.StateAnalyzingRisk, "identifying risk clauses") {
		return
	}
	riskPrompt, err := o.builder.Risk(contractText, category, language, rc.Citations)
	if err != nil {
		o.fail(id, domain.ErrInternal("build risk prompt", err))
		return
	}
	riskPayload, ok := o.runStage(ctx, id, domain.StageRisk, riskPrompt, riskMaxTokens, stageTemperature, rc.Citations)
	if !ok {
		return
	}
	var report domain.RiskReport
	if err := json.Unmarshal(riskPayload, &report); err != nil {
		o.fail(id, domain.ErrInternal("decode risk payload", err))
		return
	}
	issuesJSON, err := json.Marshal(report.Issues)
	if err != nil {
		o.fail(id, domain.ErrInternal("encode issues for downstream stages", err))
		return
	}

	// Negotiation strategy, grounded on the identified issues.
	if !o.advance(id, domain.StateNegotiating, "drafting negotiation strategy") {
		return
	}
	negPrompt, err := o.builder.Negotiation(issuesJSON, language)
	if err != nil {
		o.fail(id, domain.ErrInternal("build negotiation prompt", err))
		return
	}
	negPayload, ok := o.runStage(ctx, id, domain.StageNegotiation, negPrompt, negotiationMaxTokens, stageTemperature, nil)
	if !ok {
		return
	}
	var plan domain.NegotiationPlan
	if err := json.Unmarshal(negPayload, &plan); err != nil {
		o.fail(id, domain.ErrInternal("decode negotiation payload", err))
		return
	}

	// Full revision of the contract text.
	if !o.advance(id, domain.StateRevising, "drafting revised contract") {
		return
	}
	revPrompt, err := o.builder.Revision(contractText, issuesJSON, language)
	if err != nil {
		o.fail(id, domain.ErrInternal("build revision prompt", err))
		return
	}
	revPayload, ok := o.runStage(ctx, id, domain.StageRevision, revPrompt, revisionMaxTokens, revisionTemperature, nil)
	if !ok {
		return
	}
	var revision domain.Revision
	if err := json.Unmarshal(revPayload, &revision); err != nil {
		o.fail(id, domain.ErrInternal("decode revision payload", err))
		return
	}

	result := domain.AnalysisResult{
		ContractType:    report.ContractType,
		Jurisdiction:    report.Jurisdiction,
		OverallRisk:     report.OverallRisk,
		RiskScore:       report.RiskScore,
		Summary:         report.Summary,
		Issues:          report.Issues,
		Negotiation:     plan,
		RevisedContract: revision,
		Citations:       rc.Citations,
	}
	if err := o.store.Complete(id, result); err != nil {
		o.logger.Warn("completing task", slog.String("task_id", id), slog.Any("error", err))
		return
	}
	o.logger.Info("task completed",
		slog.String("task_id", id),
		slog.Int("issues", len(result.Issues)),
		slog.Int("risk_score", result.RiskScore),
		slog.Duration("elapsed", time.Since(start)))
}

// advance moves the task forward one state. A rejected transition means
// the task reached a terminal state underneath us (cancel, double
// fail), so the run stops here.
func (o *Orchestrator) advance(id string, next domain.TaskState, progress string) bool {
	if err := o.store.Transition(id, next, progress); err != nil {
		o.logger.Info("run stopped", slog.String("task_id", id), slog.Any("error", err))
		return false
	}
	return true
}

func (o *Orchestrator) retrieve(ctx context.Context, id string, contractText string, category domain.Category) domain.RetrievalContext {
	ctx, span := o.tracer.Start(ctx, "pipeline.stage",
		trace.WithAttributes(attribute.String("stage", string(domain.StageRetrieval))))
	defer span.End()

	rc, err := o.retriever.Retrieve(ctx, contractText, category, o.topK)
	if err != nil {
		o.logger.Warn("retrieval degraded",
			slog.String("task_id", id), slog.Any("error", err))
		return domain.RetrievalContext{Category: category}
	}
	payload, err := json.Marshal(rc)
	if err == nil {
		if err := o.store.AppendStage(id, domain.StageResult{
			TaskID:      id,
			Stage:       domain.StageRetrieval,
			Payload:     payload,
			Citations:   rc.Citations,
			CompletedAt: time.Now().UTC(),
		}); err != nil {
			o.logger.Warn("recording retrieval result", slog.String("task_id", id), slog.Any("error", err))
		}
	}
	span.SetAttributes(attribute.Int("citations", len(rc.Citations)))
	return rc
}

// runStage executes one reasoning stage with the validate-and-repair
// loop. On success the validated payload is recorded and returned; on
// failure the task is marked FAILED and ok is false.
func (o *Orchestrator) runStage(ctx context.Context, id string, stage domain.Stage, basePrompt string, maxTokens int, temperature float64, citations []domain.Citation) (json.RawMessage, bool) {
	ctx, span := o.tracer.Start(ctx, "pipeline.stage",
		trace.WithAttributes(
			attribute.String("stage", string(stage)),
			attribute.String("task.id", id),
		))
	defer span.End()

	currentPrompt := basePrompt
	var lastRaw string
	var lastViolations []string

	for attempt := 0; attempt <= o.repairBudget; attempt++ {
		raw, err := o.completer.Complete(ctx, llm.CompletionRequest{
			Prompt:      currentPrompt,
			MaxTokens:   maxTokens,
			Temperature: temperature,
		})
		if err != nil {
			o.fail(id, domain.AsAPIError(err, stage))
			return nil, false
		}

		payload, violations, verr := o.validator.Validate(stage, raw)
		if verr != nil {
			o.fail(id, domain.ErrInternal("validate stage output", verr))
			return nil, false
		}
		if len(violations) == 0 {
			span.SetAttributes(attribute.Int("repair_count", attempt))
			if err := o.store.AppendStage(id, domain.StageResult{
				TaskID:      id,
				Stage:       stage,
				Payload:     payload,
				Citations:   citations,
				RepairCount: attempt,
				CompletedAt: time.Now().UTC(),
			}); err != nil {
				// Terminal underneath us, e.g. canceled mid-call.
				o.logger.Info("run stopped", slog.String("task_id", id), slog.Any("error", err))
				return nil, false
			}
			return payload, true
		}

		lastRaw, lastViolations = raw, violations
		o.logger.Warn("stage output rejected",
			slog.String("task_id", id),
			slog.String("stage", string(stage)),
			slog.Int("attempt", attempt),
			slog.Int("violations", len(violations)))
		currentPrompt = o.builder.Repair(basePrompt, raw, violations)
	}

	o.fail(id, domain.ErrSchemaViolation(stage, lastViolations, lastRaw))
	return nil, false
}

func (o *Orchestrator) fail(id string, apiErr *domain.APIError) {
	o.logger.Error("task failed",
		slog.String("task_id", id),
		slog.String("kind", string(apiErr.Kind)),
		slog.String("message", apiErr.Message))
	if err := o.store.Fail(id, apiErr); err != nil {
		o.logger.Warn("marking task failed", slog.String("task_id", id), slog.Any("error", err))
	}
}
