// Package generation runs multi-step generation workflows as sagas: credits
// are reserved up front, steps run strictly in order, and any failure after
// the reservation triggers exactly one compensating refund.
package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lucentmedia/genstudio/internal/artifact"
	"github.com/lucentmedia/genstudio/internal/progress"
	"github.com/lucentmedia/genstudio/pkg/ledger"
)

// ErrInsufficientCredits reports a reservation the ledger declined. Nothing
// was reserved, so there is nothing to refund.
var ErrInsufficientCredits = errors.New("generation: insufficient credits")

// ErrInvalidOrchestratorConfig reports an Orchestrator constructed without
// its required collaborators.
var ErrInvalidOrchestratorConfig = errors.New("generation: invalid orchestrator configuration")

// CreditLedger is the slice of the ledger the saga needs.
type CreditLedger interface {
	Reserve(ctx context.Context, userID ledger.UserID, cost ledger.Amount, reason ledger.Reason) (ledger.ReserveResult, error)
	Refund(ctx context.Context, userID ledger.UserID, amount ledger.Amount, reason ledger.Reason) (int64, error)
}

// Orchestrator executes workflows.
type Orchestrator struct {
	credits   CreditLedger
	requests  RequestStore
	artifacts artifact.Store
	logger    *zap.Logger
	nowFn     func() time.Time
}

// OrchestratorOption adjusts optional Orchestrator behavior.
type OrchestratorOption func(*Orchestrator)

// WithLogger replaces the default no-op logger.
func WithLogger(logger *zap.Logger) OrchestratorOption {
	return func(orchestrator *Orchestrator) {
		if logger != nil {
			orchestrator.logger = logger
		}
	}
}

func withClock(nowFn func() time.Time) OrchestratorOption {
	return func(orchestrator *Orchestrator) {
		orchestrator.nowFn = nowFn
	}
}

// NewOrchestrator validates collaborators and returns a ready Orchestrator.
func NewOrchestrator(credits CreditLedger, requests RequestStore, artifacts artifact.Store, options ...OrchestratorOption) (*Orchestrator, error) {
	if credits == nil {
		return nil, fmt.Errorf("%w: credit ledger is required", ErrInvalidOrchestratorConfig)
	}
	if requests == nil {
		return nil, fmt.Errorf("%w: request store is required", ErrInvalidOrchestratorConfig)
	}
	if artifacts == nil {
		return nil, fmt.Errorf("%w: artifact store is required", ErrInvalidOrchestratorConfig)
	}
	orchestrator := &Orchestrator{
		credits:   credits,
		requests:  requests,
		artifacts: artifacts,
		logger:    zap.NewNop(),
		nowFn:     time.Now,
	}
	for _, option := range options {
		option(orchestrator)
	}
	return orchestrator, nil
}

// Run executes one workflow for one user, emitting progress to the sink.
// The sink is best-effort: a client that stopped listening never changes
// the outcome. Run returns the terminal request state; when the reservation
// is declined it returns ErrInsufficientCredits and no request is recorded.
//
// Callers must pass a context that outlives their client connection; the
// saga runs to its terminal state even with nobody listening, because a
// reservation must never stay held just because the stream died.
func (orchestrator *Orchestrator) Run(ctx context.Context, rawUserID string, prompt string, workflow Workflow, sink progress.Sink) (Request, error) {
	if sink == nil {
		sink = progress.NopSink{}
	}

	userID, userIDError := ledger.NewUserID(rawUserID)
	if userIDError != nil {
		return Request{}, userIDError
	}
	cost, costError := ledger.NewAmount(workflow.Cost)
	if costError != nil {
		return Request{}, costError
	}
	reserveReason, reasonError := ledger.NewReason("generation:" + workflow.Kind)
	if reasonError != nil {
		return Request{}, reasonError
	}

	reservation, reserveError := orchestrator.credits.Reserve(ctx, userID, cost, reserveReason)
	if reserveError != nil {
		// The ledger aborted before any credit mutation; nothing to refund.
		orchestrator.emit(sink, progress.Error{Message: "credit reservation failed", CreditsRefunded: false})
		return Request{}, fmt.Errorf("generation: reserve credits: %w", reserveError)
	}
	if !reservation.Granted {
		orchestrator.emit(sink, progress.Error{Message: "insufficient credits", CreditsRefunded: false})
		return Request{}, ErrInsufficientCredits
	}

	now := orchestrator.nowFn().UTC().Unix()
	request := Request{
		RequestID:      uuid.NewString(),
		UserID:         rawUserID,
		Kind:           workflow.Kind,
		Prompt:         prompt,
		Status:         StatusRunning,
		Cost:           workflow.Cost,
		CreatedUnixUTC: now,
		UpdatedUnixUTC: now,
	}
	if insertError := orchestrator.requests.InsertRequest(ctx, request); insertError != nil {
		orchestrator.refund(ctx, userID, cost, workflow.Kind)
		orchestrator.emit(sink, progress.Error{Message: "generation could not be recorded", CreditsRefunded: true})
		return Request{}, fmt.Errorf("generation: record request: %w", insertError)
	}

	return orchestrator.runSteps(ctx, request, userID, cost, workflow, sink)
}

// runSteps drives the ordered step loop. The deferred finalize is the only
// exit path that settles the saga: it refunds and records failure whenever
// the success flag was not set, which also covers a panicking step.
func (orchestrator *Orchestrator) runSteps(ctx context.Context, request Request, userID ledger.UserID, cost ledger.Amount, workflow Workflow, sink progress.Sink) (result Request, runError error) {
	var (
		completed    bool
		artifactURLs []string
		failure      string
	)

	defer func() {
		if recovered := recover(); recovered != nil {
			failure = "internal error during generation"
			runError = fmt.Errorf("generation: step panicked: %v", recovered)
			orchestrator.logger.Error("generation step panicked",
				zap.String("request_id", request.RequestID),
				zap.Any("panic", recovered))
		}
		if completed {
			return
		}
		orchestrator.refund(ctx, userID, cost, workflow.Kind)
		request.Status = StatusFailedRefunded
		request.ArtifactURLs = artifactURLs
		request.UpdatedUnixUTC = orchestrator.nowFn().UTC().Unix()
		if updateError := orchestrator.requests.UpdateRequestOutcome(ctx, request.RequestID, StatusFailedRefunded, artifactURLs, request.UpdatedUnixUTC); updateError != nil {
			orchestrator.logger.Error("failed to record generation failure",
				zap.String("request_id", request.RequestID),
				zap.Error(updateError))
		}
		if failure == "" {
			failure = "generation failed"
		}
		orchestrator.emit(sink, progress.Error{
			Message:          failure,
			CreditsRefunded:  true,
			PartialArtifacts: artifactURLs,
		})
		result = request
	}()

	for stepIndex, step := range workflow.Steps {
		orchestrator.emit(sink, progress.Progress{
			Step:    stepIndex,
			Message: fmt.Sprintf("running %s", step.Name()),
		})

		output, stepError := step.Run(ctx, StepInput{Prompt: request.Prompt, ArtifactURLs: artifactURLs})
		if stepError != nil {
			failure = stepFailureMessage(step, stepError)
			orchestrator.logger.Warn("generation step failed",
				zap.String("request_id", request.RequestID),
				zap.String("step", step.Name()),
				zap.Error(stepError))
			return request, stepError
		}

		stored, putError := orchestrator.artifacts.Put(ctx, output.Data, output.ContentType)
		if putError != nil {
			failure = fmt.Sprintf("storing output of %s failed", step.Name())
			return request, fmt.Errorf("generation: store artifact: %w", putError)
		}
		artifactURLs = append(artifactURLs, stored.URL)
		orchestrator.emit(sink, progress.Artifact{StepIndex: stepIndex, Ref: stored.URL})
	}

	request.Status = StatusCompleted
	request.ArtifactURLs = artifactURLs
	request.UpdatedUnixUTC = orchestrator.nowFn().UTC().Unix()
	if updateError := orchestrator.requests.UpdateRequestOutcome(ctx, request.RequestID, StatusCompleted, artifactURLs, request.UpdatedUnixUTC); updateError != nil {
		failure = "generation could not be finalized"
		return request, fmt.Errorf("generation: record completion: %w", updateError)
	}
	completed = true
	orchestrator.emit(sink, progress.Complete{ArtifactURLs: artifactURLs, CreditsCharged: workflow.Cost})
	return request, nil
}

// refund returns the full reservation. It is called from exactly one place
// per saga, the finalize path, so a reservation is never refunded twice.
func (orchestrator *Orchestrator) refund(ctx context.Context, userID ledger.UserID, amount ledger.Amount, kind string) {
	refundReason, reasonError := ledger.NewReason("refund:" + kind)
	if reasonError != nil {
		refundReason, _ = ledger.NewReason("refund")
	}
	if _, refundError := orchestrator.credits.Refund(ctx, userID, amount, refundReason); refundError != nil {
		orchestrator.logger.Error("refund failed, ledger needs reconciliation",
			zap.String("user_id", userID.String()),
			zap.Int64("amount", amount.Int64()),
			zap.Error(refundError))
	}
}

// emit delivers best-effort. A dead client is a transport problem, not a
// generation problem.
func (orchestrator *Orchestrator) emit(sink progress.Sink, event progress.Event) {
	if sendError := sink.Send(event); sendError != nil {
		orchestrator.logger.Debug("progress event dropped", zap.Error(sendError))
	}
}

func stepFailureMessage(step Step, stepError error) string {
	if errors.Is(stepError, context.Canceled) || errors.Is(stepError, context.DeadlineExceeded) {
		return fmt.Sprintf("%s was cancelled", step.Name())
	}
	return fmt.Sprintf("%s failed: %v", step.Name(), stepError)
}
