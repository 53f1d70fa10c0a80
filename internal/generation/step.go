package generation

import (
	"context"
	"fmt"

	"github.com/lucentmedia/genstudio/internal/extjob"
)

// StepKind distinguishes a direct provider call from a submit/poll job.
type StepKind string

const (
	StepKindSync     StepKind = "sync"
	StepKindAsyncJob StepKind = "async_job"
)

// StepInput is what a step sees when it runs: the request prompt plus the
// public URLs of every artifact produced by earlier steps, in step order.
type StepInput struct {
	Prompt       string
	ArtifactURLs []string
}

// StepOutput is one produced artifact payload before storage.
type StepOutput struct {
	Data        []byte
	ContentType string
}

// Step is one ordered unit of a workflow.
type Step interface {
	Name() string
	Kind() StepKind
	Run(ctx context.Context, input StepInput) (StepOutput, error)
}

// SyncFunc performs a synchronous provider call.
type SyncFunc func(ctx context.Context, input StepInput) (StepOutput, error)

type syncStep struct {
	name string
	run  SyncFunc
}

// NewSyncStep wraps a synchronous provider call as a Step.
func NewSyncStep(name string, run SyncFunc) Step {
	return &syncStep{name: name, run: run}
}

func (step *syncStep) Name() string   { return step.name }
func (step *syncStep) Kind() StepKind { return StepKindSync }

func (step *syncStep) Run(ctx context.Context, input StepInput) (StepOutput, error) {
	return step.run(ctx, input)
}

// OperationFactory binds a step input to a provider-specific long-running
// operation.
type OperationFactory func(input StepInput) extjob.Operation

type asyncStep struct {
	name        string
	factory     OperationFactory
	poller      *extjob.Poller
	contentType string
}

// NewAsyncStep wraps a submit/poll job as a Step. The poller bounds the
// wait; the content type describes the fetched payload.
func NewAsyncStep(name string, factory OperationFactory, poller *extjob.Poller, contentType string) Step {
	return &asyncStep{name: name, factory: factory, poller: poller, contentType: contentType}
}

func (step *asyncStep) Name() string   { return step.name }
func (step *asyncStep) Kind() StepKind { return StepKindAsyncJob }

func (step *asyncStep) Run(ctx context.Context, input StepInput) (StepOutput, error) {
	operation := step.factory(input)
	handle, submitError := operation.Submit(ctx)
	if submitError != nil {
		return StepOutput{}, fmt.Errorf("submit %s: %w", step.name, submitError)
	}
	payload, awaitError := step.poller.AwaitCompletion(ctx, operation, handle)
	if awaitError != nil {
		return StepOutput{}, awaitError
	}
	return StepOutput{Data: payload, ContentType: step.contentType}, nil
}

// Workflow is an ordered step sequence with one all-or-nothing cost.
type Workflow struct {
	Kind  string
	Cost  int64
	Steps []Step
}
