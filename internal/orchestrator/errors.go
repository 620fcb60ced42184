package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/easeaico/scene-studio/internal/inference"
	"github.com/easeaico/scene-studio/internal/prompt"
)

// BudgetError rejects a prompt whose token count reaches the context limit.
type BudgetError struct {
	Tokens int
	Limit  int
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("input context is too long: the prompt has %d tokens, but the configured limit is %d tokens", e.Tokens, e.Limit)
}

// FailureKind is the caller-facing failure class.
type FailureKind string

const (
	FailureBadRequest FailureKind = "bad_request"
	FailureNotFound   FailureKind = "not_found"
	FailureBudget     FailureKind = "payload_too_large"
	FailureInference  FailureKind = "inference_failed"
	FailureCanceled   FailureKind = "canceled"
	FailureInternal   FailureKind = "internal"
)

// BudgetDetails carries the numbers behind a budget rejection.
type BudgetDetails struct {
	PromptTokens int `json:"promptTokens"`
	MaxContext   int `json:"maxContext"`
}

// Failure is the single failure shape handed to callers and sinks.
type Failure struct {
	Kind    FailureKind    `json:"-"`
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Details *BudgetDetails `json:"details,omitempty"`
}

// AsFailure classifies err.
func AsFailure(err error) Failure {
	var (
		pe *prompt.PreconditionError
		be *BudgetError
		ie *inference.Error
	)
	switch {
	case errors.As(err, &be):
		return Failure{
			Kind:    FailureBudget,
			Error:   "Payload Too Large",
			Message: be.Error(),
			Details: &BudgetDetails{PromptTokens: be.Tokens, MaxContext: be.Limit},
		}
	case errors.As(err, &pe):
		kind, title := FailureBadRequest, "Bad Request"
		if pe.NotFound() {
			kind, title = FailureNotFound, "Not Found"
		}
		return Failure{Kind: kind, Error: title, Message: pe.Error()}
	case errors.Is(err, context.Canceled):
		return Failure{Kind: FailureCanceled, Error: "Canceled", Message: err.Error()}
	case errors.As(err, &ie):
		return Failure{Kind: FailureInference, Error: "Inference Failed", Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return Failure{Kind: FailureInference, Error: "Inference Failed", Message: err.Error()}
	default:
		return Failure{Kind: FailureInternal, Error: "Internal Error", Message: err.Error()}
	}
}
