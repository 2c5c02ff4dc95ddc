// Package oracle abstracts the external reasoning service. The orchestrator
// only ever sees untyped text back; tolerating malformed output is the
// validator's job, not this package's.
package oracle

import (
	"context"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// Oracle proposes next steps and evaluates results from a prompt.
type Oracle interface {
	Propose(ctx context.Context, prompt string) (string, error)
}

// LLM adapts a langchaingo model to the Oracle interface with a per-call
// deadline so a hung provider cannot stall the loop.
type LLM struct {
	Model   llms.Model
	Timeout time.Duration
}

func NewLLM(model llms.Model, timeout time.Duration) *LLM {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &LLM{Model: model, Timeout: timeout}
}

func (l *LLM) Propose(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, l.Timeout)
	defer cancel()
	return llms.GenerateFromSinglePrompt(callCtx, l.Model, prompt)
}
