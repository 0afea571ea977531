// Package fallback runs an ordered list of generation strategies for one
// capability and returns the first success.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/tareas/internal/provider"
)

// State is where a chain execution ended up.
type State int

const (
	Trying State = iota
	Succeeded
	Exhausted
)

func (s State) String() string {
	switch s {
	case Trying:
		return "trying"
	case Succeeded:
		return "succeeded"
	case Exhausted:
		return "exhausted"
	}
	return "unknown"
}

// Strategy is one provider attempt.
type Strategy[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// Attempt records a single strategy invocation.
type Attempt struct {
	Provider string
	Err      error
	Kind     provider.Kind
	Duration time.Duration
}

// Report describes how an execution went. Provider is the strategy that
// produced the result, empty when the chain was exhausted.
type Report struct {
	State    State
	Provider string
	Attempts []Attempt
}

// ExhaustedError is returned when every strategy failed. Its message is the
// last provider's message.
type ExhaustedError struct {
	Capability string
	Attempts   []Attempt
	Last       error
}

func (e *ExhaustedError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("%s: no providers configured", e.Capability)
	}
	return e.Last.Error()
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Chain is the fixed provider order for one capability. A Chain holds no
// state between executions.
type Chain[T any] struct {
	Name       string
	Strategies []Strategy[T]
	Logger     *slog.Logger
}

// Execute tries each strategy once, in order. Rate limits and other
// failures both move on to the next strategy. Cancellation of ctx stops
// the chain and returns ctx's error.
func (c Chain[T]) Execute(ctx context.Context) (T, Report, error) {
	var zero T
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	report := Report{State: Trying}
	var last error
	for i, s := range c.Strategies {
		if err := ctx.Err(); err != nil {
			report.State = Exhausted
			return zero, report, err
		}

		start := time.Now()
		v, err := s.Run(ctx)
		attempt := Attempt{Provider: s.Name, Err: err, Duration: time.Since(start)}
		if err == nil {
			report.Attempts = append(report.Attempts, attempt)
			report.State = Succeeded
			report.Provider = s.Name
			return v, report, nil
		}

		attempt.Kind = provider.KindOf(err)
		report.Attempts = append(report.Attempts, attempt)
		last = err

		if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			report.State = Exhausted
			return zero, report, ctx.Err()
		}

		if i < len(c.Strategies)-1 {
			logger.Info("falling back",
				"capability", c.Name,
				"provider", s.Name,
				"next", c.Strategies[i+1].Name,
				"kind", attempt.Kind.String(),
				"error", err,
			)
		}
	}

	report.State = Exhausted
	logger.Error("all providers failed",
		"capability", c.Name,
		"attempts", len(report.Attempts),
		"error", last,
	)
	return zero, report, &ExhaustedError{Capability: c.Name, Attempts: report.Attempts, Last: last}
}

// Generators turns text generators into strategies that all send req.
// Nil generators are skipped so unconfigured backends drop out of a chain.
func Generators(req provider.Request, gens ...provider.TextGenerator) []Strategy[string] {
	out := make([]Strategy[string], 0, len(gens))
	for _, g := range gens {
		if g == nil {
			continue
		}
		out = append(out, Strategy[string]{Name: g.Name(), Run: func(ctx context.Context) (string, error) {
			return g.GenerateText(ctx, req)
		}})
	}
	return out
}
