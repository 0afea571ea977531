// Package provider holds one client per text generation backend. Clients
// make a single request per call and classify failures; they never retry.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// Request is one text generation call.
type Request struct {
	Prompt      string
	System      string
	Temperature float64
}

type TextGenerator interface {
	Name() string
	GenerateText(ctx context.Context, req Request) (string, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Kind classifies a provider failure.
type Kind int

const (
	KindNetwork Kind = iota
	KindRateLimited
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindMalformed:
		return "malformed_response"
	default:
		return "network"
	}
}

// Sentinels matched by errors.Is against an *Error of the same kind.
var (
	ErrRateLimited = errors.New("rate limited")
	ErrMalformed   = errors.New("malformed provider response")
	ErrNetwork     = errors.New("provider unavailable")
)

// Error is returned by every adapter.
type Error struct {
	Provider   string
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.Kind == KindRateLimited
	case ErrMalformed:
		return e.Kind == KindMalformed
	case ErrNetwork:
		return e.Kind == KindNetwork
	}
	return false
}

// KindOf returns the classification of err. Errors that did not come from
// an adapter count as network failures.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindNetwork
}

func IsRateLimited(err error) bool { return errors.Is(err, ErrRateLimited) }

func networkErr(provider string, status int, err error) *Error {
	return &Error{Provider: provider, Kind: KindNetwork, StatusCode: status, Err: err}
}

func malformedErr(provider string, err error) *Error {
	return &Error{Provider: provider, Kind: KindMalformed, Err: err}
}

// statusErr classifies a non-2xx response. 429 is a rate limit.
func statusErr(provider string, status int, msg string) *Error {
	if msg == "" {
		msg = fmt.Sprintf("unexpected status %d", status)
	}
	kind := KindNetwork
	if status == 429 {
		kind = KindRateLimited
	}
	return &Error{Provider: provider, Kind: kind, StatusCode: status, Err: errors.New(msg)}
}
