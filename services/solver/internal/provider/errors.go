package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
	"google.golang.org/genai"
)

// Kind classifies a failure for the UI.
type Kind string

const (
	KindConfiguration Kind = "configuration-error"
	KindAuth          Kind = "auth-error"
	KindRateLimit     Kind = "rate-limit"
	KindServer        Kind = "server-error"
	KindParse         Kind = "parse-error"
	KindCancelled     Kind = "cancelled"
	KindTransport     Kind = "transport-error"
	KindGeneric       Kind = "generic"
)

// Error is a classified provider or pipeline failure. Its message is always
// redacted.
type Error struct {
	Kind       Kind
	Provider   Name
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := "unknown error"
	if e.Err != nil {
		msg = Redact(e.Err.Error())
	}
	if e.Provider == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s %s: %s", e.Provider, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds a classified error.
func Errorf(kind Kind, name Name, format string, args ...any) *Error {
	return &Error{Kind: kind, Provider: name, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the classification of err, KindGeneric if it carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return KindGeneric
}

// Classify maps an error returned by a provider call made under ctx onto the
// failure taxonomy. Once ctx is cancelled the result is KindCancelled no matter
// what the transport reported.
func Classify(ctx context.Context, name Name, err error) *Error {
	if err == nil {
		return nil
	}
	cancelled := ctx.Err() != nil || errors.Is(err, context.Canceled)

	var e *Error
	if errors.As(err, &e) {
		if cancelled && e.Kind != KindCancelled {
			return &Error{Kind: KindCancelled, Provider: e.Provider, Err: err}
		}
		return e
	}
	if cancelled {
		return &Error{Kind: KindCancelled, Provider: name, Err: err}
	}

	if status := statusCode(err); status != 0 {
		return &Error{Kind: kindForStatus(status), Provider: name, StatusCode: status, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTransport, Provider: name, Err: err}
	}
	return &Error{Kind: KindGeneric, Provider: name, Err: err}
}

func statusCode(err error) int {
	var oErr *openai.Error
	if errors.As(err, &oErr) {
		return oErr.StatusCode
	}
	var aErr *anthropic.Error
	if errors.As(err, &aErr) {
		return aErr.StatusCode
	}
	var gErr genai.APIError
	if errors.As(err, &gErr) {
		return gErr.Code
	}
	return 0
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status >= 500:
		return KindServer
	default:
		return KindGeneric
	}
}

// Guidance returns the user-facing sentence for a classified error.
func Guidance(e *Error) string {
	who := string(e.Provider)
	if who == "" {
		who = "the AI provider"
	}
	switch e.Kind {
	case KindConfiguration:
		return "No usable API key is configured. Add your API key in settings."
	case KindAuth:
		return fmt.Sprintf("Authentication with %s failed. Check your API key in settings.", who)
	case KindRateLimit:
		return fmt.Sprintf("%s rate limit or token quota reached. Wait a moment or switch to another provider in settings.", who)
	case KindServer:
		return fmt.Sprintf("%s returned a server error (HTTP %d). Try again shortly or switch providers.", who, e.StatusCode)
	case KindParse:
		return "Could not read a problem from the screenshots. Retake them with the full problem statement visible."
	case KindTransport:
		return fmt.Sprintf("Could not reach %s. Check your network connection.", who)
	case KindCancelled:
		return "Processing was cancelled."
	default:
		return e.Error()
	}
}
