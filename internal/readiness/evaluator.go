package readiness

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Scope identifies one shift instance at one site.
type Scope struct {
	OrgID     string `json:"org_id"`
	SiteID    string `json:"site_id"`
	Date      string `json:"date"`
	ShiftCode string `json:"shift_code"`
}

// PillarResult is one evaluator's verdict. Flag is kept as the raw upstream
// string so unknown values reach the composer and fail closed there.
type PillarResult struct {
	Flag string         `json:"flag"`
	KPIs map[string]any `json:"kpis,omitempty"`
}

// Evaluator is an external legal or operational compliance engine.
type Evaluator interface {
	Evaluate(ctx context.Context, scope Scope) (PillarResult, error)
}

type EvaluatorFunc func(ctx context.Context, scope Scope) (PillarResult, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, scope Scope) (PillarResult, error) {
	return f(ctx, scope)
}

// UpstreamError describes an evaluator call that produced no usable verdict.
type UpstreamError struct {
	Pillar     Pillar
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s evaluator: status %d: %v", e.Pillar, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s evaluator: %v", e.Pillar, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) ReasonCode() string {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return string(e.Pillar) + "_UPSTREAM_UNAUTHORIZED"
	case http.StatusNotFound:
		return string(e.Pillar) + "_UPSTREAM_NOT_FOUND"
	default:
		return string(e.Pillar) + "_UPSTREAM_ERROR"
	}
}

// FailureReason maps any evaluator error to the pillar's reason code.
func FailureReason(p Pillar, err error) string {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		e := *upstream
		if e.Pillar == "" {
			e.Pillar = p
		}
		return e.ReasonCode()
	}
	return string(p) + "_UPSTREAM_ERROR"
}
