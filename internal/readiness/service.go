package readiness

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/apperrors"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/ledger"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/policy"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/targetid"
)

var tracer = otel.Tracer("github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/readiness")

// DefaultShiftCodes is used when no shift codes are configured.
var DefaultShiftCodes = []string{"DAY", "EVENING", "NIGHT"}

type PillarReport struct {
	Flag       string         `json:"flag,omitempty"`
	Supported  bool           `json:"supported"`
	ReasonCode string         `json:"reason_code,omitempty"`
	KPIs       map[string]any `json:"kpis,omitempty"`
}

// Report is the readiness verdict for one shift. Overall is nil whenever the
// verdict cannot be trusted: an evaluator failed or the policy scope is
// unresolvable.
type Report struct {
	Scope       Scope              `json:"scope"`
	TargetID    string             `json:"target_id"`
	ShiftID     string             `json:"shift_id,omitempty"`
	Overall     *Overall           `json:"overall"`
	Supported   bool               `json:"supported"`
	Blocked     bool               `json:"blocked"`
	ScopeError  *policy.ScopeError `json:"scope_error,omitempty"`
	ReasonCodes []string           `json:"reason_codes"`
	Legal       PillarReport       `json:"legal"`
	Ops         PillarReport       `json:"ops"`
}

type Config struct {
	Legal Evaluator
	Ops   Evaluator
	// Bindings gates readiness on policy resolution when set.
	Bindings   ledger.BindingStore
	ShiftCodes []string
	Now        func() time.Time
	Logger     *log.Logger
}

type Service struct {
	legal      Evaluator
	ops        Evaluator
	bindings   ledger.BindingStore
	shiftCodes map[string]struct{}
	now        func() time.Time
	logger     *log.Logger
}

func NewService(cfg Config) *Service {
	codes := cfg.ShiftCodes
	if len(codes) == 0 {
		codes = DefaultShiftCodes
	}
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		set[strings.ToUpper(strings.TrimSpace(c))] = struct{}{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		legal:      cfg.Legal,
		ops:        cfg.Ops,
		bindings:   cfg.Bindings,
		shiftCodes: set,
		now:        now,
		logger:     logger,
	}
}

// ValidateScope normalizes the shift code and checks the date layout.
func (s *Service) ValidateScope(scope Scope) (Scope, error) {
	scope.OrgID = strings.TrimSpace(scope.OrgID)
	scope.SiteID = strings.TrimSpace(scope.SiteID)
	scope.Date = strings.TrimSpace(scope.Date)
	scope.ShiftCode = strings.ToUpper(strings.TrimSpace(scope.ShiftCode))

	if scope.OrgID == "" {
		return scope, apperrors.Validation("org_id", "org_id is required")
	}
	if _, err := time.Parse("2006-01-02", scope.Date); err != nil {
		return scope, apperrors.Validation("date", "date must be YYYY-MM-DD")
	}
	if _, ok := s.shiftCodes[scope.ShiftCode]; !ok {
		return scope, apperrors.Validation("shift_code", fmt.Sprintf("unsupported shift_code %q", scope.ShiftCode))
	}
	return scope, nil
}

type pillarOutcome struct {
	result PillarResult
	err    error
}

// Readiness evaluates both pillars concurrently and composes the verdict.
// Evaluator failures degrade the report; only storage failures return err.
func (s *Service) Readiness(ctx context.Context, scope Scope) (Report, error) {
	scope, err := s.ValidateScope(scope)
	if err != nil {
		return Report{}, err
	}

	ctx, span := tracer.Start(ctx, "readiness.Readiness", trace.WithAttributes(
		attribute.String("org_id", scope.OrgID),
		attribute.String("site_id", scope.SiteID),
		attribute.String("date", scope.Date),
		attribute.String("shift_code", scope.ShiftCode),
	))
	defer span.End()

	var (
		legal, ops pillarOutcome
		bound      *policy.Result
		shiftID    string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		legal = s.evaluate(gctx, PillarLegal, s.legal, scope)
		return nil
	})
	g.Go(func() error {
		ops = s.evaluate(gctx, PillarOps, s.ops, scope)
		return nil
	})
	if s.bindings != nil {
		g.Go(func() error {
			shift, ok, err := s.bindings.FindShift(gctx, scope.OrgID, scope.SiteID, scope.Date, scope.ShiftCode)
			if err != nil {
				return fmt.Errorf("find shift: %w", err)
			}
			if !ok {
				return nil
			}
			res, err := policy.Resolve(gctx, s.bindings, scope.OrgID, shift.ShiftID)
			if err != nil {
				return err
			}
			shiftID = shift.ShiftID
			bound = &res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return Report{}, err
	}

	report := Report{
		Scope:       scope,
		TargetID:    targetid.ForShiftReadiness(scope.OrgID, scope.SiteID, scope.Date, scope.ShiftCode),
		ShiftID:     shiftID,
		ReasonCodes: []string{},
		Legal:       pillarReport(PillarLegal, legal),
		Ops:         pillarReport(PillarOps, ops),
	}

	switch {
	case bound != nil && bound.Scope != nil:
		report.Blocked = true
		report.ScopeError = bound.Scope
		report.ReasonCodes = append(report.ReasonCodes, bound.Scope.ReasonCodes...)
		s.logger.Printf("readiness: shift %s blocked: %v", shiftID, bound.Scope)
	case legal.err != nil || ops.err != nil:
		if legal.err != nil {
			report.ReasonCodes = append(report.ReasonCodes, report.Legal.ReasonCode)
		}
		if ops.err != nil {
			report.ReasonCodes = append(report.ReasonCodes, report.Ops.ReasonCode)
		}
	default:
		overall := ComposeOverallStatus(LegalFlag(legal.result.Flag), OpsFlag(ops.result.Flag))
		report.Overall = &overall
		report.Supported = true
		report.ReasonCodes = ComposeReasonCodes(LegalFlag(legal.result.Flag), OpsFlag(ops.result.Flag))
		span.SetAttributes(attribute.String("overall", string(overall)))
	}

	if bound != nil && bound.OK() {
		// Snapshot failures never change the verdict.
		if _, err := policy.SnapshotBinding(ctx, s.bindings, bound.Binding, s.now()); err != nil {
			s.logger.Printf("readiness: snapshot shift %s: %v", shiftID, err)
		}
	}
	return report, nil
}

func (s *Service) evaluate(ctx context.Context, pillar Pillar, ev Evaluator, scope Scope) pillarOutcome {
	if ev == nil {
		return pillarOutcome{err: &UpstreamError{Pillar: pillar, Err: fmt.Errorf("evaluator not configured")}}
	}
	res, err := ev.Evaluate(ctx, scope)
	if err != nil {
		s.logger.Printf("readiness: %s evaluator failed: %v", strings.ToLower(string(pillar)), err)
	}
	return pillarOutcome{result: res, err: err}
}

func pillarReport(pillar Pillar, out pillarOutcome) PillarReport {
	if out.err != nil {
		return PillarReport{Supported: false, ReasonCode: FailureReason(pillar, out.err)}
	}
	return PillarReport{Flag: out.result.Flag, Supported: true, KPIs: out.result.KPIs}
}
