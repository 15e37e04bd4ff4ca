package decision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/apperrors"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/audit"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/crypto"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/ledger"
)

var tracer = otel.Tracer("github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/decision")

// maxRecordAttempts bounds how often a lost insert race is retried through
// the update path.
const maxRecordAttempts = 3

type Input struct {
	OrgID        string
	SiteID       string
	DecisionType string
	TargetType   string
	TargetID     string
	Reason       string
	// RootCause must be a JSON object; empty means {}.
	RootCause json.RawMessage
	ActorID   string
	// AuditMeta is merged into the governance event meta. It never replaces
	// the decision's own fields.
	AuditMeta map[string]any
}

type Result struct {
	DecisionID   string          `json:"decision_id"`
	DecisionType Type            `json:"decision_type"`
	TargetType   TargetType      `json:"target_type"`
	TargetID     string          `json:"target_id"`
	Reason       string          `json:"reason"`
	RootCause    json.RawMessage `json:"root_cause"`
	Status       string          `json:"status"`
	Revision     int             `json:"revision"`
	CreatedAt    string          `json:"created_at"`
	CreatedBy    string          `json:"created_by"`
	UpdatedAt    string          `json:"updated_at"`
	UpdatedBy    string          `json:"updated_by"`
	Created      bool            `json:"created"`
	Defaulted    bool            `json:"defaulted,omitempty"`
}

type Config struct {
	// Trail is required by RecordWithAudit.
	Trail  *audit.Trail
	Now    func() time.Time
	Logger *log.Logger
}

type Ledger struct {
	store  ledger.DecisionStore
	trail  *audit.Trail
	now    func() time.Time
	logger *log.Logger
}

func NewLedger(store ledger.DecisionStore, cfg Config) *Ledger {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Ledger{store: store, trail: cfg.Trail, now: now, logger: logger}
}

type normalized struct {
	key       ledger.DecisionKey
	typ       Type
	target    TargetType
	defaulted bool
	rootCause []byte
}

func (l *Ledger) normalize(in Input) (normalized, error) {
	if strings.TrimSpace(in.OrgID) == "" {
		return normalized{}, apperrors.Validation("org_id", "org_id is required")
	}
	typ, defaulted, err := ParseType(in.DecisionType)
	if err != nil {
		return normalized{}, err
	}
	target, err := ParseTargetType(in.TargetType)
	if err != nil {
		return normalized{}, err
	}
	if strings.TrimSpace(in.TargetID) == "" {
		return normalized{}, apperrors.Validation("target_id", "target_id is required")
	}
	if strings.TrimSpace(in.ActorID) == "" {
		return normalized{}, apperrors.Validation("actor_user_id", "actor is required")
	}
	rootCause := []byte("{}")
	if len(strings.TrimSpace(string(in.RootCause))) > 0 {
		if !gjson.ValidBytes(in.RootCause) || !gjson.ParseBytes(in.RootCause).IsObject() {
			return normalized{}, apperrors.Validation("root_cause", "root_cause must be a JSON object")
		}
		canonical, err := crypto.CanonicalizeJSON(in.RootCause)
		if err != nil {
			return normalized{}, apperrors.Validation("root_cause", "root_cause must be a JSON object")
		}
		rootCause = canonical
	}
	if defaulted {
		l.logger.Printf("decision: unrecognized decision type %q recorded as %s", in.DecisionType, typ)
	}
	return normalized{
		key: ledger.DecisionKey{
			OrgID:        in.OrgID,
			DecisionType: string(typ),
			TargetType:   string(target),
			TargetID:     in.TargetID,
		},
		typ:       typ,
		target:    target,
		defaulted: defaulted,
		rootCause: rootCause,
	}, nil
}

// Record upserts the active decision for the target. Repeat submissions
// update the existing row in place; an insert that loses a race to a
// concurrent writer is folded into the update path.
func (l *Ledger) Record(ctx context.Context, in Input) (Result, error) {
	ctx, span := tracer.Start(ctx, "decision.Record")
	defer span.End()

	n, err := l.normalize(in)
	if err != nil {
		return Result{}, err
	}
	span.SetAttributes(
		attribute.String("org_id", n.key.OrgID),
		attribute.String("decision_type", n.key.DecisionType),
		attribute.String("target_type", n.key.TargetType),
		attribute.String("target_id", n.key.TargetID),
	)
	return l.record(ctx, in, n)
}

func (l *Ledger) record(ctx context.Context, in Input, n normalized) (Result, error) {
	for attempt := 0; attempt < maxRecordAttempts; attempt++ {
		now := ledger.FormatTime(l.now())

		existing, ok, err := l.store.GetActiveDecision(ctx, n.key)
		if err != nil {
			return Result{}, fmt.Errorf("find active decision: %w", err)
		}
		if ok {
			if contentChanged(existing, in.Reason, n.rootCause) {
				existing.Revision = revision(existing) + 1
			} else {
				existing.Revision = revision(existing)
			}
			existing.Reason = in.Reason
			existing.RootCauseJSON = n.rootCause
			existing.UpdatedBy = in.ActorID
			existing.UpdatedAt = now
			err := l.store.UpdateDecision(ctx, existing)
			if errors.Is(err, ledger.ErrNotFound) {
				// Superseded between read and write.
				continue
			}
			if err != nil {
				return Result{}, fmt.Errorf("update decision: %w", err)
			}
			return toResult(existing, false, n.defaulted), nil
		}

		rec := ledger.DecisionRecord{
			DecisionID:    uuid.NewString(),
			OrgID:         n.key.OrgID,
			SiteID:        optional(in.SiteID),
			DecisionType:  n.key.DecisionType,
			TargetType:    n.key.TargetType,
			TargetID:      n.key.TargetID,
			Reason:        in.Reason,
			RootCauseJSON: n.rootCause,
			Status:        ledger.DecisionActive,
			Revision:      1,
			CreatedBy:     in.ActorID,
			CreatedAt:     now,
			UpdatedBy:     in.ActorID,
			UpdatedAt:     now,
		}
		err = l.store.InsertDecision(ctx, rec)
		if err == nil {
			return toResult(rec, true, n.defaulted), nil
		}
		if !errors.Is(err, ledger.ErrConflict) {
			return Result{}, fmt.Errorf("insert decision: %w", err)
		}
	}
	return Result{}, apperrors.New(apperrors.CodeInternal, "decision: active row for target kept changing")
}

// contentChanged compares canonical forms; stores may hand back the root
// cause reformatted.
func contentChanged(rec ledger.DecisionRecord, reason string, rootCause []byte) bool {
	if rec.Reason != reason {
		return true
	}
	stored := rec.RootCauseJSON
	if len(stored) == 0 {
		stored = []byte("{}")
	}
	canonical, err := crypto.CanonicalizeJSON(stored)
	if err != nil {
		return true
	}
	return !bytes.Equal(canonical, rootCause)
}

func revision(rec ledger.DecisionRecord) int {
	if rec.Revision < 1 {
		return 1
	}
	return rec.Revision
}

// RecordWithAudit records the decision and appends its governance event. An
// audit write failure fails the call even though the decision row persists;
// retrying is safe because both writes are idempotent.
func (l *Ledger) RecordWithAudit(ctx context.Context, in Input) (Result, audit.AppendResult, error) {
	if l.trail == nil {
		return Result{}, audit.AppendResult{}, apperrors.New(apperrors.CodeInternal, "decision: audit trail not configured")
	}
	ctx, span := tracer.Start(ctx, "decision.RecordWithAudit")
	defer span.End()

	n, err := l.normalize(in)
	if err != nil {
		return Result{}, audit.AppendResult{}, err
	}
	res, err := l.record(ctx, in, n)
	if err != nil {
		return Result{}, audit.AppendResult{}, err
	}

	meta := make(map[string]any, len(in.AuditMeta)+5)
	for k, v := range in.AuditMeta {
		meta[k] = v
	}
	meta["decision_id"] = res.DecisionID
	meta["reason"] = res.Reason
	meta["root_cause"] = json.RawMessage(res.RootCause)
	meta["created"] = res.Created
	meta["revision"] = res.Revision
	if res.Defaulted {
		meta["requested_decision_type"] = in.DecisionType
	}
	appended, err := l.trail.Append(ctx, audit.Event{
		OrgID:          n.key.OrgID,
		SiteID:         in.SiteID,
		ActorUserID:    in.ActorID,
		Action:         "decision." + strings.ToLower(string(n.typ)),
		TargetType:     n.key.TargetType,
		TargetID:       n.key.TargetID,
		Outcome:        "RECORDED",
		ReasonCodes:    []string{},
		Meta:           meta,
		IdempotencyKey: AuditKey(n.key, res.DecisionID, res.Revision, in.Reason, n.rootCause),
	})
	if err != nil {
		return res, audit.AppendResult{}, err
	}
	return res, appended, nil
}

// AuditKey is the idempotency key of a decision's governance event. It is
// scoped to one decision row and its revision, so every content change is
// audited, including a change back to earlier content, while a replay of
// the current revision is not.
func AuditKey(key ledger.DecisionKey, decisionID string, rev int, reason string, rootCause []byte) string {
	digest := crypto.DigestHex(append([]byte(reason+"\x00"), rootCause...))[:16]
	return audit.IdempotencyKey("decision", key.OrgID, key.TargetType, key.TargetID, key.DecisionType, decisionID, strconv.Itoa(rev), digest)
}

// SupersedeAuditKey is the idempotency key of the event retiring decisionID.
func SupersedeAuditKey(decisionID string) string {
	return audit.IdempotencyKey("decision", "supersede", decisionID)
}

// Supersede retires the active decision for key so a new cycle can start.
func (l *Ledger) Supersede(ctx context.Context, key ledger.DecisionKey) (Result, error) {
	ctx, span := tracer.Start(ctx, "decision.Supersede")
	defer span.End()

	res, ok, err := l.supersede(ctx, key)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, apperrors.New(apperrors.CodeNotFound, "no active decision for target")
	}
	return res, nil
}

func (l *Ledger) supersede(ctx context.Context, key ledger.DecisionKey) (Result, bool, error) {
	existing, ok, err := l.store.GetActiveDecision(ctx, key)
	if err != nil {
		return Result{}, false, fmt.Errorf("find active decision: %w", err)
	}
	if !ok {
		return Result{}, false, nil
	}
	at := ledger.FormatTime(l.now())
	if err := l.store.SupersedeDecision(ctx, existing.DecisionID, at); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return Result{}, false, nil
		}
		return Result{}, false, fmt.Errorf("supersede decision: %w", err)
	}
	existing.Status = ledger.DecisionSuperseded
	existing.UpdatedAt = at
	return toResult(existing, false, false), true, nil
}

// Actor identifies who performs a ledger change for its governance event.
type Actor struct {
	SiteID string
	UserID string
}

// SupersedeWithAudit retires the active decision and appends its governance
// event. When no active row is left, the most recently superseded row for
// key is audited instead, so a call that failed after the supersede
// committed completes on retry. The event key depends only on the decision
// id, which keeps the retry a Duplicate once the first event landed.
func (l *Ledger) SupersedeWithAudit(ctx context.Context, key ledger.DecisionKey, actor Actor) (Result, audit.AppendResult, error) {
	if l.trail == nil {
		return Result{}, audit.AppendResult{}, apperrors.New(apperrors.CodeInternal, "decision: audit trail not configured")
	}
	ctx, span := tracer.Start(ctx, "decision.SupersedeWithAudit")
	defer span.End()

	res, ok, err := l.supersede(ctx, key)
	if err != nil {
		return Result{}, audit.AppendResult{}, err
	}
	if !ok {
		prev, found, err := l.store.GetLatestSupersededDecision(ctx, key)
		if err != nil {
			return Result{}, audit.AppendResult{}, fmt.Errorf("find superseded decision: %w", err)
		}
		if !found {
			return Result{}, audit.AppendResult{}, apperrors.New(apperrors.CodeNotFound, "no active decision for target")
		}
		res = toResult(prev, false, false)
	}

	appended, err := l.trail.Append(ctx, audit.Event{
		OrgID:          key.OrgID,
		SiteID:         actor.SiteID,
		ActorUserID:    actor.UserID,
		Action:         "decision.supersede",
		TargetType:     key.TargetType,
		TargetID:       key.TargetID,
		Outcome:        "SUPERSEDED",
		Meta:           map[string]any{"decision_id": res.DecisionID, "decision_type": key.DecisionType},
		IdempotencyKey: SupersedeAuditKey(res.DecisionID),
	})
	if err != nil {
		return res, audit.AppendResult{}, err
	}
	return res, appended, nil
}

func toResult(rec ledger.DecisionRecord, created, defaulted bool) Result {
	rootCause := rec.RootCauseJSON
	if len(rootCause) == 0 {
		rootCause = []byte("{}")
	}
	return Result{
		DecisionID:   rec.DecisionID,
		DecisionType: Type(rec.DecisionType),
		TargetType:   TargetType(rec.TargetType),
		TargetID:     rec.TargetID,
		Reason:       rec.Reason,
		RootCause:    json.RawMessage(rootCause),
		Status:       rec.Status,
		Revision:     revision(rec),
		CreatedAt:    rec.CreatedAt,
		CreatedBy:    rec.CreatedBy,
		UpdatedAt:    rec.UpdatedAt,
		UpdatedBy:    rec.UpdatedBy,
		Created:      created,
		Defaulted:    defaulted,
	}
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
