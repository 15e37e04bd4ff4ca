// Package audit appends governance events to an idempotency-keyed trail.
package audit

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/apperrors"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/crypto"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/ledger"
)

type Event struct {
	OrgID            string         `json:"org_id"`
	SiteID           string         `json:"site_id,omitempty"`
	ActorUserID      string         `json:"actor_user_id,omitempty"`
	Action           string         `json:"action"`
	TargetType       string         `json:"target_type,omitempty"`
	TargetID         string         `json:"target_id,omitempty"`
	Outcome          string         `json:"outcome,omitempty"`
	LegitimacyStatus string         `json:"legitimacy_status,omitempty"`
	ReadinessStatus  string         `json:"readiness_status,omitempty"`
	ReasonCodes      []string       `json:"reason_codes"`
	Meta             map[string]any `json:"meta,omitempty"`
	IdempotencyKey   string         `json:"idempotency_key"`
}

type AppendStatus string

const (
	Recorded  AppendStatus = "recorded"
	Duplicate AppendStatus = "duplicate"
)

type AppendResult struct {
	Status  AppendStatus
	EventID string
	Digest  string
}

// StoredEvent is an event as read back from the trail.
type StoredEvent struct {
	Event
	EventID    string `json:"event_id"`
	BodyDigest string `json:"body_digest"`
	KeyID      string `json:"key_id,omitempty"`
	Sig        []byte `json:"sig,omitempty"`
	CreatedAt  string `json:"created_at"`
	metaJSON   []byte
}

type Config struct {
	// Signer is optional; unsigned trails still carry body digests.
	Signer crypto.Signer
	Now    func() time.Time
	Logger *log.Logger
}

type Trail struct {
	store  ledger.EventStore
	signer crypto.Signer
	now    func() time.Time
	logger *log.Logger
}

func NewTrail(store ledger.EventStore, cfg Config) *Trail {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Trail{store: store, signer: cfg.Signer, now: now, logger: logger}
}

// IdempotencyKey joins parts with ":" and writes NA for empty parts.
func IdempotencyKey(parts ...string) string {
	out := make([]string, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			p = "NA"
		}
		out[i] = p
	}
	return strings.Join(out, ":")
}

func validate(ev Event) error {
	switch {
	case strings.TrimSpace(ev.IdempotencyKey) == "":
		return apperrors.Validation("idempotency_key", "idempotency_key is required")
	case strings.TrimSpace(ev.Action) == "":
		return apperrors.Validation("action", "action is required")
	case strings.TrimSpace(ev.OrgID) == "":
		return apperrors.Validation("org_id", "org_id is required")
	}
	return nil
}

// Append writes the event once. A repeated idempotency key reports Duplicate
// and writes nothing; any other storage failure is returned and must abort
// the caller's mutation.
func (t *Trail) Append(ctx context.Context, ev Event) (AppendResult, error) {
	if err := validate(ev); err != nil {
		return AppendResult{}, err
	}
	if ev.ReasonCodes == nil {
		ev.ReasonCodes = []string{}
	}
	metaJSON := []byte("{}")
	if len(ev.Meta) > 0 {
		raw, err := json.Marshal(ev.Meta)
		if err != nil {
			return AppendResult{}, apperrors.Validation("meta", "meta must be JSON encodable")
		}
		metaJSON = raw
	}

	eventID := uuid.NewString()
	createdAt := ledger.FormatTime(t.now())
	digest, err := bodyDigest(ev, metaJSON, eventID, createdAt)
	if err != nil {
		return AppendResult{}, apperrors.Wrap(apperrors.CodeAuditWriteFailed, "digest governance event", err)
	}

	rec := ledger.GovernanceEventRecord{
		EventID:          eventID,
		OrgID:            ev.OrgID,
		SiteID:           optional(ev.SiteID),
		ActorUserID:      ev.ActorUserID,
		Action:           ev.Action,
		TargetType:       ev.TargetType,
		TargetID:         ev.TargetID,
		Outcome:          ev.Outcome,
		LegitimacyStatus: ev.LegitimacyStatus,
		ReadinessStatus:  ev.ReadinessStatus,
		ReasonCodes:      ev.ReasonCodes,
		MetaJSON:         metaJSON,
		IdempotencyKey:   ev.IdempotencyKey,
		BodyDigest:       digest,
		CreatedAt:        createdAt,
	}
	if t.signer != nil {
		raw, err := crypto.DigestBytesFromPrefixed(digest)
		if err != nil {
			return AppendResult{}, apperrors.Wrap(apperrors.CodeAuditWriteFailed, "decode digest", err)
		}
		sig, err := t.signer.Sign(raw)
		if err != nil {
			return AppendResult{}, apperrors.Wrap(apperrors.CodeAuditWriteFailed, "sign governance event", err)
		}
		rec.KeyID = t.signer.KeyID()
		rec.Sig = sig
	}

	if err := t.store.InsertGovernanceEvent(ctx, rec); err != nil {
		if errors.Is(err, ledger.ErrConflict) {
			return AppendResult{Status: Duplicate}, nil
		}
		return AppendResult{}, apperrors.Wrap(apperrors.CodeAuditWriteFailed, "append governance event", err)
	}
	return AppendResult{Status: Recorded, EventID: eventID, Digest: digest}, nil
}

// AppendBestEffort is for side-channel events whose loss must not fail the
// surrounding operation.
func (t *Trail) AppendBestEffort(ctx context.Context, ev Event) {
	if _, err := t.Append(ctx, ev); err != nil {
		t.logger.Printf("audit: best-effort append %s (%s): %v", ev.Action, ev.IdempotencyKey, err)
	}
}

func (t *Trail) List(ctx context.Context, orgID, targetType, targetID string) ([]StoredEvent, error) {
	if strings.TrimSpace(orgID) == "" {
		return nil, apperrors.Validation("org_id", "org_id is required")
	}
	recs, err := t.store.ListGovernanceEvents(ctx, orgID, targetType, targetID)
	if err != nil {
		return nil, fmt.Errorf("list governance events: %w", err)
	}
	out := make([]StoredEvent, 0, len(recs))
	for _, rec := range recs {
		ev, err := fromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

var (
	ErrDigestMismatch   = errors.New("audit: body digest mismatch")
	ErrSignatureInvalid = errors.New("audit: signature invalid")
	ErrUnsigned         = errors.New("audit: event is not signed")
)

// Verify recomputes the body digest and, when a public key is given, checks
// the signature over it.
func Verify(ev StoredEvent, publicKey ed25519.PublicKey) error {
	metaJSON := ev.metaJSON
	if metaJSON == nil {
		raw, err := json.Marshal(nonNilMeta(ev.Meta))
		if err != nil {
			return err
		}
		metaJSON = raw
	}
	ev.Event.ReasonCodes = nonNilCodes(ev.ReasonCodes)
	digest, err := bodyDigest(ev.Event, metaJSON, ev.EventID, ev.CreatedAt)
	if err != nil {
		return err
	}
	if digest != ev.BodyDigest {
		return ErrDigestMismatch
	}
	if publicKey == nil {
		return nil
	}
	if len(ev.Sig) == 0 {
		return ErrUnsigned
	}
	raw, err := crypto.DigestBytesFromPrefixed(digest)
	if err != nil {
		return err
	}
	ok, err := crypto.VerifyEd25519(publicKey, raw, ev.Sig)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSignatureInvalid
	}
	return nil
}

func bodyDigest(ev Event, metaJSON []byte, eventID, createdAt string) (string, error) {
	digest, _, err := crypto.DigestCanonical(map[string]any{
		"event_id":          eventID,
		"org_id":            ev.OrgID,
		"site_id":           ev.SiteID,
		"actor_user_id":     ev.ActorUserID,
		"action":            ev.Action,
		"target_type":       ev.TargetType,
		"target_id":         ev.TargetID,
		"outcome":           ev.Outcome,
		"legitimacy_status": ev.LegitimacyStatus,
		"readiness_status":  ev.ReadinessStatus,
		"reason_codes":      ev.ReasonCodes,
		"meta":              json.RawMessage(metaJSON),
		"idempotency_key":   ev.IdempotencyKey,
		"created_at":        createdAt,
	})
	return digest, err
}

func fromRecord(rec ledger.GovernanceEventRecord) (StoredEvent, error) {
	var meta map[string]any
	if len(rec.MetaJSON) > 0 {
		if err := json.Unmarshal(rec.MetaJSON, &meta); err != nil {
			return StoredEvent{}, fmt.Errorf("event %s meta: %w", rec.EventID, err)
		}
	}
	site := ""
	if rec.SiteID != nil {
		site = *rec.SiteID
	}
	return StoredEvent{
		Event: Event{
			OrgID:            rec.OrgID,
			SiteID:           site,
			ActorUserID:      rec.ActorUserID,
			Action:           rec.Action,
			TargetType:       rec.TargetType,
			TargetID:         rec.TargetID,
			Outcome:          rec.Outcome,
			LegitimacyStatus: rec.LegitimacyStatus,
			ReadinessStatus:  rec.ReadinessStatus,
			ReasonCodes:      nonNilCodes(rec.ReasonCodes),
			Meta:             meta,
			IdempotencyKey:   rec.IdempotencyKey,
		},
		EventID:    rec.EventID,
		BodyDigest: rec.BodyDigest,
		KeyID:      rec.KeyID,
		Sig:        rec.Sig,
		CreatedAt:  rec.CreatedAt,
		metaJSON:   rec.MetaJSON,
	}, nil
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func nonNilCodes(codes []string) []string {
	if codes == nil {
		return []string{}
	}
	return codes
}

func nonNilMeta(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	return meta
}
