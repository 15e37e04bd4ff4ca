// Package api exposes the readiness and decision governance core over HTTP.
package api

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/apperrors"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/audit"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/auth"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/decision"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/induction"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/ledger"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/legitimacy"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/policy"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/readiness"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/targetid"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/pkg/types"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	Auth       auth.Authenticator
	Readiness  *readiness.Service
	Decisions  *decision.Ledger
	Bindings   ledger.BindingStore
	Trail      *audit.Trail
	Induction  *induction.Gate
	Legitimacy *legitimacy.Service
	// PublicKey enables signature checks when listing governance events.
	PublicKey ed25519.PublicKey
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.HealthResponse{Status: "ok"})
}

func (h *Handler) GetReadiness(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	if h.Readiness == nil {
		writeMessage(w, http.StatusNotImplemented, apperrors.CodeInternal, "readiness service not configured")
		return
	}

	q := r.URL.Query()
	report, err := h.Readiness.Readiness(r.Context(), readiness.Scope{
		OrgID:     claims.OrgID,
		SiteID:    claims.SiteID,
		Date:      q.Get("date"),
		ShiftCode: q.Get("shift_code"),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if h.Trail != nil {
		status := "UNSUPPORTED"
		switch {
		case report.Blocked:
			status = "BLOCKED"
		case report.Overall != nil:
			status = string(*report.Overall)
		}
		h.Trail.AppendBestEffort(r.Context(), audit.Event{
			OrgID:           claims.OrgID,
			SiteID:          claims.SiteID,
			ActorUserID:     claims.UserID,
			Action:          "readiness.evaluated",
			TargetType:      string(decision.TargetShiftReadiness),
			TargetID:        report.TargetID,
			Outcome:         status,
			ReadinessStatus: status,
			ReasonCodes:     report.ReasonCodes,
			IdempotencyKey:  audit.IdempotencyKey("readiness", report.TargetID, status, strings.Join(report.ReasonCodes, ",")),
		})
	}

	if report.Blocked {
		writeJSON(w, http.StatusConflict, report)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) RecordDecision(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	if h.Decisions == nil || h.Readiness == nil {
		writeMessage(w, http.StatusNotImplemented, apperrors.CodeInternal, "decision ledger not configured")
		return
	}

	var req types.DecisionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	scope, err := h.Readiness.ValidateScope(readiness.Scope{
		OrgID:     claims.OrgID,
		SiteID:    claims.SiteID,
		Date:      req.Date,
		ShiftCode: req.ShiftCode,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	target, err := decision.ParseTargetType(req.TargetType)
	if err != nil {
		writeError(w, err)
		return
	}

	var targetID string
	switch target {
	case decision.TargetStationShift:
		if strings.TrimSpace(req.StationID) == "" {
			writeError(w, apperrors.Validation("station_id", "station_id is required for station_shift decisions"))
			return
		}
		targetID = targetid.ForStationShift(scope.Date, scope.ShiftCode, req.StationID, req.IssueType)
	case decision.TargetShiftReadiness:
		targetID = targetid.ForShiftReadiness(scope.OrgID, scope.SiteID, scope.Date, scope.ShiftCode)
	}

	typ, _, err := decision.ParseType(req.DecisionType)
	if err != nil {
		writeError(w, err)
		return
	}
	binding, err := h.checkBinding(r, scope)
	if err != nil {
		writeError(w, err)
		return
	}
	if binding.scope != nil && typ.SanctionsRun() {
		writeError(w, binding.scope)
		return
	}

	res, appended, err := h.Decisions.RecordWithAudit(r.Context(), decision.Input{
		OrgID:        claims.OrgID,
		SiteID:       claims.SiteID,
		DecisionType: req.DecisionType,
		TargetType:   string(target),
		TargetID:     targetID,
		Reason:       req.Reason,
		RootCause:    req.RootCause,
		ActorID:      claims.UserID,
		AuditMeta:    binding.meta(),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	out := decisionResponse(res)
	out.AuditStatus = string(appended.Status)
	writeJSON(w, http.StatusOK, out)
}

const (
	bindingOK           = "ok"
	bindingBlocked      = "blocked"
	bindingUnknownShift = "unknown_shift"
	bindingUnchecked    = "unchecked"
)

type bindingOutcome struct {
	status  string
	shiftID string
	scope   *policy.ScopeError
}

func (b bindingOutcome) meta() map[string]any {
	out := map[string]any{"policy_binding": b.status}
	if b.shiftID != "" {
		out["shift_id"] = b.shiftID
	}
	if b.scope != nil {
		out["policy_binding_reason_codes"] = b.scope.ReasonCodes
	}
	return out
}

// checkBinding resolves the policy binding of the decision's shift. Shifts
// missing from the shifts table skip the check, as readiness does.
func (h *Handler) checkBinding(r *http.Request, scope readiness.Scope) (bindingOutcome, error) {
	if h.Bindings == nil {
		return bindingOutcome{status: bindingUnchecked}, nil
	}
	shift, ok, err := h.Bindings.FindShift(r.Context(), scope.OrgID, scope.SiteID, scope.Date, scope.ShiftCode)
	if err != nil {
		return bindingOutcome{}, err
	}
	if !ok {
		return bindingOutcome{status: bindingUnknownShift}, nil
	}
	res, err := policy.Resolve(r.Context(), h.Bindings, scope.OrgID, shift.ShiftID)
	if err != nil {
		return bindingOutcome{}, err
	}
	if res.Scope != nil {
		return bindingOutcome{status: bindingBlocked, shiftID: shift.ShiftID, scope: res.Scope}, nil
	}
	return bindingOutcome{status: bindingOK, shiftID: shift.ShiftID}, nil
}

func (h *Handler) SupersedeDecision(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	if h.Decisions == nil {
		writeMessage(w, http.StatusNotImplemented, apperrors.CodeInternal, "decision ledger not configured")
		return
	}

	var req types.SupersedeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	typ, _, err := decision.ParseType(req.DecisionType)
	if err != nil {
		writeError(w, err)
		return
	}
	target, err := decision.ParseTargetType(req.TargetType)
	if err != nil {
		writeError(w, err)
		return
	}
	key := ledger.DecisionKey{OrgID: claims.OrgID, DecisionType: string(typ), TargetType: string(target), TargetID: req.TargetID}

	res, _, err := h.Decisions.SupersedeWithAudit(r.Context(), key, decision.Actor{SiteID: claims.SiteID, UserID: claims.UserID})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decisionResponse(res))
}

func (h *Handler) PolicyBinding(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	if h.Bindings == nil {
		writeMessage(w, http.StatusNotImplemented, apperrors.CodeInternal, "policy bindings not configured")
		return
	}

	shiftID := strings.TrimSpace(r.URL.Query().Get("shift_id"))
	if shiftID == "" {
		writeError(w, apperrors.Validation("shift_id", "shift_id is required"))
		return
	}
	res, err := policy.Resolve(r.Context(), h.Bindings, claims.OrgID, shiftID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !res.OK() {
		writeError(w, res.Err())
		return
	}
	writeJSON(w, http.StatusOK, res.Binding)
}

func (h *Handler) EnrollInduction(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	if h.Induction == nil {
		writeMessage(w, http.StatusNotImplemented, apperrors.CodeInternal, "induction gate not configured")
		return
	}

	var req types.EnrollRequest
	if !decodeBody(w, r, &req) {
		return
	}
	st, err := h.Induction.Enroll(r.Context(), claims.OrgID, claims.SiteID, req.EmployeeID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !h.appendInduction(w, r, claims, "induction.enroll", st, st.EnrolledAt) {
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) CompleteInduction(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	if h.Induction == nil {
		writeMessage(w, http.StatusNotImplemented, apperrors.CodeInternal, "induction gate not configured")
		return
	}

	var req types.CompleteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	st, err := h.Induction.Complete(r.Context(), claims.OrgID, claims.SiteID, req.EmployeeID, req.CheckpointID, claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !h.appendInduction(w, r, claims, "induction.complete", st, req.CheckpointID) {
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// appendInduction audits an induction mutation. Failure to audit fails the
// request.
func (h *Handler) appendInduction(w http.ResponseWriter, r *http.Request, claims auth.Claims, action string, st induction.Status, salt string) bool {
	if h.Trail == nil {
		return true
	}
	_, err := h.Trail.Append(r.Context(), audit.Event{
		OrgID:          claims.OrgID,
		SiteID:         claims.SiteID,
		ActorUserID:    claims.UserID,
		Action:         action,
		TargetType:     "employee",
		TargetID:       st.EmployeeID,
		Outcome:        string(st.State),
		Meta:           map[string]any{"required": st.Required, "completed": st.Completed, "remaining": st.Remaining},
		IdempotencyKey: audit.IdempotencyKey(action, claims.OrgID, claims.SiteID, st.EmployeeID, salt),
	})
	if err != nil {
		writeError(w, err)
		return false
	}
	return true
}

func (h *Handler) InductionStatus(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	if h.Induction == nil {
		writeMessage(w, http.StatusNotImplemented, apperrors.CodeInternal, "induction gate not configured")
		return
	}
	st, err := h.Induction.Status(r.Context(), claims.OrgID, claims.SiteID, r.URL.Query().Get("employee_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) EvaluateLegitimacy(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	if h.Legitimacy == nil {
		writeMessage(w, http.StatusNotImplemented, apperrors.CodeInternal, "legitimacy service not configured")
		return
	}

	var req types.LegitimacyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.Legitimacy.ForEmployee(r.Context(), legitimacy.EmployeeInput{
		OrgID:              claims.OrgID,
		SiteID:             claims.SiteID,
		EmployeeID:         req.EmployeeID,
		ComplianceStatuses: req.ComplianceStatuses,
		DisciplinaryBlock:  req.DisciplinaryBlock,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if h.Trail != nil {
		h.Trail.AppendBestEffort(r.Context(), audit.Event{
			OrgID:            claims.OrgID,
			SiteID:           claims.SiteID,
			ActorUserID:      claims.UserID,
			Action:           "legitimacy.evaluated",
			TargetType:       "employee",
			TargetID:         req.EmployeeID,
			Outcome:          string(res.Status),
			LegitimacyStatus: string(res.Status),
			ReasonCodes:      res.ReasonCodes,
			IdempotencyKey:   audit.IdempotencyKey("legitimacy", claims.OrgID, claims.SiteID, req.EmployeeID, string(res.Status), strings.Join(res.ReasonCodes, ",")),
		})
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) GovernanceEvents(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	if h.Trail == nil {
		writeMessage(w, http.StatusNotImplemented, apperrors.CodeInternal, "audit trail not configured")
		return
	}

	q := r.URL.Query()
	events, err := h.Trail.List(r.Context(), claims.OrgID, q.Get("target_type"), q.Get("target_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := types.GovernanceEventsResponse{Events: make([]types.GovernanceEvent, 0, len(events))}
	for _, ev := range events {
		item := types.GovernanceEvent{
			EventID:          ev.EventID,
			Action:           ev.Action,
			ActorUserID:      ev.ActorUserID,
			TargetType:       ev.TargetType,
			TargetID:         ev.TargetID,
			Outcome:          ev.Outcome,
			LegitimacyStatus: ev.LegitimacyStatus,
			ReadinessStatus:  ev.ReadinessStatus,
			ReasonCodes:      ev.ReasonCodes,
			Meta:             ev.Meta,
			IdempotencyKey:   ev.IdempotencyKey,
			BodyDigest:       ev.BodyDigest,
			KeyID:            ev.KeyID,
			CreatedAt:        ev.CreatedAt,
		}
		if h.PublicKey != nil {
			verified := audit.Verify(ev, h.PublicKey) == nil
			item.Verified = &verified
		}
		out.Events = append(out.Events, item)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (auth.Claims, bool) {
	if h.Auth == nil {
		writeMessage(w, http.StatusUnauthorized, apperrors.CodeUnauthorized, "authentication not configured")
		return auth.Claims{}, false
	}
	claims, err := h.Auth.Authenticate(r)
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, apperrors.CodeUnauthorized, err.Error())
		return auth.Claims{}, false
	}
	if strings.TrimSpace(claims.OrgID) == "" {
		writeMessage(w, http.StatusUnauthorized, apperrors.CodeUnauthorized, "token carries no org_id")
		return auth.Claims{}, false
	}
	return claims, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeMessage(w, http.StatusRequestEntityTooLarge, apperrors.CodeValidation, "request body too large")
			return false
		}
		writeMessage(w, http.StatusBadRequest, apperrors.CodeValidation, "invalid json")
		return false
	}
	return true
}

func decisionResponse(res decision.Result) types.DecisionResponse {
	return types.DecisionResponse{
		DecisionID:   res.DecisionID,
		DecisionType: string(res.DecisionType),
		TargetType:   string(res.TargetType),
		TargetID:     res.TargetID,
		Reason:       res.Reason,
		RootCause:    res.RootCause,
		Status:       res.Status,
		Revision:     res.Revision,
		CreatedAt:    res.CreatedAt,
		CreatedBy:    res.CreatedBy,
		UpdatedAt:    res.UpdatedAt,
		Created:      res.Created,
		Defaulted:    res.Defaulted,
	}
}
