// Package induction tracks whether employees have completed the onboarding
// checkpoints required at a site.
package induction

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/apperrors"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/ledger"
)

type State string

const (
	Restricted State = ledger.InductionRestricted
	Cleared    State = ledger.InductionCleared
)

type Status struct {
	OrgID      string   `json:"org_id"`
	SiteID     string   `json:"site_id"`
	EmployeeID string   `json:"employee_id"`
	State      State    `json:"status"`
	Required   int      `json:"required_count"`
	Completed  int      `json:"completed_count"`
	Remaining  []string `json:"remaining_checkpoint_ids"`
	ClearedAt  *string  `json:"cleared_at"`
	EnrolledAt string   `json:"enrolled_at,omitempty"`
	// Legacy marks employees that were never enrolled at the site. They are
	// reported as cleared.
	Legacy bool `json:"legacy"`
}

type Gate struct {
	store ledger.InductionStore
	now   func() time.Time
}

func NewGate(store ledger.InductionStore, now func() time.Time) *Gate {
	if now == nil {
		now = time.Now
	}
	return &Gate{store: store, now: now}
}

func validateSubject(orgID, siteID, employeeID string) error {
	switch {
	case strings.TrimSpace(orgID) == "":
		return apperrors.Validation("org_id", "org_id is required")
	case strings.TrimSpace(siteID) == "":
		return apperrors.Validation("site_id", "site_id is required")
	case strings.TrimSpace(employeeID) == "":
		return apperrors.Validation("employee_id", "employee_id is required")
	}
	return nil
}

// Enroll puts the employee in RESTRICTED. Re-enrolling a cleared employee
// resets them; the returned status is not recomputed, the next Status or
// Complete call is.
func (g *Gate) Enroll(ctx context.Context, orgID, siteID, employeeID string) (Status, error) {
	if err := validateSubject(orgID, siteID, employeeID); err != nil {
		return Status{}, err
	}
	now := ledger.FormatTime(g.now())
	rec := ledger.InductionStatusRecord{
		OrgID:      orgID,
		SiteID:     siteID,
		EmployeeID: employeeID,
		Status:     ledger.InductionRestricted,
		EnrolledAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	cur, ok, err := g.store.GetInductionStatus(ctx, orgID, siteID, employeeID)
	if err != nil {
		return Status{}, fmt.Errorf("load induction status: %w", err)
	}
	if ok && cur.Status == ledger.InductionRestricted && cur.EnrolledAt != "" {
		// Still in the same enrollment cycle.
		rec.EnrolledAt = cur.EnrolledAt
	}
	if err := g.store.UpsertInductionStatus(ctx, rec); err != nil {
		return Status{}, fmt.Errorf("enroll %s: %w", employeeID, err)
	}
	return g.evaluate(ctx, orgID, siteID, employeeID, false)
}

// Complete records a checkpoint completion and re-evaluates clearance before
// returning.
func (g *Gate) Complete(ctx context.Context, orgID, siteID, employeeID, checkpointID, actorID string) (Status, error) {
	if err := validateSubject(orgID, siteID, employeeID); err != nil {
		return Status{}, err
	}
	if strings.TrimSpace(checkpointID) == "" {
		return Status{}, apperrors.Validation("checkpoint_id", "checkpoint_id is required")
	}
	cp, ok, err := g.store.GetCheckpoint(ctx, orgID, checkpointID)
	if err != nil {
		return Status{}, fmt.Errorf("load checkpoint %s: %w", checkpointID, err)
	}
	if !ok || !cp.Active || (cp.SiteID != nil && *cp.SiteID != siteID) {
		return Status{}, apperrors.Validation("checkpoint_id", "checkpoint is not an active requirement for this site")
	}

	if _, err := g.store.PutCheckpointCompletion(ctx, ledger.CompletionRecord{
		OrgID:        orgID,
		EmployeeID:   employeeID,
		CheckpointID: checkpointID,
		CompletedBy:  actorID,
		CompletedAt:  ledger.FormatTime(g.now()),
	}); err != nil {
		return Status{}, fmt.Errorf("record completion: %w", err)
	}
	return g.Status(ctx, orgID, siteID, employeeID)
}

// Status reports the employee's induction state. A RESTRICTED row is
// recomputed against the current required set and persisted as CLEARED when
// nothing remains.
func (g *Gate) Status(ctx context.Context, orgID, siteID, employeeID string) (Status, error) {
	if err := validateSubject(orgID, siteID, employeeID); err != nil {
		return Status{}, err
	}
	return g.evaluate(ctx, orgID, siteID, employeeID, true)
}

func (g *Gate) evaluate(ctx context.Context, orgID, siteID, employeeID string, settle bool) (Status, error) {
	out := Status{OrgID: orgID, SiteID: siteID, EmployeeID: employeeID, Remaining: []string{}}

	rec, ok, err := g.store.GetInductionStatus(ctx, orgID, siteID, employeeID)
	if err != nil {
		return Status{}, fmt.Errorf("load induction status: %w", err)
	}
	if !ok {
		out.State = Cleared
		out.Legacy = true
		return out, nil
	}

	required, err := g.store.ListRequiredCheckpoints(ctx, orgID, siteID)
	if err != nil {
		return Status{}, fmt.Errorf("list required checkpoints: %w", err)
	}
	completedIDs, err := g.store.ListCompletedCheckpoints(ctx, orgID, employeeID)
	if err != nil {
		return Status{}, fmt.Errorf("list completions: %w", err)
	}
	done := make(map[string]struct{}, len(completedIDs))
	for _, id := range completedIDs {
		done[id] = struct{}{}
	}
	for _, cp := range required {
		if _, ok := done[cp.CheckpointID]; ok {
			out.Completed++
		} else {
			out.Remaining = append(out.Remaining, cp.CheckpointID)
		}
	}
	sort.Strings(out.Remaining)
	out.Required = len(required)
	out.State = State(rec.Status)
	out.ClearedAt = rec.ClearedAt
	out.EnrolledAt = rec.EnrolledAt

	if settle && out.State == Restricted && len(out.Remaining) == 0 {
		at := ledger.FormatTime(g.now())
		if err := g.store.MarkInductionCleared(ctx, orgID, siteID, employeeID, at); err != nil {
			return Status{}, fmt.Errorf("clear induction: %w", err)
		}
		out.State = Cleared
		out.ClearedAt = &at
	}
	return out, nil
}

func (g *Gate) IsCleared(ctx context.Context, orgID, siteID, employeeID string) (bool, error) {
	st, err := g.Status(ctx, orgID, siteID, employeeID)
	if err != nil {
		return false, err
	}
	return st.State == Cleared, nil
}
