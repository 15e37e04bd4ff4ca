package legitimacy

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/apperrors"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/induction"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/ledger"
)

func TestEvaluate(t *testing.T) {
	cases := []struct {
		name  string
		in    Input
		want  Status
		codes []string
	}{
		{"all valid", Input{ComplianceStatuses: []string{"VALID", "valid"}, InductionCleared: true}, Go, []string{}},
		{"expiring", Input{ComplianceStatuses: []string{"VALID", "EXPIRING"}, InductionCleared: true}, Warning, []string{ReasonComplianceExpiring}},
		{"expired wins", Input{ComplianceStatuses: []string{"EXPIRING", "EXPIRED"}, InductionCleared: true}, NoGo, []string{ReasonComplianceExpired, ReasonComplianceExpiring}},
		{"missing", Input{ComplianceStatuses: []string{"MISSING"}, InductionCleared: true}, NoGo, []string{ReasonComplianceMissing}},
		{"restricted", Input{InductionCleared: false}, NoGo, []string{ReasonInductionRestrict}},
		{"disciplinary", Input{InductionCleared: true, DisciplinaryBlock: true}, NoGo, []string{ReasonDisciplinaryBlock}},
		{"everything", Input{ComplianceStatuses: []string{"MISSING", "EXPIRED", "EXPIRING"}, DisciplinaryBlock: true}, NoGo,
			[]string{ReasonComplianceExpired, ReasonComplianceMissing, ReasonComplianceExpiring, ReasonInductionRestrict, ReasonDisciplinaryBlock}},
	}
	for _, tc := range cases {
		got := Evaluate(tc.in)
		if got.Status != tc.want || !reflect.DeepEqual(got.ReasonCodes, tc.codes) {
			t.Fatalf("%s: got %+v", tc.name, got)
		}
	}
}

func TestForEmployeeConsultsInduction(t *testing.T) {
	store := ledger.NewInMemoryStore()
	ctx := context.Background()
	if err := store.PutCheckpoint(ctx, ledger.CheckpointRecord{OrgID: "o1", CheckpointID: "cp1", Active: true}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	gate := induction.NewGate(store, func() time.Time { return time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) })
	svc := NewService(gate)

	legacy, err := svc.ForEmployee(ctx, EmployeeInput{OrgID: "o1", SiteID: "s1", EmployeeID: "old-timer"})
	if err != nil {
		t.Fatalf("legacy: %v", err)
	}
	if legacy.Status != Go || !legacy.Induction.Legacy {
		t.Fatalf("expected legacy employee to be GO, got %+v", legacy)
	}

	if _, err := gate.Enroll(ctx, "o1", "s1", "new-hire"); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	res, err := svc.ForEmployee(ctx, EmployeeInput{OrgID: "o1", SiteID: "s1", EmployeeID: "new-hire", ComplianceStatuses: []string{"VALID"}})
	if err != nil {
		t.Fatalf("restricted: %v", err)
	}
	if res.Status != NoGo || !reflect.DeepEqual(res.ReasonCodes, []string{ReasonInductionRestrict}) {
		t.Fatalf("expected induction NO_GO, got %+v", res)
	}

	if _, err := gate.Complete(ctx, "o1", "s1", "new-hire", "cp1", "trainer"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	res, err = svc.ForEmployee(ctx, EmployeeInput{OrgID: "o1", SiteID: "s1", EmployeeID: "new-hire", ComplianceStatuses: []string{"EXPIRING"}})
	if err != nil {
		t.Fatalf("cleared: %v", err)
	}
	if res.Status != Warning {
		t.Fatalf("expected WARNING once cleared, got %+v", res)
	}
}

func TestForEmployeePropagatesValidation(t *testing.T) {
	svc := NewService(induction.NewGate(ledger.NewInMemoryStore(), nil))
	if _, err := svc.ForEmployee(context.Background(), EmployeeInput{OrgID: "o1"}); !apperrors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
