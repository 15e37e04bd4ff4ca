// Package legitimacy decides whether an employee may legitimately work a
// station, from compliance, induction and disciplinary inputs.
package legitimacy

import (
	"context"
	"strings"

	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/induction"
)

type Status string

const (
	Go      Status = "GO"
	Warning Status = "WARNING"
	NoGo    Status = "NO_GO"
)

const (
	ReasonComplianceExpired  = "COMPLIANCE_EXPIRED"
	ReasonComplianceMissing  = "COMPLIANCE_MISSING"
	ReasonComplianceExpiring = "COMPLIANCE_EXPIRING"
	ReasonInductionRestrict  = "INDUCTION_RESTRICTED"
	ReasonDisciplinaryBlock  = "DISCIPLINARY_BLOCK"
)

// Compliance item statuses as reported by the compliance register.
const (
	ComplianceValid    = "VALID"
	ComplianceExpiring = "EXPIRING"
	ComplianceExpired  = "EXPIRED"
	ComplianceMissing  = "MISSING"
)

type Input struct {
	ComplianceStatuses []string
	InductionCleared   bool
	DisciplinaryBlock  bool
}

type Result struct {
	Status      Status   `json:"status"`
	ReasonCodes []string `json:"reason_codes"`
}

// Evaluate is pure. Reason codes come out in a fixed order regardless of the
// order of the compliance items.
func Evaluate(in Input) Result {
	var expired, missing, expiring bool
	for _, s := range in.ComplianceStatuses {
		switch strings.ToUpper(strings.TrimSpace(s)) {
		case ComplianceExpired:
			expired = true
		case ComplianceMissing:
			missing = true
		case ComplianceExpiring:
			expiring = true
		}
	}

	codes := []string{}
	if expired {
		codes = append(codes, ReasonComplianceExpired)
	}
	if missing {
		codes = append(codes, ReasonComplianceMissing)
	}
	if expiring {
		codes = append(codes, ReasonComplianceExpiring)
	}
	if !in.InductionCleared {
		codes = append(codes, ReasonInductionRestrict)
	}
	if in.DisciplinaryBlock {
		codes = append(codes, ReasonDisciplinaryBlock)
	}

	status := Go
	switch {
	case expired || missing || !in.InductionCleared || in.DisciplinaryBlock:
		status = NoGo
	case expiring:
		status = Warning
	}
	return Result{Status: status, ReasonCodes: codes}
}

// InductionChecker is satisfied by *induction.Gate.
type InductionChecker interface {
	Status(ctx context.Context, orgID, siteID, employeeID string) (induction.Status, error)
}

type Service struct {
	induction InductionChecker
}

func NewService(gate InductionChecker) *Service {
	return &Service{induction: gate}
}

type EmployeeInput struct {
	OrgID              string
	SiteID             string
	EmployeeID         string
	ComplianceStatuses []string
	DisciplinaryBlock  bool
}

type EmployeeResult struct {
	Result
	Induction induction.Status `json:"induction"`
}

// ForEmployee evaluates legitimacy with the induction input read from the gate.
func (s *Service) ForEmployee(ctx context.Context, in EmployeeInput) (EmployeeResult, error) {
	st, err := s.induction.Status(ctx, in.OrgID, in.SiteID, in.EmployeeID)
	if err != nil {
		return EmployeeResult{}, err
	}
	res := Evaluate(Input{
		ComplianceStatuses: in.ComplianceStatuses,
		InductionCleared:   st.State == induction.Cleared,
		DisciplinaryBlock:  in.DisciplinaryBlock,
	})
	return EmployeeResult{Result: res, Induction: st}, nil
}
