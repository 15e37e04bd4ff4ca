package policy

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/apperrors"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/ledger"
)

const (
	ReasonUnitMissing   = "UNIT_MISSING"
	ReasonPolicyMissing = "POLICY_MISSING"
)

// Policy is the active configuration bound to a unit. The four blobs are
// opaque to this package beyond hashing.
type Policy struct {
	PolicyID      string          `json:"policy_id"`
	UnitID        string          `json:"unit_id"`
	Version       string          `json:"version"`
	EffectiveFrom string          `json:"effective_from"`
	CreatedAt     string          `json:"created_at"`
	Weights       json.RawMessage `json:"weights"`
	Thresholds    json.RawMessage `json:"thresholds"`
	Penalties     json.RawMessage `json:"penalties"`
	Feasibility   json.RawMessage `json:"feasibility"`
}

func fromRecord(rec ledger.PolicyRecord) Policy {
	return Policy{
		PolicyID:      rec.PolicyID,
		UnitID:        rec.UnitID,
		Version:       rec.Version,
		EffectiveFrom: rec.EffectiveFrom,
		CreatedAt:     rec.CreatedAt,
		Weights:       blob(rec.Weights),
		Thresholds:    blob(rec.Thresholds),
		Penalties:     blob(rec.Penalties),
		Feasibility:   blob(rec.Feasibility),
	}
}

func blob(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("{}")
	}
	return json.RawMessage(raw)
}

// Binding maps every station of a shift to its unit and every unit to its
// single active policy.
type Binding struct {
	OrgID          string            `json:"org_id"`
	ShiftID        string            `json:"shift_id"`
	StationToUnit  map[string]string `json:"station_to_unit"`
	PoliciesByUnit map[string]Policy `json:"policies_by_unit"`
	UnitIDs        []string          `json:"unit_ids"`
}

// ScopeError reports a shift that cannot be governed. It is a hard stop:
// callers must not compute readiness for the shift.
type ScopeError struct {
	ShiftID             string   `json:"shift_id"`
	MissingUnitStations []string `json:"missing_unit_stations"`
	MissingPolicyUnits  []string `json:"missing_policy_units"`
	ReasonCodes         []string `json:"reason_codes"`
}

func (e *ScopeError) Error() string {
	switch {
	case len(e.MissingUnitStations) > 0:
		return fmt.Sprintf("policy binding for shift %s: stations without unit: %s", e.ShiftID, strings.Join(e.MissingUnitStations, ", "))
	case len(e.MissingPolicyUnits) > 0:
		return fmt.Sprintf("policy binding for shift %s: units without active policy: %s", e.ShiftID, strings.Join(e.MissingPolicyUnits, ", "))
	default:
		return fmt.Sprintf("policy binding for shift %s: no stations", e.ShiftID)
	}
}

// Code returns the governance error code for the failure.
func (e *ScopeError) Code() apperrors.Code {
	if len(e.MissingPolicyUnits) > 0 {
		return apperrors.CodeScopePolicyMissing
	}
	return apperrors.CodeScopeUnitMissing
}

// Result holds exactly one of Binding or Scope.
type Result struct {
	Binding *Binding
	Scope   *ScopeError
}

func (r Result) OK() bool { return r.Binding != nil && r.Scope == nil }

// Err returns the scope error as an error value, or nil for a binding.
func (r Result) Err() error {
	if r.Scope != nil {
		return r.Scope
	}
	return nil
}
