package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/ledger"
)

var tracer = otel.Tracer("github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/policy")

// Resolve binds every station of the shift to a unit and every unit to its
// active policy. Unresolvable scopes come back as Result.Scope; storage
// failures come back as err.
func Resolve(ctx context.Context, store ledger.BindingStore, orgID, shiftID string) (Result, error) {
	ctx, span := tracer.Start(ctx, "policy.Resolve", trace.WithAttributes(
		attribute.String("org_id", orgID),
		attribute.String("shift_id", shiftID),
	))
	defer span.End()

	stationIDs, err := store.ListShiftStations(ctx, orgID, shiftID)
	if err != nil {
		span.RecordError(err)
		return Result{}, fmt.Errorf("list shift stations: %w", err)
	}
	if len(stationIDs) == 0 {
		return scope(&ScopeError{
			ShiftID:     shiftID,
			ReasonCodes: []string{ReasonUnitMissing, ReasonPolicyMissing},
		}), nil
	}

	stations, err := store.ListStations(ctx, orgID, stationIDs)
	if err != nil {
		span.RecordError(err)
		return Result{}, fmt.Errorf("list stations: %w", err)
	}
	unitOf := make(map[string]string, len(stations))
	for _, st := range stations {
		if st.UnitID != nil && strings.TrimSpace(*st.UnitID) != "" {
			unitOf[st.StationID] = *st.UnitID
		}
	}

	stationToUnit := make(map[string]string, len(stationIDs))
	var missingUnit []string
	for _, id := range stationIDs {
		unit, ok := unitOf[id]
		if !ok {
			missingUnit = append(missingUnit, id)
			continue
		}
		stationToUnit[id] = unit
	}
	// Partially resolved scopes never reach policy lookup.
	if len(missingUnit) > 0 {
		sort.Strings(missingUnit)
		return scope(&ScopeError{
			ShiftID:             shiftID,
			MissingUnitStations: missingUnit,
			ReasonCodes:         []string{ReasonUnitMissing, ReasonPolicyMissing},
		}), nil
	}

	unitIDs := distinctSorted(stationToUnit)
	policies := make(map[string]Policy, len(unitIDs))
	var missingPolicy []string
	for _, unit := range unitIDs {
		rec, ok, err := store.GetActivePolicy(ctx, orgID, unit)
		if err != nil {
			span.RecordError(err)
			return Result{}, fmt.Errorf("active policy for unit %s: %w", unit, err)
		}
		if !ok {
			missingPolicy = append(missingPolicy, unit)
			continue
		}
		policies[unit] = fromRecord(rec)
	}
	if len(missingPolicy) > 0 {
		return scope(&ScopeError{
			ShiftID:            shiftID,
			MissingPolicyUnits: missingPolicy,
			ReasonCodes:        []string{ReasonPolicyMissing},
		}), nil
	}

	span.SetAttributes(attribute.Int("units", len(unitIDs)))
	return Result{Binding: &Binding{
		OrgID:          orgID,
		ShiftID:        shiftID,
		StationToUnit:  stationToUnit,
		PoliciesByUnit: policies,
		UnitIDs:        unitIDs,
	}}, nil
}

func scope(err *ScopeError) Result {
	return Result{Scope: err}
}

func distinctSorted(m map[string]string) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, v := range m {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
