// Package decision records human governance decisions, at most one active
// decision per target.
package decision

import (
	"strings"

	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/apperrors"
)

type Type string

const (
	Acknowledge Type = "ACKNOWLEDGE"
	Override    Type = "OVERRIDE"
	Escalate    Type = "ESCALATE"
	Stop        Type = "STOP"
)

var knownTypes = map[Type]struct{}{
	Acknowledge: {},
	Override:    {},
	Escalate:    {},
	Stop:        {},
}

// ParseType normalizes a decision type. Unrecognized non-empty values fall
// back to Acknowledge, the weakest class, and report defaulted=true.
func ParseType(raw string) (Type, bool, error) {
	v := Type(strings.ToUpper(strings.TrimSpace(raw)))
	if v == "" {
		return "", false, apperrors.Validation("decision_type", "decision_type is required")
	}
	if _, ok := knownTypes[v]; ok {
		return v, false, nil
	}
	return Acknowledge, true, nil
}

// SanctionsRun reports whether the decision lets a shift proceed. Such
// decisions need a resolvable policy binding.
func (t Type) SanctionsRun() bool {
	return t == Acknowledge || t == Override
}

type TargetType string

const (
	TargetStationShift   TargetType = "station_shift"
	TargetShiftReadiness TargetType = "shift_readiness"
)

func ParseTargetType(raw string) (TargetType, error) {
	switch v := TargetType(strings.ToLower(strings.TrimSpace(raw))); v {
	case TargetStationShift, TargetShiftReadiness:
		return v, nil
	case "":
		return "", apperrors.Validation("target_type", "target_type is required")
	default:
		return "", apperrors.Validation("target_type", "target_type must be station_shift or shift_readiness")
	}
}
