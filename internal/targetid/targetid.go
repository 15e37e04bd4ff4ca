// Package targetid derives deterministic decision target identifiers.
package targetid

import (
	"crypto/sha256"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

const (
	// Namespace prefixes every composite key so other derived ids never collide.
	Namespace = "decision-target.v1"
	// Missing stands in for absent or empty scope fields.
	Missing = "NA"
)

// Field labels used by the standard target shapes.
const (
	FieldOrg       = "org_id"
	FieldSite      = "site_id"
	FieldDate      = "date"
	FieldShiftCode = "shift_code"
	FieldStation   = "station_id"
	FieldIssueType = "issue_type"
	FieldKind      = "kind"
)

// Fields maps scope labels to values. Labels are sorted before hashing, so
// insertion order never affects the derived id. An empty value hashes as
// Missing, but an absent label does not appear in the key at all: the label
// set is part of the identity. Pass the labels of a shape as required to
// Derive to make absent and empty equivalent.
type Fields map[string]string

// withRequired returns f with every required label present, filling the
// absent ones with Missing.
func (f Fields) withRequired(required []string) Fields {
	if len(required) == 0 {
		return f
	}
	out := make(Fields, len(f)+len(required))
	for label, value := range f {
		out[label] = value
	}
	for _, label := range required {
		if _, ok := out[label]; !ok {
			out[label] = Missing
		}
	}
	return out
}

// Key returns the composite key hashed by Derive.
func (f Fields) Key() string {
	labels := make([]string, 0, len(f))
	for label := range f {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var b strings.Builder
	b.WriteString(Namespace)
	for _, label := range labels {
		b.WriteByte('|')
		b.WriteString(label)
		b.WriteByte('=')
		b.WriteString(normalize(f[label]))
	}
	return b.String()
}

// Derive returns a UUID-formatted id computed from the fields. Required
// labels missing from fields are hashed as Missing.
func Derive(fields Fields, required ...string) string {
	sum := sha256.Sum256([]byte(fields.withRequired(required).Key()))

	var id uuid.UUID
	copy(id[:], sum[:16])
	id[6] = (id[6] & 0x0f) | 0x50
	id[8] = (id[8] & 0x3f) | 0x80
	return id.String()
}

// StationShiftLabels and ShiftReadinessLabels are the label sets of the
// standard shapes.
var (
	StationShiftLabels   = []string{FieldKind, FieldDate, FieldShiftCode, FieldStation, FieldIssueType}
	ShiftReadinessLabels = []string{FieldKind, FieldOrg, FieldSite, FieldDate, FieldShiftCode}
)

// ForStationShift identifies a station issue within one shift instance.
func ForStationShift(date, shiftCode, stationID, issueType string) string {
	return Derive(Fields{
		FieldKind:      "station_shift",
		FieldDate:      date,
		FieldShiftCode: shiftCode,
		FieldStation:   stationID,
		FieldIssueType: issueType,
	}, StationShiftLabels...)
}

// ForShiftReadiness identifies the readiness verdict of one shift at one site.
func ForShiftReadiness(orgID, siteID, date, shiftCode string) string {
	return Derive(Fields{
		FieldKind:      "shift_readiness",
		FieldOrg:       orgID,
		FieldSite:      siteID,
		FieldDate:      date,
		FieldShiftCode: shiftCode,
	}, ShiftReadinessLabels...)
}

func normalize(value string) string {
	value = strings.TrimSpace(norm.NFC.String(value))
	if value == "" {
		return Missing
	}
	return value
}
