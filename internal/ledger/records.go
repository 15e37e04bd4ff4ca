package ledger

import "time"

// TimeLayout is the fixed-width UTC layout used for stored timestamps so that
// lexical order matches chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

const (
	DecisionActive     = "active"
	DecisionSuperseded = "superseded"

	PolicyActive   = "active"
	PolicyInactive = "inactive"

	InductionRestricted = "RESTRICTED"
	InductionCleared    = "CLEARED"
)

type UnitRecord struct {
	OrgID     string
	UnitID    string
	Name      string
	CreatedAt string
}

type StationRecord struct {
	OrgID     string
	StationID string
	SiteID    string
	UnitID    *string
	Name      string
	CreatedAt string
}

type ShiftRecord struct {
	OrgID     string
	ShiftID   string
	SiteID    string
	Date      string
	ShiftCode string
	CreatedAt string
}

type ShiftStationRecord struct {
	OrgID     string
	ShiftID   string
	StationID string
}

type PolicyRecord struct {
	OrgID         string
	PolicyID      string
	UnitID        string
	Version       string
	Status        string // active | inactive
	EffectiveFrom string
	Weights       []byte
	Thresholds    []byte
	Penalties     []byte
	Feasibility   []byte
	CreatedAt     string
}

type PolicySnapshotRecord struct {
	SnapshotID    string
	OrgID         string
	ShiftID       string
	UnitID        string
	PolicyID      string
	PolicyVersion string
	ContentHash   string
	CreatedAt     string
}

// DecisionKey is the natural key of an active decision.
type DecisionKey struct {
	OrgID        string
	DecisionType string
	TargetType   string
	TargetID     string
}

type DecisionRecord struct {
	DecisionID    string
	OrgID         string
	SiteID        *string
	DecisionType  string
	TargetType    string
	TargetID      string
	Reason        string
	RootCauseJSON []byte
	Status        string // active | superseded
	// Revision counts content changes: it grows only when reason or root
	// cause differ from the stored row.
	Revision      int
	CreatedBy     string
	CreatedAt     string
	UpdatedBy     string
	UpdatedAt     string
}

func (r DecisionRecord) Key() DecisionKey {
	return DecisionKey{OrgID: r.OrgID, DecisionType: r.DecisionType, TargetType: r.TargetType, TargetID: r.TargetID}
}

type GovernanceEventRecord struct {
	EventID          string
	OrgID            string
	SiteID           *string
	ActorUserID      string
	Action           string
	TargetType       string
	TargetID         string
	Outcome          string
	LegitimacyStatus string
	ReadinessStatus  string
	ReasonCodes      []string
	MetaJSON         []byte
	IdempotencyKey   string
	BodyDigest       string
	KeyID            string
	Sig              []byte
	CreatedAt        string
}

type CheckpointRecord struct {
	OrgID        string
	CheckpointID string
	SiteID       *string // nil means org-wide
	Name         string
	Active       bool
	CreatedAt    string
}

type InductionStatusRecord struct {
	OrgID      string
	SiteID     string
	EmployeeID string
	Status     string // RESTRICTED | CLEARED
	ClearedAt  *string
	// EnrolledAt marks the current enrollment cycle; repeat enrollments of a
	// RESTRICTED employee keep it.
	EnrolledAt string
	CreatedAt  string
	UpdatedAt  string
}

type CompletionRecord struct {
	OrgID        string
	EmployeeID   string
	CheckpointID string
	CompletedBy  string
	CompletedAt  string
}
