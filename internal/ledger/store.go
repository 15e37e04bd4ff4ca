package ledger

import "context"

// Getters return ok=false with a nil error when the row does not exist.

type BindingStore interface {
	GetShift(ctx context.Context, orgID, shiftID string) (ShiftRecord, bool, error)
	FindShift(ctx context.Context, orgID, siteID, date, shiftCode string) (ShiftRecord, bool, error)
	// ListShiftStations returns the distinct station ids of a shift, sorted.
	ListShiftStations(ctx context.Context, orgID, shiftID string) ([]string, error)
	ListStations(ctx context.Context, orgID string, stationIDs []string) ([]StationRecord, error)
	// GetActivePolicy returns the active policy with the latest effective_from,
	// ties broken by latest created_at.
	GetActivePolicy(ctx context.Context, orgID, unitID string) (PolicyRecord, bool, error)
	// PutPolicySnapshot reports false when (shift, unit, version) already exists.
	PutPolicySnapshot(ctx context.Context, rec PolicySnapshotRecord) (bool, error)
	ListPolicySnapshots(ctx context.Context, orgID, shiftID string) ([]PolicySnapshotRecord, error)
}

type DecisionStore interface {
	GetActiveDecision(ctx context.Context, key DecisionKey) (DecisionRecord, bool, error)
	// InsertDecision returns ErrConflict when an active row already holds the key.
	InsertDecision(ctx context.Context, rec DecisionRecord) error
	// UpdateDecision rewrites reason, root cause, revision and updated_* of an
	// active row.
	UpdateDecision(ctx context.Context, rec DecisionRecord) error
	SupersedeDecision(ctx context.Context, decisionID, at string) error
	// GetLatestSupersededDecision returns the most recently superseded row
	// for key.
	GetLatestSupersededDecision(ctx context.Context, key DecisionKey) (DecisionRecord, bool, error)
}

type EventStore interface {
	// InsertGovernanceEvent returns ErrConflict on a duplicate idempotency key.
	InsertGovernanceEvent(ctx context.Context, rec GovernanceEventRecord) error
	ListGovernanceEvents(ctx context.Context, orgID, targetType, targetID string) ([]GovernanceEventRecord, error)
}

type InductionStore interface {
	// ListRequiredCheckpoints returns active checkpoints that are org-wide or
	// bound to siteID, sorted by checkpoint id.
	ListRequiredCheckpoints(ctx context.Context, orgID, siteID string) ([]CheckpointRecord, error)
	GetCheckpoint(ctx context.Context, orgID, checkpointID string) (CheckpointRecord, bool, error)
	UpsertInductionStatus(ctx context.Context, rec InductionStatusRecord) error
	GetInductionStatus(ctx context.Context, orgID, siteID, employeeID string) (InductionStatusRecord, bool, error)
	MarkInductionCleared(ctx context.Context, orgID, siteID, employeeID, at string) error
	// PutCheckpointCompletion reports false when the completion already exists.
	PutCheckpointCompletion(ctx context.Context, rec CompletionRecord) (bool, error)
	ListCompletedCheckpoints(ctx context.Context, orgID, employeeID string) ([]string, error)
}

// SeedStore writes reference data owned by external CRUD surfaces.
type SeedStore interface {
	PutUnit(ctx context.Context, rec UnitRecord) error
	PutStation(ctx context.Context, rec StationRecord) error
	PutShift(ctx context.Context, rec ShiftRecord) error
	PutShiftStation(ctx context.Context, rec ShiftStationRecord) error
	PutPolicy(ctx context.Context, rec PolicyRecord) error
	PutCheckpoint(ctx context.Context, rec CheckpointRecord) error
}

type Store interface {
	BindingStore
	DecisionStore
	EventStore
	InductionStore
	SeedStore
	Close() error
}
