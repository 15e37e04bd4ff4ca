package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/ledger"
)

const uniqueViolation = "23505"

type Store struct {
	db *sql.DB
}

func OpenPostgres(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func translate(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return ledger.ErrConflict
	}
	return err
}

func noRows(err error) bool { return errors.Is(err, sql.ErrNoRows) }

func jsonDoc(field string, raw []byte, empty string) (string, error) {
	if len(raw) == 0 {
		return empty, nil
	}
	if !json.Valid(raw) {
		return "", fmt.Errorf("invalid %s json", field)
	}
	return string(raw), nil
}

// Seed data.

func (s *Store) PutUnit(ctx context.Context, rec ledger.UnitRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO units(org_id, unit_id, name, created_at)
VALUES($1, $2, $3, $4)
ON CONFLICT(org_id, unit_id) DO UPDATE SET name = EXCLUDED.name`,
		rec.OrgID, rec.UnitID, rec.Name, rec.CreatedAt)
	return err
}

func (s *Store) PutStation(ctx context.Context, rec ledger.StationRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO stations(org_id, station_id, site_id, unit_id, name, created_at)
VALUES($1, $2, $3, $4, $5, $6)
ON CONFLICT(org_id, station_id) DO UPDATE SET
  site_id = EXCLUDED.site_id,
  unit_id = EXCLUDED.unit_id,
  name = EXCLUDED.name`,
		rec.OrgID, rec.StationID, rec.SiteID, rec.UnitID, rec.Name, rec.CreatedAt)
	return err
}

func (s *Store) PutShift(ctx context.Context, rec ledger.ShiftRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO shifts(org_id, shift_id, site_id, shift_date, shift_code, created_at)
VALUES($1, $2, $3, $4, $5, $6)
ON CONFLICT(org_id, shift_id) DO UPDATE SET
  site_id = EXCLUDED.site_id,
  shift_date = EXCLUDED.shift_date,
  shift_code = EXCLUDED.shift_code`,
		rec.OrgID, rec.ShiftID, rec.SiteID, rec.Date, rec.ShiftCode, rec.CreatedAt)
	return err
}

func (s *Store) PutShiftStation(ctx context.Context, rec ledger.ShiftStationRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO shift_stations(org_id, shift_id, station_id)
VALUES($1, $2, $3)
ON CONFLICT(org_id, shift_id, station_id) DO NOTHING`,
		rec.OrgID, rec.ShiftID, rec.StationID)
	return err
}

func (s *Store) PutPolicy(ctx context.Context, rec ledger.PolicyRecord) error {
	blobs := make([]string, 0, 4)
	for _, blob := range []struct {
		name string
		raw  []byte
	}{
		{"weights", rec.Weights},
		{"thresholds", rec.Thresholds},
		{"penalties", rec.Penalties},
		{"feasibility", rec.Feasibility},
	} {
		doc, err := jsonDoc(blob.name, blob.raw, "{}")
		if err != nil {
			return err
		}
		blobs = append(blobs, doc)
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO policies(org_id, policy_id, unit_id, version, status, effective_from, weights, thresholds, penalties, feasibility, created_at)
VALUES($1, $2, $3, $4, $5, $6, $7::jsonb, $8::jsonb, $9::jsonb, $10::jsonb, $11)
ON CONFLICT(org_id, policy_id) DO UPDATE SET
  unit_id = EXCLUDED.unit_id,
  version = EXCLUDED.version,
  status = EXCLUDED.status,
  effective_from = EXCLUDED.effective_from,
  weights = EXCLUDED.weights,
  thresholds = EXCLUDED.thresholds,
  penalties = EXCLUDED.penalties,
  feasibility = EXCLUDED.feasibility`,
		rec.OrgID, rec.PolicyID, rec.UnitID, rec.Version, rec.Status, rec.EffectiveFrom,
		blobs[0], blobs[1], blobs[2], blobs[3], rec.CreatedAt)
	return err
}

func (s *Store) PutCheckpoint(ctx context.Context, rec ledger.CheckpointRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO induction_checkpoints(org_id, checkpoint_id, site_id, name, active, created_at)
VALUES($1, $2, $3, $4, $5, $6)
ON CONFLICT(org_id, checkpoint_id) DO UPDATE SET
  site_id = EXCLUDED.site_id,
  name = EXCLUDED.name,
  active = EXCLUDED.active`,
		rec.OrgID, rec.CheckpointID, rec.SiteID, rec.Name, rec.Active, rec.CreatedAt)
	return err
}

// Binding.

const shiftColumns = `org_id, shift_id, site_id, shift_date, shift_code, created_at`

func (s *Store) GetShift(ctx context.Context, orgID, shiftID string) (ledger.ShiftRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE org_id = $1 AND shift_id = $2`, orgID, shiftID)
	return scanShift(row)
}

func (s *Store) FindShift(ctx context.Context, orgID, siteID, date, shiftCode string) (ledger.ShiftRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+shiftColumns+` FROM shifts
WHERE org_id = $1 AND site_id = $2 AND shift_date = $3 AND shift_code = $4
ORDER BY shift_id ASC LIMIT 1`, orgID, siteID, date, shiftCode)
	return scanShift(row)
}

func scanShift(row *sql.Row) (ledger.ShiftRecord, bool, error) {
	var rec ledger.ShiftRecord
	if err := row.Scan(&rec.OrgID, &rec.ShiftID, &rec.SiteID, &rec.Date, &rec.ShiftCode, &rec.CreatedAt); err != nil {
		if noRows(err) {
			return ledger.ShiftRecord{}, false, nil
		}
		return ledger.ShiftRecord{}, false, err
	}
	return rec, true, nil
}

func (s *Store) ListShiftStations(ctx context.Context, orgID, shiftID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT station_id FROM shift_stations WHERE org_id = $1 AND shift_id = $2 ORDER BY station_id ASC`, orgID, shiftID)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) ListStations(ctx context.Context, orgID string, stationIDs []string) ([]ledger.StationRecord, error) {
	out := []ledger.StationRecord{}
	if len(stationIDs) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT org_id, station_id, site_id, unit_id, name, created_at FROM stations
WHERE org_id = $1 AND station_id = ANY($2)
ORDER BY station_id ASC`, orgID, pq.Array(stationIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var rec ledger.StationRecord
		if err := rows.Scan(&rec.OrgID, &rec.StationID, &rec.SiteID, &rec.UnitID, &rec.Name, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) GetActivePolicy(ctx context.Context, orgID, unitID string) (ledger.PolicyRecord, bool, error) {
	var rec ledger.PolicyRecord
	var weights, thresholds, penalties, feasibility string
	row := s.db.QueryRowContext(ctx, `SELECT org_id, policy_id, unit_id, version, status, effective_from, weights::text, thresholds::text, penalties::text, feasibility::text, created_at
FROM policies
WHERE org_id = $1 AND unit_id = $2 AND status = 'active'
ORDER BY effective_from DESC, created_at DESC, policy_id DESC
LIMIT 1`, orgID, unitID)
	if err := row.Scan(&rec.OrgID, &rec.PolicyID, &rec.UnitID, &rec.Version, &rec.Status, &rec.EffectiveFrom, &weights, &thresholds, &penalties, &feasibility, &rec.CreatedAt); err != nil {
		if noRows(err) {
			return ledger.PolicyRecord{}, false, nil
		}
		return ledger.PolicyRecord{}, false, err
	}
	rec.Weights = []byte(weights)
	rec.Thresholds = []byte(thresholds)
	rec.Penalties = []byte(penalties)
	rec.Feasibility = []byte(feasibility)
	return rec, true, nil
}

func (s *Store) PutPolicySnapshot(ctx context.Context, rec ledger.PolicySnapshotRecord) (bool, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO policy_snapshots(snapshot_id, org_id, shift_id, unit_id, policy_id, policy_version, content_hash, created_at)
VALUES($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT(shift_id, unit_id, policy_version) DO NOTHING`,
		rec.SnapshotID, rec.OrgID, rec.ShiftID, rec.UnitID, rec.PolicyID, rec.PolicyVersion, rec.ContentHash, rec.CreatedAt)
	return inserted(res, err)
}

func inserted(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, translate(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *Store) ListPolicySnapshots(ctx context.Context, orgID, shiftID string) ([]ledger.PolicySnapshotRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT snapshot_id, org_id, shift_id, unit_id, policy_id, policy_version, content_hash, created_at
FROM policy_snapshots
WHERE org_id = $1 AND shift_id = $2
ORDER BY unit_id ASC, policy_version ASC`, orgID, shiftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ledger.PolicySnapshotRecord{}
	for rows.Next() {
		var rec ledger.PolicySnapshotRecord
		if err := rows.Scan(&rec.SnapshotID, &rec.OrgID, &rec.ShiftID, &rec.UnitID, &rec.PolicyID, &rec.PolicyVersion, &rec.ContentHash, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Decisions.

const decisionColumns = `decision_id, org_id, site_id, decision_type, target_type, target_id, reason, root_cause::text, status, revision, created_by, created_at, updated_by, updated_at`

func scanDecision(row *sql.Row) (ledger.DecisionRecord, bool, error) {
	var rec ledger.DecisionRecord
	var rootCause string
	if err := row.Scan(&rec.DecisionID, &rec.OrgID, &rec.SiteID, &rec.DecisionType, &rec.TargetType, &rec.TargetID, &rec.Reason, &rootCause, &rec.Status, &rec.Revision, &rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedBy, &rec.UpdatedAt); err != nil {
		if noRows(err) {
			return ledger.DecisionRecord{}, false, nil
		}
		return ledger.DecisionRecord{}, false, err
	}
	rec.RootCauseJSON = []byte(rootCause)
	return rec, true, nil
}

func (s *Store) GetActiveDecision(ctx context.Context, key ledger.DecisionKey) (ledger.DecisionRecord, bool, error) {
	return scanDecision(s.db.QueryRowContext(ctx, `SELECT `+decisionColumns+`
FROM decisions
WHERE org_id = $1 AND decision_type = $2 AND target_type = $3 AND target_id = $4 AND status = 'active'`,
		key.OrgID, key.DecisionType, key.TargetType, key.TargetID))
}

func (s *Store) GetLatestSupersededDecision(ctx context.Context, key ledger.DecisionKey) (ledger.DecisionRecord, bool, error) {
	return scanDecision(s.db.QueryRowContext(ctx, `SELECT `+decisionColumns+`
FROM decisions
WHERE org_id = $1 AND decision_type = $2 AND target_type = $3 AND target_id = $4 AND status = 'superseded'
ORDER BY updated_at DESC, decision_id DESC
LIMIT 1`,
		key.OrgID, key.DecisionType, key.TargetType, key.TargetID))
}

func (s *Store) InsertDecision(ctx context.Context, rec ledger.DecisionRecord) error {
	rootCause, err := jsonDoc("root_cause", rec.RootCauseJSON, "{}")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO decisions(decision_id, org_id, site_id, decision_type, target_type, target_id, reason, root_cause, status, revision, created_by, created_at, updated_by, updated_at)
VALUES($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10, $11, $12, $13, $14)`,
		rec.DecisionID, rec.OrgID, rec.SiteID, rec.DecisionType, rec.TargetType, rec.TargetID, rec.Reason,
		rootCause, rec.Status, revisionOrFirst(rec.Revision), rec.CreatedBy, rec.CreatedAt, rec.UpdatedBy, rec.UpdatedAt)
	return translate(err)
}

func (s *Store) UpdateDecision(ctx context.Context, rec ledger.DecisionRecord) error {
	rootCause, err := jsonDoc("root_cause", rec.RootCauseJSON, "{}")
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE decisions SET reason = $1, root_cause = $2::jsonb, revision = $3, updated_by = $4, updated_at = $5
WHERE decision_id = $6 AND status = 'active'`,
		rec.Reason, rootCause, revisionOrFirst(rec.Revision), rec.UpdatedBy, rec.UpdatedAt, rec.DecisionID)
	return affectedOne(res, err)
}

func (s *Store) SupersedeDecision(ctx context.Context, decisionID, at string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE decisions SET status = 'superseded', updated_at = $1
WHERE decision_id = $2 AND status = 'active'`, at, decisionID)
	return affectedOne(res, err)
}

func revisionOrFirst(rev int) int {
	if rev < 1 {
		return 1
	}
	return rev
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return translate(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

// Governance events.

func (s *Store) InsertGovernanceEvent(ctx context.Context, rec ledger.GovernanceEventRecord) error {
	codes := rec.ReasonCodes
	if codes == nil {
		codes = []string{}
	}
	codesJSON, err := json.Marshal(codes)
	if err != nil {
		return err
	}
	meta, err := jsonDoc("meta", rec.MetaJSON, "{}")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO governance_events(event_id, org_id, site_id, actor_user_id, action, target_type, target_id, outcome, legitimacy_status, readiness_status, reason_codes, meta, idempotency_key, body_digest, key_id, sig, created_at)
VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb, $12::jsonb, $13, $14, $15, $16, $17)`,
		rec.EventID, rec.OrgID, rec.SiteID, rec.ActorUserID, rec.Action, rec.TargetType, rec.TargetID, rec.Outcome,
		rec.LegitimacyStatus, rec.ReadinessStatus, string(codesJSON), meta, rec.IdempotencyKey,
		rec.BodyDigest, rec.KeyID, rec.Sig, rec.CreatedAt)
	return translate(err)
}

func (s *Store) ListGovernanceEvents(ctx context.Context, orgID, targetType, targetID string) ([]ledger.GovernanceEventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT event_id, org_id, site_id, actor_user_id, action, target_type, target_id, outcome, legitimacy_status, readiness_status, reason_codes::text, meta::text, idempotency_key, body_digest, key_id, sig, created_at
FROM governance_events
WHERE org_id = $1 AND ($2 = '' OR target_type = $2) AND ($3 = '' OR target_id = $3)
ORDER BY created_at ASC, event_id ASC`, orgID, targetType, targetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ledger.GovernanceEventRecord{}
	for rows.Next() {
		var rec ledger.GovernanceEventRecord
		var codes, meta string
		if err := rows.Scan(&rec.EventID, &rec.OrgID, &rec.SiteID, &rec.ActorUserID, &rec.Action, &rec.TargetType, &rec.TargetID, &rec.Outcome, &rec.LegitimacyStatus, &rec.ReadinessStatus, &codes, &meta, &rec.IdempotencyKey, &rec.BodyDigest, &rec.KeyID, &rec.Sig, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(codes), &rec.ReasonCodes); err != nil {
			return nil, err
		}
		rec.MetaJSON = []byte(meta)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Induction.

const checkpointColumns = `org_id, checkpoint_id, site_id, name, active, created_at`

func (s *Store) ListRequiredCheckpoints(ctx context.Context, orgID, siteID string) ([]ledger.CheckpointRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+checkpointColumns+`
FROM induction_checkpoints
WHERE org_id = $1 AND active AND (site_id IS NULL OR site_id = $2)
ORDER BY checkpoint_id ASC`, orgID, siteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ledger.CheckpointRecord{}
	for rows.Next() {
		var rec ledger.CheckpointRecord
		if err := rows.Scan(&rec.OrgID, &rec.CheckpointID, &rec.SiteID, &rec.Name, &rec.Active, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) GetCheckpoint(ctx context.Context, orgID, checkpointID string) (ledger.CheckpointRecord, bool, error) {
	var rec ledger.CheckpointRecord
	row := s.db.QueryRowContext(ctx, `SELECT `+checkpointColumns+` FROM induction_checkpoints WHERE org_id = $1 AND checkpoint_id = $2`, orgID, checkpointID)
	if err := row.Scan(&rec.OrgID, &rec.CheckpointID, &rec.SiteID, &rec.Name, &rec.Active, &rec.CreatedAt); err != nil {
		if noRows(err) {
			return ledger.CheckpointRecord{}, false, nil
		}
		return ledger.CheckpointRecord{}, false, err
	}
	return rec, true, nil
}

func (s *Store) UpsertInductionStatus(ctx context.Context, rec ledger.InductionStatusRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO induction_status(org_id, site_id, employee_id, status, cleared_at, enrolled_at, created_at, updated_at)
VALUES($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT(org_id, site_id, employee_id) DO UPDATE SET
  status = EXCLUDED.status,
  cleared_at = EXCLUDED.cleared_at,
  enrolled_at = EXCLUDED.enrolled_at,
  updated_at = EXCLUDED.updated_at`,
		rec.OrgID, rec.SiteID, rec.EmployeeID, rec.Status, rec.ClearedAt, rec.EnrolledAt, rec.CreatedAt, rec.UpdatedAt)
	return err
}

func (s *Store) GetInductionStatus(ctx context.Context, orgID, siteID, employeeID string) (ledger.InductionStatusRecord, bool, error) {
	var rec ledger.InductionStatusRecord
	row := s.db.QueryRowContext(ctx, `SELECT org_id, site_id, employee_id, status, cleared_at, enrolled_at, created_at, updated_at
FROM induction_status WHERE org_id = $1 AND site_id = $2 AND employee_id = $3`, orgID, siteID, employeeID)
	if err := row.Scan(&rec.OrgID, &rec.SiteID, &rec.EmployeeID, &rec.Status, &rec.ClearedAt, &rec.EnrolledAt, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if noRows(err) {
			return ledger.InductionStatusRecord{}, false, nil
		}
		return ledger.InductionStatusRecord{}, false, err
	}
	return rec, true, nil
}

func (s *Store) MarkInductionCleared(ctx context.Context, orgID, siteID, employeeID, at string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE induction_status SET status = 'CLEARED', cleared_at = $1, updated_at = $1
WHERE org_id = $2 AND site_id = $3 AND employee_id = $4`, at, orgID, siteID, employeeID)
	return affectedOne(res, err)
}

func (s *Store) PutCheckpointCompletion(ctx context.Context, rec ledger.CompletionRecord) (bool, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO induction_completions(org_id, employee_id, checkpoint_id, completed_by, completed_at)
VALUES($1, $2, $3, $4, $5)
ON CONFLICT(org_id, employee_id, checkpoint_id) DO NOTHING`,
		rec.OrgID, rec.EmployeeID, rec.CheckpointID, rec.CompletedBy, rec.CompletedAt)
	return inserted(res, err)
}

func (s *Store) ListCompletedCheckpoints(ctx context.Context, orgID, employeeID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT checkpoint_id FROM induction_completions WHERE org_id = $1 AND employee_id = $2 ORDER BY checkpoint_id ASC`, orgID, employeeID)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

var _ ledger.Store = (*Store)(nil)
