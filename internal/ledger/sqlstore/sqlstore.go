package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/ledger"
)

type Store struct {
	db *sql.DB
}

func OpenSQLite(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY under
	// concurrent requests.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func translate(err error) error {
	if isUniqueViolation(err) {
		return ledger.ErrConflict
	}
	return err
}

func noRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func jsonText(raw []byte, empty string) string {
	if len(raw) == 0 {
		return empty
	}
	return string(raw)
}

// Seed data.

func (s *Store) PutUnit(ctx context.Context, rec ledger.UnitRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO units(org_id, unit_id, name, created_at)
VALUES(?, ?, ?, ?)
ON CONFLICT(org_id, unit_id) DO UPDATE SET name = excluded.name`,
		rec.OrgID, rec.UnitID, rec.Name, rec.CreatedAt)
	return err
}

func (s *Store) PutStation(ctx context.Context, rec ledger.StationRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO stations(org_id, station_id, site_id, unit_id, name, created_at)
VALUES(?, ?, ?, ?, ?, ?)
ON CONFLICT(org_id, station_id) DO UPDATE SET
  site_id = excluded.site_id,
  unit_id = excluded.unit_id,
  name = excluded.name`,
		rec.OrgID, rec.StationID, rec.SiteID, rec.UnitID, rec.Name, rec.CreatedAt)
	return err
}

func (s *Store) PutShift(ctx context.Context, rec ledger.ShiftRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO shifts(org_id, shift_id, site_id, shift_date, shift_code, created_at)
VALUES(?, ?, ?, ?, ?, ?)
ON CONFLICT(org_id, shift_id) DO UPDATE SET
  site_id = excluded.site_id,
  shift_date = excluded.shift_date,
  shift_code = excluded.shift_code`,
		rec.OrgID, rec.ShiftID, rec.SiteID, rec.Date, rec.ShiftCode, rec.CreatedAt)
	return err
}

func (s *Store) PutShiftStation(ctx context.Context, rec ledger.ShiftStationRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO shift_stations(org_id, shift_id, station_id)
VALUES(?, ?, ?)
ON CONFLICT(org_id, shift_id, station_id) DO NOTHING`,
		rec.OrgID, rec.ShiftID, rec.StationID)
	return err
}

func (s *Store) PutPolicy(ctx context.Context, rec ledger.PolicyRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO policies(org_id, policy_id, unit_id, version, status, effective_from, weights, thresholds, penalties, feasibility, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(org_id, policy_id) DO UPDATE SET
  unit_id = excluded.unit_id,
  version = excluded.version,
  status = excluded.status,
  effective_from = excluded.effective_from,
  weights = excluded.weights,
  thresholds = excluded.thresholds,
  penalties = excluded.penalties,
  feasibility = excluded.feasibility`,
		rec.OrgID, rec.PolicyID, rec.UnitID, rec.Version, rec.Status, rec.EffectiveFrom,
		jsonText(rec.Weights, "{}"), jsonText(rec.Thresholds, "{}"), jsonText(rec.Penalties, "{}"), jsonText(rec.Feasibility, "{}"),
		rec.CreatedAt)
	return err
}

func (s *Store) PutCheckpoint(ctx context.Context, rec ledger.CheckpointRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO induction_checkpoints(org_id, checkpoint_id, site_id, name, active, created_at)
VALUES(?, ?, ?, ?, ?, ?)
ON CONFLICT(org_id, checkpoint_id) DO UPDATE SET
  site_id = excluded.site_id,
  name = excluded.name,
  active = excluded.active`,
		rec.OrgID, rec.CheckpointID, rec.SiteID, rec.Name, boolToInt(rec.Active), rec.CreatedAt)
	return err
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// Binding.

func (s *Store) GetShift(ctx context.Context, orgID, shiftID string) (ledger.ShiftRecord, bool, error) {
	var rec ledger.ShiftRecord
	row := s.db.QueryRowContext(ctx, `SELECT org_id, shift_id, site_id, shift_date, shift_code, created_at FROM shifts WHERE org_id = ? AND shift_id = ?`, orgID, shiftID)
	if err := row.Scan(&rec.OrgID, &rec.ShiftID, &rec.SiteID, &rec.Date, &rec.ShiftCode, &rec.CreatedAt); err != nil {
		if noRows(err) {
			return ledger.ShiftRecord{}, false, nil
		}
		return ledger.ShiftRecord{}, false, err
	}
	return rec, true, nil
}

func (s *Store) FindShift(ctx context.Context, orgID, siteID, date, shiftCode string) (ledger.ShiftRecord, bool, error) {
	var rec ledger.ShiftRecord
	row := s.db.QueryRowContext(ctx, `SELECT org_id, shift_id, site_id, shift_date, shift_code, created_at FROM shifts
WHERE org_id = ? AND site_id = ? AND shift_date = ? AND shift_code = ?
ORDER BY shift_id ASC LIMIT 1`, orgID, siteID, date, shiftCode)
	if err := row.Scan(&rec.OrgID, &rec.ShiftID, &rec.SiteID, &rec.Date, &rec.ShiftCode, &rec.CreatedAt); err != nil {
		if noRows(err) {
			return ledger.ShiftRecord{}, false, nil
		}
		return ledger.ShiftRecord{}, false, err
	}
	return rec, true, nil
}

func (s *Store) ListShiftStations(ctx context.Context, orgID, shiftID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT station_id FROM shift_stations WHERE org_id = ? AND shift_id = ? ORDER BY station_id ASC`, orgID, shiftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) ListStations(ctx context.Context, orgID string, stationIDs []string) ([]ledger.StationRecord, error) {
	out := []ledger.StationRecord{}
	if len(stationIDs) == 0 {
		return out, nil
	}
	args := make([]any, 0, len(stationIDs)+1)
	args = append(args, orgID)
	for _, id := range stationIDs {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(stationIDs)), ",")

	rows, err := s.db.QueryContext(ctx, `SELECT org_id, station_id, site_id, unit_id, name, created_at FROM stations
WHERE org_id = ? AND station_id IN (`+placeholders+`)
ORDER BY station_id ASC`, args...)
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
	row := s.db.QueryRowContext(ctx, `SELECT org_id, policy_id, unit_id, version, status, effective_from, weights, thresholds, penalties, feasibility, created_at
FROM policies
WHERE org_id = ? AND unit_id = ? AND status = 'active'
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
VALUES(?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(shift_id, unit_id, policy_version) DO NOTHING`,
		rec.SnapshotID, rec.OrgID, rec.ShiftID, rec.UnitID, rec.PolicyID, rec.PolicyVersion, rec.ContentHash, rec.CreatedAt)
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
WHERE org_id = ? AND shift_id = ?
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

const decisionColumns = `decision_id, org_id, site_id, decision_type, target_type, target_id, reason, root_cause, status, revision, created_by, created_at, updated_by, updated_at`

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
WHERE org_id = ? AND decision_type = ? AND target_type = ? AND target_id = ? AND status = 'active'`,
		key.OrgID, key.DecisionType, key.TargetType, key.TargetID))
}

func (s *Store) GetLatestSupersededDecision(ctx context.Context, key ledger.DecisionKey) (ledger.DecisionRecord, bool, error) {
	return scanDecision(s.db.QueryRowContext(ctx, `SELECT `+decisionColumns+`
FROM decisions
WHERE org_id = ? AND decision_type = ? AND target_type = ? AND target_id = ? AND status = 'superseded'
ORDER BY updated_at DESC, decision_id DESC
LIMIT 1`,
		key.OrgID, key.DecisionType, key.TargetType, key.TargetID))
}

func (s *Store) InsertDecision(ctx context.Context, rec ledger.DecisionRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO decisions(`+decisionColumns+`)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.DecisionID, rec.OrgID, rec.SiteID, rec.DecisionType, rec.TargetType, rec.TargetID, rec.Reason,
		jsonText(rec.RootCauseJSON, "{}"), rec.Status, revisionOrFirst(rec.Revision), rec.CreatedBy, rec.CreatedAt, rec.UpdatedBy, rec.UpdatedAt)
	return translate(err)
}

func (s *Store) UpdateDecision(ctx context.Context, rec ledger.DecisionRecord) error {
	res, err := s.db.ExecContext(ctx, `UPDATE decisions SET reason = ?, root_cause = ?, revision = ?, updated_by = ?, updated_at = ?
WHERE decision_id = ? AND status = 'active'`,
		rec.Reason, jsonText(rec.RootCauseJSON, "{}"), revisionOrFirst(rec.Revision), rec.UpdatedBy, rec.UpdatedAt, rec.DecisionID)
	return affectedOne(res, err)
}

func (s *Store) SupersedeDecision(ctx context.Context, decisionID, at string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE decisions SET status = 'superseded', updated_at = ?
WHERE decision_id = ? AND status = 'active'`, at, decisionID)
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
	codes, err := json.Marshal(nonNilCodes(rec.ReasonCodes))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO governance_events(event_id, org_id, site_id, actor_user_id, action, target_type, target_id, outcome, legitimacy_status, readiness_status, reason_codes, meta, idempotency_key, body_digest, key_id, sig, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.EventID, rec.OrgID, rec.SiteID, rec.ActorUserID, rec.Action, rec.TargetType, rec.TargetID, rec.Outcome,
		rec.LegitimacyStatus, rec.ReadinessStatus, string(codes), jsonText(rec.MetaJSON, "{}"), rec.IdempotencyKey,
		rec.BodyDigest, rec.KeyID, rec.Sig, rec.CreatedAt)
	return translate(err)
}

func nonNilCodes(codes []string) []string {
	if codes == nil {
		return []string{}
	}
	return codes
}

func (s *Store) ListGovernanceEvents(ctx context.Context, orgID, targetType, targetID string) ([]ledger.GovernanceEventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT event_id, org_id, site_id, actor_user_id, action, target_type, target_id, outcome, legitimacy_status, readiness_status, reason_codes, meta, idempotency_key, body_digest, key_id, sig, created_at
FROM governance_events
WHERE org_id = ? AND (? = '' OR target_type = ?) AND (? = '' OR target_id = ?)
ORDER BY created_at ASC, event_id ASC`, orgID, targetType, targetType, targetID, targetID)
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

func (s *Store) ListRequiredCheckpoints(ctx context.Context, orgID, siteID string) ([]ledger.CheckpointRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT org_id, checkpoint_id, site_id, name, active, created_at
FROM induction_checkpoints
WHERE org_id = ? AND active = 1 AND (site_id IS NULL OR site_id = ?)
ORDER BY checkpoint_id ASC`, orgID, siteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ledger.CheckpointRecord{}
	for rows.Next() {
		rec, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row scanner) (ledger.CheckpointRecord, error) {
	var rec ledger.CheckpointRecord
	var active int
	if err := row.Scan(&rec.OrgID, &rec.CheckpointID, &rec.SiteID, &rec.Name, &active, &rec.CreatedAt); err != nil {
		return ledger.CheckpointRecord{}, err
	}
	rec.Active = active != 0
	return rec, nil
}

func (s *Store) GetCheckpoint(ctx context.Context, orgID, checkpointID string) (ledger.CheckpointRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT org_id, checkpoint_id, site_id, name, active, created_at
FROM induction_checkpoints WHERE org_id = ? AND checkpoint_id = ?`, orgID, checkpointID)
	rec, err := scanCheckpoint(row)
	if err != nil {
		if noRows(err) {
			return ledger.CheckpointRecord{}, false, nil
		}
		return ledger.CheckpointRecord{}, false, err
	}
	return rec, true, nil
}

func (s *Store) UpsertInductionStatus(ctx context.Context, rec ledger.InductionStatusRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO induction_status(org_id, site_id, employee_id, status, cleared_at, enrolled_at, created_at, updated_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(org_id, site_id, employee_id) DO UPDATE SET
  status = excluded.status,
  cleared_at = excluded.cleared_at,
  enrolled_at = excluded.enrolled_at,
  updated_at = excluded.updated_at`,
		rec.OrgID, rec.SiteID, rec.EmployeeID, rec.Status, rec.ClearedAt, rec.EnrolledAt, rec.CreatedAt, rec.UpdatedAt)
	return err
}

func (s *Store) GetInductionStatus(ctx context.Context, orgID, siteID, employeeID string) (ledger.InductionStatusRecord, bool, error) {
	var rec ledger.InductionStatusRecord
	row := s.db.QueryRowContext(ctx, `SELECT org_id, site_id, employee_id, status, cleared_at, enrolled_at, created_at, updated_at
FROM induction_status WHERE org_id = ? AND site_id = ? AND employee_id = ?`, orgID, siteID, employeeID)
	if err := row.Scan(&rec.OrgID, &rec.SiteID, &rec.EmployeeID, &rec.Status, &rec.ClearedAt, &rec.EnrolledAt, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if noRows(err) {
			return ledger.InductionStatusRecord{}, false, nil
		}
		return ledger.InductionStatusRecord{}, false, err
	}
	return rec, true, nil
}

func (s *Store) MarkInductionCleared(ctx context.Context, orgID, siteID, employeeID, at string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE induction_status SET status = 'CLEARED', cleared_at = ?, updated_at = ?
WHERE org_id = ? AND site_id = ? AND employee_id = ?`, at, at, orgID, siteID, employeeID)
	return affectedOne(res, err)
}

func (s *Store) PutCheckpointCompletion(ctx context.Context, rec ledger.CompletionRecord) (bool, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO induction_completions(org_id, employee_id, checkpoint_id, completed_by, completed_at)
VALUES(?, ?, ?, ?, ?)
ON CONFLICT(org_id, employee_id, checkpoint_id) DO NOTHING`,
		rec.OrgID, rec.EmployeeID, rec.CheckpointID, rec.CompletedBy, rec.CompletedAt)
	if err != nil {
		return false, translate(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *Store) ListCompletedCheckpoints(ctx context.Context, orgID, employeeID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT checkpoint_id FROM induction_completions WHERE org_id = ? AND employee_id = ? ORDER BY checkpoint_id ASC`, orgID, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

var _ ledger.Store = (*Store)(nil)
