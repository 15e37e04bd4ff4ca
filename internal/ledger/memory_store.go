package ledger

import (
	"context"
	"sort"
	"strings"
	"sync"
)

type InMemoryStore struct {
	mu sync.Mutex

	units         map[string]UnitRecord
	stations      map[string]StationRecord
	shifts        map[string]ShiftRecord
	shiftStations map[string]map[string]struct{}
	policies      map[string]PolicyRecord
	snapshots     map[string]PolicySnapshotRecord
	decisions     map[string]DecisionRecord
	activeByKey   map[DecisionKey]string
	events        []GovernanceEventRecord
	eventKeys     map[string]struct{}
	checkpoints   map[string]CheckpointRecord
	induction     map[string]InductionStatusRecord
	completions   map[string]CompletionRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		units:         map[string]UnitRecord{},
		stations:      map[string]StationRecord{},
		shifts:        map[string]ShiftRecord{},
		shiftStations: map[string]map[string]struct{}{},
		policies:      map[string]PolicyRecord{},
		snapshots:     map[string]PolicySnapshotRecord{},
		decisions:     map[string]DecisionRecord{},
		activeByKey:   map[DecisionKey]string{},
		eventKeys:     map[string]struct{}{},
		checkpoints:   map[string]CheckpointRecord{},
		induction:     map[string]InductionStatusRecord{},
		completions:   map[string]CompletionRecord{},
	}
}

func (s *InMemoryStore) Close() error { return nil }

func scoped(parts ...string) string {
	return strings.Join(parts, "\x00")
}

// Seed data.

func (s *InMemoryStore) PutUnit(_ context.Context, rec UnitRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units[scoped(rec.OrgID, rec.UnitID)] = rec
	return nil
}

func (s *InMemoryStore) PutStation(_ context.Context, rec StationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stations[scoped(rec.OrgID, rec.StationID)] = rec
	return nil
}

func (s *InMemoryStore) PutShift(_ context.Context, rec ShiftRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shifts[scoped(rec.OrgID, rec.ShiftID)] = rec
	return nil
}

func (s *InMemoryStore) PutShiftStation(_ context.Context, rec ShiftStationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := scoped(rec.OrgID, rec.ShiftID)
	if s.shiftStations[k] == nil {
		s.shiftStations[k] = map[string]struct{}{}
	}
	s.shiftStations[k][rec.StationID] = struct{}{}
	return nil
}

func (s *InMemoryStore) PutPolicy(_ context.Context, rec PolicyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[scoped(rec.OrgID, rec.PolicyID)] = rec
	return nil
}

func (s *InMemoryStore) PutCheckpoint(_ context.Context, rec CheckpointRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[scoped(rec.OrgID, rec.CheckpointID)] = rec
	return nil
}

// Binding.

func (s *InMemoryStore) GetShift(_ context.Context, orgID, shiftID string) (ShiftRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.shifts[scoped(orgID, shiftID)]
	return rec, ok, nil
}

func (s *InMemoryStore) FindShift(_ context.Context, orgID, siteID, date, shiftCode string) (ShiftRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found []ShiftRecord
	for _, rec := range s.shifts {
		if rec.OrgID == orgID && rec.SiteID == siteID && rec.Date == date && rec.ShiftCode == shiftCode {
			found = append(found, rec)
		}
	}
	if len(found) == 0 {
		return ShiftRecord{}, false, nil
	}
	sort.Slice(found, func(i, j int) bool { return found[i].ShiftID < found[j].ShiftID })
	return found[0], true, nil
}

func (s *InMemoryStore) ListShiftStations(_ context.Context, orgID, shiftID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []string{}
	for id := range s.shiftStations[scoped(orgID, shiftID)] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *InMemoryStore) ListStations(_ context.Context, orgID string, stationIDs []string) ([]StationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []StationRecord{}
	for _, id := range stationIDs {
		if rec, ok := s.stations[scoped(orgID, id)]; ok {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StationID < out[j].StationID })
	return out, nil
}

func (s *InMemoryStore) GetActivePolicy(_ context.Context, orgID, unitID string) (PolicyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best PolicyRecord
	found := false
	for _, rec := range s.policies {
		if rec.OrgID != orgID || rec.UnitID != unitID || rec.Status != PolicyActive {
			continue
		}
		if !found || newerPolicy(rec, best) {
			best = rec
			found = true
		}
	}
	return best, found, nil
}

func newerPolicy(a, b PolicyRecord) bool {
	if a.EffectiveFrom != b.EffectiveFrom {
		return a.EffectiveFrom > b.EffectiveFrom
	}
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt > b.CreatedAt
	}
	return a.PolicyID > b.PolicyID
}

func (s *InMemoryStore) PutPolicySnapshot(_ context.Context, rec PolicySnapshotRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := scoped(rec.ShiftID, rec.UnitID, rec.PolicyVersion)
	if _, ok := s.snapshots[k]; ok {
		return false, nil
	}
	s.snapshots[k] = rec
	return true, nil
}

func (s *InMemoryStore) ListPolicySnapshots(_ context.Context, orgID, shiftID string) ([]PolicySnapshotRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []PolicySnapshotRecord{}
	for _, rec := range s.snapshots {
		if rec.OrgID == orgID && rec.ShiftID == shiftID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UnitID != out[j].UnitID {
			return out[i].UnitID < out[j].UnitID
		}
		return out[i].PolicyVersion < out[j].PolicyVersion
	})
	return out, nil
}

// Decisions.

func (s *InMemoryStore) GetActiveDecision(_ context.Context, key DecisionKey) (DecisionRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.activeByKey[key]
	if !ok {
		return DecisionRecord{}, false, nil
	}
	return s.decisions[id], true, nil
}

func (s *InMemoryStore) InsertDecision(_ context.Context, rec DecisionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.decisions[rec.DecisionID]; ok {
		return ErrConflict
	}
	if rec.Status == DecisionActive {
		if _, ok := s.activeByKey[rec.Key()]; ok {
			return ErrConflict
		}
		s.activeByKey[rec.Key()] = rec.DecisionID
	}
	if rec.Revision < 1 {
		rec.Revision = 1
	}
	s.decisions[rec.DecisionID] = rec
	return nil
}

func (s *InMemoryStore) UpdateDecision(_ context.Context, rec DecisionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.decisions[rec.DecisionID]
	if !ok || cur.Status != DecisionActive {
		return ErrNotFound
	}
	cur.Reason = rec.Reason
	cur.RootCauseJSON = rec.RootCauseJSON
	cur.Revision = rec.Revision
	cur.UpdatedBy = rec.UpdatedBy
	cur.UpdatedAt = rec.UpdatedAt
	s.decisions[rec.DecisionID] = cur
	return nil
}

func (s *InMemoryStore) SupersedeDecision(_ context.Context, decisionID, at string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.decisions[decisionID]
	if !ok || cur.Status != DecisionActive {
		return ErrNotFound
	}
	cur.Status = DecisionSuperseded
	cur.UpdatedAt = at
	s.decisions[decisionID] = cur
	delete(s.activeByKey, cur.Key())
	return nil
}

func (s *InMemoryStore) GetLatestSupersededDecision(_ context.Context, key DecisionKey) (DecisionRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		latest DecisionRecord
		found  bool
	)
	for _, rec := range s.decisions {
		if rec.Status != DecisionSuperseded || rec.Key() != key {
			continue
		}
		if !found || rec.UpdatedAt > latest.UpdatedAt || (rec.UpdatedAt == latest.UpdatedAt && rec.DecisionID > latest.DecisionID) {
			latest, found = rec, true
		}
	}
	return latest, found, nil
}

// Governance events.

func (s *InMemoryStore) InsertGovernanceEvent(_ context.Context, rec GovernanceEventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.eventKeys[rec.IdempotencyKey]; ok {
		return ErrConflict
	}
	s.eventKeys[rec.IdempotencyKey] = struct{}{}
	s.events = append(s.events, rec)
	return nil
}

func (s *InMemoryStore) ListGovernanceEvents(_ context.Context, orgID, targetType, targetID string) ([]GovernanceEventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []GovernanceEventRecord{}
	for _, rec := range s.events {
		if rec.OrgID != orgID {
			continue
		}
		if targetType != "" && rec.TargetType != targetType {
			continue
		}
		if targetID != "" && rec.TargetID != targetID {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

// Induction.

func (s *InMemoryStore) ListRequiredCheckpoints(_ context.Context, orgID, siteID string) ([]CheckpointRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []CheckpointRecord{}
	for _, rec := range s.checkpoints {
		if rec.OrgID != orgID || !rec.Active {
			continue
		}
		if rec.SiteID != nil && *rec.SiteID != siteID {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CheckpointID < out[j].CheckpointID })
	return out, nil
}

func (s *InMemoryStore) GetCheckpoint(_ context.Context, orgID, checkpointID string) (CheckpointRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.checkpoints[scoped(orgID, checkpointID)]
	return rec, ok, nil
}

func (s *InMemoryStore) UpsertInductionStatus(_ context.Context, rec InductionStatusRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := scoped(rec.OrgID, rec.SiteID, rec.EmployeeID)
	if cur, ok := s.induction[k]; ok {
		rec.CreatedAt = cur.CreatedAt
	}
	s.induction[k] = rec
	return nil
}

func (s *InMemoryStore) GetInductionStatus(_ context.Context, orgID, siteID, employeeID string) (InductionStatusRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.induction[scoped(orgID, siteID, employeeID)]
	return rec, ok, nil
}

func (s *InMemoryStore) MarkInductionCleared(_ context.Context, orgID, siteID, employeeID, at string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := scoped(orgID, siteID, employeeID)
	rec, ok := s.induction[k]
	if !ok {
		return ErrNotFound
	}
	rec.Status = InductionCleared
	rec.ClearedAt = &at
	rec.UpdatedAt = at
	s.induction[k] = rec
	return nil
}

func (s *InMemoryStore) PutCheckpointCompletion(_ context.Context, rec CompletionRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := scoped(rec.OrgID, rec.EmployeeID, rec.CheckpointID)
	if _, ok := s.completions[k]; ok {
		return false, nil
	}
	s.completions[k] = rec
	return true, nil
}

func (s *InMemoryStore) ListCompletedCheckpoints(_ context.Context, orgID, employeeID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []string{}
	for _, rec := range s.completions {
		if rec.OrgID == orgID && rec.EmployeeID == employeeID {
			out = append(out, rec.CheckpointID)
		}
	}
	sort.Strings(out)
	return out, nil
}

var _ Store = (*InMemoryStore)(nil)
