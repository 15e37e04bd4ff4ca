package ledger

import (
	"context"
	"errors"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestInMemoryStoreBindingData(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	_ = s.PutShift(ctx, ShiftRecord{OrgID: "o1", ShiftID: "sh1", SiteID: "s1", Date: "2026-03-02", ShiftCode: "DAY"})
	_ = s.PutShiftStation(ctx, ShiftStationRecord{OrgID: "o1", ShiftID: "sh1", StationID: "st-b"})
	_ = s.PutShiftStation(ctx, ShiftStationRecord{OrgID: "o1", ShiftID: "sh1", StationID: "st-a"})
	_ = s.PutShiftStation(ctx, ShiftStationRecord{OrgID: "o1", ShiftID: "sh1", StationID: "st-a"})
	_ = s.PutStation(ctx, StationRecord{OrgID: "o1", StationID: "st-a", UnitID: strPtr("u1")})

	shift, ok, err := s.FindShift(ctx, "o1", "s1", "2026-03-02", "DAY")
	if err != nil || !ok || shift.ShiftID != "sh1" {
		t.Fatalf("find shift mismatch: ok=%v err=%v got=%+v", ok, err, shift)
	}
	if _, ok, _ := s.GetShift(ctx, "o2", "sh1"); ok {
		t.Fatalf("expected shift to be org scoped")
	}

	ids, err := s.ListShiftStations(ctx, "o1", "sh1")
	if err != nil || len(ids) != 2 || ids[0] != "st-a" || ids[1] != "st-b" {
		t.Fatalf("expected sorted distinct stations, got %v err=%v", ids, err)
	}
	stations, err := s.ListStations(ctx, "o1", ids)
	if err != nil || len(stations) != 1 || stations[0].StationID != "st-a" {
		t.Fatalf("unexpected stations: %+v err=%v", stations, err)
	}
}

func TestInMemoryStoreActivePolicyOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	_ = s.PutPolicy(ctx, PolicyRecord{OrgID: "o1", PolicyID: "p-old", UnitID: "u1", Version: "1", Status: PolicyActive, EffectiveFrom: "2026-01-01", CreatedAt: "2026-01-01T00:00:00.000000Z"})
	_ = s.PutPolicy(ctx, PolicyRecord{OrgID: "o1", PolicyID: "p-new", UnitID: "u1", Version: "2", Status: PolicyActive, EffectiveFrom: "2026-02-01", CreatedAt: "2026-01-02T00:00:00.000000Z"})
	_ = s.PutPolicy(ctx, PolicyRecord{OrgID: "o1", PolicyID: "p-tie", UnitID: "u1", Version: "3", Status: PolicyActive, EffectiveFrom: "2026-02-01", CreatedAt: "2026-01-03T00:00:00.000000Z"})
	_ = s.PutPolicy(ctx, PolicyRecord{OrgID: "o1", PolicyID: "p-off", UnitID: "u1", Version: "4", Status: PolicyInactive, EffectiveFrom: "2026-03-01", CreatedAt: "2026-01-04T00:00:00.000000Z"})

	got, ok, err := s.GetActivePolicy(ctx, "o1", "u1")
	if err != nil || !ok || got.PolicyID != "p-tie" {
		t.Fatalf("expected p-tie, got %+v ok=%v err=%v", got, ok, err)
	}
	if _, ok, _ := s.GetActivePolicy(ctx, "o1", "u2"); ok {
		t.Fatalf("expected no policy for u2")
	}
}

func TestInMemoryStoreSnapshotsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	rec := PolicySnapshotRecord{SnapshotID: "snap1", OrgID: "o1", ShiftID: "sh1", UnitID: "u1", PolicyVersion: "1", ContentHash: "sha256:aa"}

	if created, err := s.PutPolicySnapshot(ctx, rec); err != nil || !created {
		t.Fatalf("expected first snapshot to be created: created=%v err=%v", created, err)
	}
	rec.SnapshotID = "snap2"
	if created, err := s.PutPolicySnapshot(ctx, rec); err != nil || created {
		t.Fatalf("expected second snapshot to be a no-op: created=%v err=%v", created, err)
	}
	snaps, _ := s.ListPolicySnapshots(ctx, "o1", "sh1")
	if len(snaps) != 1 || snaps[0].SnapshotID != "snap1" {
		t.Fatalf("unexpected snapshots: %+v", snaps)
	}
}

func TestInMemoryStoreDecisionUniqueness(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	rec := DecisionRecord{DecisionID: "d1", OrgID: "o1", DecisionType: "ACKNOWLEDGE", TargetType: "station_shift", TargetID: "t1", Status: DecisionActive, CreatedAt: "now", UpdatedAt: "now"}

	if err := s.InsertDecision(ctx, rec); err != nil {
		t.Fatalf("insert: %v", err)
	}
	dup := rec
	dup.DecisionID = "d2"
	if err := s.InsertDecision(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	rec.Reason = "updated"
	rec.UpdatedAt = "later"
	if err := s.UpdateDecision(ctx, rec); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, ok, _ := s.GetActiveDecision(ctx, rec.Key())
	if !ok || got.Reason != "updated" || got.CreatedAt != "now" {
		t.Fatalf("unexpected active decision: %+v", got)
	}

	if err := s.SupersedeDecision(ctx, "d1", "later"); err != nil {
		t.Fatalf("supersede: %v", err)
	}
	if err := s.SupersedeDecision(ctx, "d1", "later"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second supersede, got %v", err)
	}
	if err := s.UpdateDecision(ctx, rec); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound updating superseded row, got %v", err)
	}
	if err := s.InsertDecision(ctx, dup); err != nil {
		t.Fatalf("expected new active row after supersede: %v", err)
	}
}

func TestInMemoryStoreLatestSuperseded(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	key := DecisionKey{OrgID: "o1", DecisionType: "STOP", TargetType: "station_shift", TargetID: "t1"}

	if _, ok, err := s.GetLatestSupersededDecision(ctx, key); err != nil || ok {
		t.Fatalf("expected nothing superseded, ok=%v err=%v", ok, err)
	}
	for i, id := range []string{"d1", "d2"} {
		rec := DecisionRecord{DecisionID: id, OrgID: "o1", DecisionType: "STOP", TargetType: "station_shift", TargetID: "t1", Status: DecisionActive}
		if err := s.InsertDecision(ctx, rec); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
		if err := s.SupersedeDecision(ctx, id, []string{"t1", "t2"}[i]); err != nil {
			t.Fatalf("supersede %s: %v", id, err)
		}
	}
	got, ok, err := s.GetLatestSupersededDecision(ctx, key)
	if err != nil || !ok || got.DecisionID != "d2" || got.Revision != 1 {
		t.Fatalf("unexpected latest superseded: %+v ok=%v err=%v", got, ok, err)
	}
	other := key
	other.TargetID = "t2"
	if _, ok, _ := s.GetLatestSupersededDecision(ctx, other); ok {
		t.Fatalf("expected no match for a different target")
	}
}

func TestInMemoryStoreEvents(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	ev := GovernanceEventRecord{EventID: "e1", OrgID: "o1", Action: "decision.acknowledge", TargetType: "station_shift", TargetID: "t1", IdempotencyKey: "k1", CreatedAt: "2026-01-01T00:00:00.000000Z"}
	if err := s.InsertGovernanceEvent(ctx, ev); err != nil {
		t.Fatalf("insert: %v", err)
	}
	ev.EventID = "e2"
	if err := s.InsertGovernanceEvent(ctx, ev); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	ev.EventID = "e3"
	ev.IdempotencyKey = "k3"
	ev.TargetID = "t2"
	_ = s.InsertGovernanceEvent(ctx, ev)

	all, _ := s.ListGovernanceEvents(ctx, "o1", "", "")
	if len(all) != 2 {
		t.Fatalf("expected 2 events, got %d", len(all))
	}
	one, _ := s.ListGovernanceEvents(ctx, "o1", "station_shift", "t1")
	if len(one) != 1 || one[0].EventID != "e1" {
		t.Fatalf("unexpected filtered events: %+v", one)
	}
}

func TestInMemoryStoreInduction(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	_ = s.PutCheckpoint(ctx, CheckpointRecord{OrgID: "o1", CheckpointID: "cp-org", Active: true})
	_ = s.PutCheckpoint(ctx, CheckpointRecord{OrgID: "o1", CheckpointID: "cp-site", SiteID: strPtr("s1"), Active: true})
	_ = s.PutCheckpoint(ctx, CheckpointRecord{OrgID: "o1", CheckpointID: "cp-other", SiteID: strPtr("s2"), Active: true})
	_ = s.PutCheckpoint(ctx, CheckpointRecord{OrgID: "o1", CheckpointID: "cp-off", Active: false})

	req, _ := s.ListRequiredCheckpoints(ctx, "o1", "s1")
	if len(req) != 2 || req[0].CheckpointID != "cp-org" || req[1].CheckpointID != "cp-site" {
		t.Fatalf("unexpected required checkpoints: %+v", req)
	}

	if err := s.MarkInductionCleared(ctx, "o1", "s1", "e1", "now"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	_ = s.UpsertInductionStatus(ctx, InductionStatusRecord{OrgID: "o1", SiteID: "s1", EmployeeID: "e1", Status: InductionRestricted, CreatedAt: "t0", UpdatedAt: "t0"})
	_ = s.UpsertInductionStatus(ctx, InductionStatusRecord{OrgID: "o1", SiteID: "s1", EmployeeID: "e1", Status: InductionRestricted, CreatedAt: "t1", UpdatedAt: "t1"})
	if err := s.MarkInductionCleared(ctx, "o1", "s1", "e1", "t2"); err != nil {
		t.Fatalf("mark cleared: %v", err)
	}
	got, ok, _ := s.GetInductionStatus(ctx, "o1", "s1", "e1")
	if !ok || got.Status != InductionCleared || got.ClearedAt == nil || got.CreatedAt != "t0" {
		t.Fatalf("unexpected status: %+v", got)
	}

	if created, _ := s.PutCheckpointCompletion(ctx, CompletionRecord{OrgID: "o1", EmployeeID: "e1", CheckpointID: "cp-org"}); !created {
		t.Fatalf("expected completion to be created")
	}
	if created, _ := s.PutCheckpointCompletion(ctx, CompletionRecord{OrgID: "o1", EmployeeID: "e1", CheckpointID: "cp-org"}); created {
		t.Fatalf("expected duplicate completion to be a no-op")
	}
	done, _ := s.ListCompletedCheckpoints(ctx, "o1", "e1")
	if len(done) != 1 || done[0] != "cp-org" {
		t.Fatalf("unexpected completions: %v", done)
	}
}
