package audit

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/apperrors"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/crypto"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/ledger"
)

var testNow = func() time.Time { return time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC) }

func testSigner(t *testing.T) *crypto.Ed25519Signer {
	t.Helper()
	signer, err := crypto.NewEd25519SignerFromSeed("k1", bytes.Repeat([]byte{7}, ed25519.SeedSize))
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	return signer
}

func sampleEvent() Event {
	ev := Event{
		OrgID:       "o1",
		SiteID:      "s1",
		ActorUserID: "u1",
		Action:      "decision.acknowledge",
		TargetType:  "station_shift",
		TargetID:    "t1",
		Outcome:     "RECORDED",
		ReasonCodes: []string{"OPS_NO_GO"},
		Meta:        map[string]any{"reason": "late delivery", "count": 2},
	}
	ev.IdempotencyKey = IdempotencyKey("decision", "o1", "station_shift", "t1", "ACKNOWLEDGE", "abc")
	return ev
}

func TestIdempotencyKeyFillsEmptyParts(t *testing.T) {
	got := IdempotencyKey("readiness", "o1", "", " ", "DAY")
	if got != "readiness:o1:NA:NA:DAY" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestAppendRecordsThenReportsDuplicate(t *testing.T) {
	store := ledger.NewInMemoryStore()
	trail := NewTrail(store, Config{Signer: testSigner(t), Now: testNow})
	ctx := context.Background()

	first, err := trail.Append(ctx, sampleEvent())
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if first.Status != Recorded || first.EventID == "" || !strings.HasPrefix(first.Digest, "sha256:") {
		t.Fatalf("unexpected result %+v", first)
	}

	second, err := trail.Append(ctx, sampleEvent())
	if err != nil {
		t.Fatalf("second append: %v", err)
	}
	if second.Status != Duplicate {
		t.Fatalf("expected duplicate, got %+v", second)
	}

	events, err := trail.List(ctx, "o1", "", "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
}

func TestAppendConcurrentSameKeyWritesOnce(t *testing.T) {
	store := ledger.NewInMemoryStore()
	trail := NewTrail(store, Config{Now: testNow})

	var wg sync.WaitGroup
	var mu sync.Mutex
	counts := map[AppendStatus]int{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := trail.Append(context.Background(), sampleEvent())
			if err != nil {
				t.Errorf("append: %v", err)
				return
			}
			mu.Lock()
			counts[res.Status]++
			mu.Unlock()
		}()
	}
	wg.Wait()
	if counts[Recorded] != 1 || counts[Duplicate] != 7 {
		t.Fatalf("unexpected outcome counts %v", counts)
	}
}

func TestAppendValidatesRequiredFields(t *testing.T) {
	trail := NewTrail(ledger.NewInMemoryStore(), Config{Now: testNow})
	cases := map[string]func(*Event){
		"idempotency_key": func(e *Event) { e.IdempotencyKey = "" },
		"action":          func(e *Event) { e.Action = " " },
		"org_id":          func(e *Event) { e.OrgID = "" },
	}
	for name, mutate := range cases {
		ev := sampleEvent()
		mutate(&ev)
		if _, err := trail.Append(context.Background(), ev); !apperrors.IsValidation(err) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

type brokenEvents struct{ ledger.EventStore }

func (brokenEvents) InsertGovernanceEvent(context.Context, ledger.GovernanceEventRecord) error {
	return errors.New("disk full")
}

func TestAppendStorageFailureIsFatal(t *testing.T) {
	trail := NewTrail(brokenEvents{ledger.NewInMemoryStore()}, Config{Now: testNow})
	_, err := trail.Append(context.Background(), sampleEvent())
	if apperrors.CodeOf(err) != apperrors.CodeAuditWriteFailed {
		t.Fatalf("expected audit write failure, got %v", err)
	}
}

func TestAppendBestEffortLogsFailure(t *testing.T) {
	var buf bytes.Buffer
	trail := NewTrail(brokenEvents{ledger.NewInMemoryStore()}, Config{Now: testNow, Logger: log.New(&buf, "", 0)})
	trail.AppendBestEffort(context.Background(), sampleEvent())
	if !strings.Contains(buf.String(), "audit: best-effort append decision.acknowledge") {
		t.Fatalf("expected log line, got %q", buf.String())
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	signer := testSigner(t)
	store := ledger.NewInMemoryStore()
	trail := NewTrail(store, Config{Signer: signer, Now: testNow})
	ctx := context.Background()
	if _, err := trail.Append(ctx, sampleEvent()); err != nil {
		t.Fatalf("append: %v", err)
	}

	events, err := trail.List(ctx, "o1", "station_shift", "t1")
	if err != nil || len(events) != 1 {
		t.Fatalf("list: %v (%d events)", err, len(events))
	}
	ev := events[0]
	if ev.KeyID != "k1" || len(ev.Sig) == 0 {
		t.Fatalf("expected signed event, got %+v", ev)
	}
	if err := Verify(ev, signer.PublicKey()); err != nil {
		t.Fatalf("verify: %v", err)
	}

	tampered := ev
	tampered.Outcome = "REJECTED"
	if err := Verify(tampered, signer.PublicKey()); !errors.Is(err, ErrDigestMismatch) {
		t.Fatalf("expected digest mismatch, got %v", err)
	}

	forged := ev
	forged.Sig = append([]byte(nil), ev.Sig...)
	forged.Sig[0] ^= 0xff
	if err := Verify(forged, signer.PublicKey()); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
}

func TestVerifyUnsignedEvent(t *testing.T) {
	store := ledger.NewInMemoryStore()
	trail := NewTrail(store, Config{Now: testNow})
	ctx := context.Background()
	if _, err := trail.Append(ctx, sampleEvent()); err != nil {
		t.Fatalf("append: %v", err)
	}
	events, err := trail.List(ctx, "o1", "", "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if err := Verify(events[0], nil); err != nil {
		t.Fatalf("digest-only verify: %v", err)
	}
	if err := Verify(events[0], testSigner(t).PublicKey()); !errors.Is(err, ErrUnsigned) {
		t.Fatalf("expected unsigned error, got %v", err)
	}
}

func TestListRequiresOrg(t *testing.T) {
	trail := NewTrail(ledger.NewInMemoryStore(), Config{})
	if _, err := trail.List(context.Background(), "", "", ""); !apperrors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
