package api

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/audit"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/auth"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/crypto"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/decision"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/induction"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/ledger"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/legitimacy"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/readiness"
)

const devToken = "test-token"

type fixture struct {
	store  *ledger.InMemoryStore
	signer *crypto.Ed25519Signer
	router http.Handler
	jwt    *auth.JWTAuthenticator
}

func testClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Millisecond)
		return now
	}
}

func flag(value string) readiness.Evaluator {
	return readiness.EvaluatorFunc(func(context.Context, readiness.Scope) (readiness.PillarResult, error) {
		return readiness.PillarResult{Flag: value}, nil
	})
}

func newFixture(t *testing.T, legal, ops readiness.Evaluator) *fixture {
	t.Helper()
	store := ledger.NewInMemoryStore()
	signer, err := crypto.NewEd25519SignerFromSeed("k1", bytes.Repeat([]byte{3}, ed25519.SeedSize))
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	now := testClock()
	quiet := log.New(io.Discard, "", 0)
	trail := audit.NewTrail(store, audit.Config{Signer: signer, Now: now, Logger: quiet})
	gate := induction.NewGate(store, now)
	jwtAuth := auth.NewJWTAuthenticator("jwt-secret", "readiness")

	h := &Handler{
		Auth: &auth.MultiAuthenticator{
			DevToken:  devToken,
			DevClaims: auth.Claims{OrgID: "o1", SiteID: "s1", UserID: "supervisor"},
			JWT:       jwtAuth,
		},
		Readiness: readiness.NewService(readiness.Config{
			Legal:    legal,
			Ops:      ops,
			Bindings: store,
			Now:      now,
			Logger:   quiet,
		}),
		Decisions:  decision.NewLedger(store, decision.Config{Trail: trail, Now: now, Logger: quiet}),
		Bindings:   store,
		Trail:      trail,
		Induction:  gate,
		Legitimacy: legitimacy.NewService(gate),
		PublicKey:  signer.PublicKey(),
	}
	return &fixture{store: store, signer: signer, router: NewRouter(h), jwt: jwtAuth}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return f.doWithToken(t, method, path, body, devToken)
}

func (f *fixture) doWithToken(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	return res
}

func decode[T any](t *testing.T, res *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(res.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", res.Body.String(), err)
	}
	return out
}

func strPtr(s string) *string { return &s }

// seedShift creates shift sh1 on 2026-03-02 DAY with two stations on unit u1.
func (f *fixture) seedShift(t *testing.T, withPolicy bool) {
	t.Helper()
	ctx := context.Background()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	must(f.store.PutUnit(ctx, ledger.UnitRecord{OrgID: "o1", UnitID: "u1", Name: "Assembly"}))
	must(f.store.PutShift(ctx, ledger.ShiftRecord{OrgID: "o1", ShiftID: "sh1", SiteID: "s1", Date: "2026-03-02", ShiftCode: "DAY"}))
	for _, st := range []string{"st1", "st2"} {
		must(f.store.PutStation(ctx, ledger.StationRecord{OrgID: "o1", StationID: st, SiteID: "s1", UnitID: strPtr("u1"), Name: st}))
		must(f.store.PutShiftStation(ctx, ledger.ShiftStationRecord{OrgID: "o1", ShiftID: "sh1", StationID: st}))
	}
	if withPolicy {
		must(f.store.PutPolicy(ctx, ledger.PolicyRecord{
			OrgID: "o1", PolicyID: "p1", UnitID: "u1", Version: "v1", Status: ledger.PolicyActive,
			EffectiveFrom: "2026-01-01", Weights: []byte(`{"skill":1}`), CreatedAt: "2026-01-01T00:00:00.000000Z",
		}))
	}
}
