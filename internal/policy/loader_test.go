package policy

import (
	"os"
	"testing"

	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/crypto"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/ledger"
)

func TestLoadPolicyFile(t *testing.T) {
	loaded, err := LoadPolicyFile("testdata/assembly.yaml")
	if err != nil {
		t.Fatalf("load policy: %v", err)
	}

	if loaded.Policy.PolicyID != "pol-assembly-3" || loaded.Policy.UnitID != "u-assembly" || loaded.Policy.Version != "3" {
		t.Fatalf("unexpected policy: %+v", loaded.Policy)
	}

	data, err := os.ReadFile("testdata/assembly.yaml")
	if err != nil {
		t.Fatalf("read policy: %v", err)
	}
	if loaded.Hash != crypto.DigestWithPrefix(data) {
		t.Fatalf("policy hash mismatch: got %s", loaded.Hash)
	}

	canonical, err := crypto.CanonicalizeJSON(loaded.Policy.Thresholds)
	if err != nil {
		t.Fatalf("canonicalize thresholds: %v", err)
	}
	if string(canonical) != `{"min_coverage":0.85,"min_staff":4}` {
		t.Fatalf("unexpected thresholds: %s", canonical)
	}

	rec := loaded.Record("o1", "2026-01-01T00:00:00.000000Z")
	if rec.Status != ledger.PolicyActive || rec.EffectiveFrom != "2026-02-01" || rec.OrgID != "o1" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestParsePolicyValidation(t *testing.T) {
	const base = "policy_id: p1\nunit_id: u1\nversion: \"1\"\n"
	cases := map[string]string{
		"missing id":        "unit_id: u1\nversion: \"1\"\neffective_from: \"2026-01-01\"\n",
		"missing unit":      "policy_id: p1\nversion: \"1\"\neffective_from: \"2026-01-01\"\n",
		"missing version":   "policy_id: p1\nunit_id: u1\neffective_from: \"2026-01-01\"\n",
		"bad status":        base + "effective_from: \"2026-01-01\"\nstatus: draft\n",
		"bad yaml":          "policy_id: [\n",
		"missing effective": base,
		"blank effective":   base + "effective_from: \" \"\n",
		"unpadded date":     base + "effective_from: \"2026-9-1\"\n",
		"impossible date":   base + "effective_from: \"2026-02-30\"\n",
		"timestamp":         base + "effective_from: \"2026-02-01T00:00:00Z\"\n",
	}
	for name, doc := range cases {
		if _, err := ParsePolicy([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	loaded, err := ParsePolicy([]byte(base + "effective_from: \" 2026-01-01 \"\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if string(loaded.Policy.Weights) != "{}" || loaded.Document.Status != ledger.PolicyActive {
		t.Fatalf("expected defaults, got %+v", loaded)
	}
	if loaded.Policy.EffectiveFrom != "2026-01-01" || loaded.Record("o1", "now").EffectiveFrom != "2026-01-01" {
		t.Fatalf("expected canonical effective_from, got %q", loaded.Policy.EffectiveFrom)
	}

	unquoted, err := ParsePolicy([]byte(base + "effective_from: 2026-03-15\n"))
	if err != nil || unquoted.Policy.EffectiveFrom != "2026-03-15" {
		t.Fatalf("expected unquoted yaml date to parse, got %+v err=%v", unquoted.Policy, err)
	}
}
