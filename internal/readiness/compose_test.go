package readiness

import (
	"reflect"
	"testing"
)

func TestComposeTruthTable(t *testing.T) {
	cases := []struct {
		legal   LegalFlag
		ops     OpsFlag
		overall Overall
		codes   []string
	}{
		{LegalGo, OpsGo, OverallGo, []string{}},
		{LegalGo, OpsWarning, OverallWarning, []string{"OPS_WARNING"}},
		{LegalGo, OpsNoGo, OverallNoGo, []string{"OPS_NO_GO"}},
		{LegalWarning, OpsGo, OverallWarning, []string{"LEGAL_WARNING"}},
		{LegalWarning, OpsWarning, OverallWarning, []string{"LEGAL_WARNING", "OPS_WARNING"}},
		{LegalWarning, OpsNoGo, OverallNoGo, []string{"LEGAL_WARNING", "OPS_NO_GO"}},
		{LegalNoGo, OpsGo, OverallNoGo, []string{"LEGAL_NO_GO"}},
		{LegalNoGo, OpsWarning, OverallNoGo, []string{"LEGAL_NO_GO", "OPS_WARNING"}},
		{LegalNoGo, OpsNoGo, OverallNoGo, []string{"LEGAL_NO_GO", "OPS_NO_GO"}},
	}
	for _, tc := range cases {
		if got := ComposeOverallStatus(tc.legal, tc.ops); got != tc.overall {
			t.Fatalf("%s/%s: expected %s, got %s", tc.legal, tc.ops, tc.overall, got)
		}
		got := ComposeReasonCodes(tc.legal, tc.ops)
		if got == nil || !reflect.DeepEqual(got, tc.codes) {
			t.Fatalf("%s/%s: expected codes %v, got %#v", tc.legal, tc.ops, tc.codes, got)
		}
	}
}

func TestComposeIsDeterministic(t *testing.T) {
	first := ComposeReasonCodes(LegalWarning, OpsNoGo)
	for i := 0; i < 50; i++ {
		if got := ComposeReasonCodes(LegalWarning, OpsNoGo); !reflect.DeepEqual(got, first) {
			t.Fatalf("reason codes changed between calls: %v vs %v", got, first)
		}
	}
}

func TestComposeUnknownFlagsFailClosed(t *testing.T) {
	if got := ComposeOverallStatus("LEGAL_MAYBE", OpsGo); got != OverallNoGo {
		t.Fatalf("unknown legal flag must be NO_GO, got %s", got)
	}
	if got := ComposeOverallStatus(LegalGo, ""); got != OverallNoGo {
		t.Fatalf("empty ops flag must be NO_GO, got %s", got)
	}
	codes := ComposeReasonCodes("LEGAL_MAYBE", "")
	if !reflect.DeepEqual(codes, []string{"LEGAL_FLAG_UNKNOWN", "OPS_FLAG_UNKNOWN"}) {
		t.Fatalf("unexpected codes: %v", codes)
	}
	if got := ComposeOverallStatus(LegalFlag(OpsGo), OpsGo); got != OverallNoGo {
		t.Fatalf("cross-pillar flag must not be accepted, got %s", got)
	}
}
