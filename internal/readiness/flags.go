// Package readiness composes legal and operational verdicts into a single
// shift readiness status.
package readiness

type LegalFlag string

const (
	LegalGo      LegalFlag = "LEGAL_GO"
	LegalWarning LegalFlag = "LEGAL_WARNING"
	LegalNoGo    LegalFlag = "LEGAL_NO_GO"
)

type OpsFlag string

const (
	OpsGo      OpsFlag = "OPS_GO"
	OpsWarning OpsFlag = "OPS_WARNING"
	OpsNoGo    OpsFlag = "OPS_NO_GO"
)

type Overall string

const (
	OverallGo      Overall = "GO"
	OverallWarning Overall = "WARNING"
	OverallNoGo    Overall = "NO_GO"
)

// Pillar names an evaluator and prefixes its failure reason codes.
type Pillar string

const (
	PillarLegal Pillar = "LEGAL"
	PillarOps   Pillar = "OPS"
)

func (f LegalFlag) Known() bool {
	switch f {
	case LegalGo, LegalWarning, LegalNoGo:
		return true
	}
	return false
}

func (f OpsFlag) Known() bool {
	switch f {
	case OpsGo, OpsWarning, OpsNoGo:
		return true
	}
	return false
}
