package readiness

// ComposeOverallStatus is the only place shift readiness is decided. Legal
// NO_GO vetoes regardless of ops; unknown flags count as their pillar's NO_GO.
func ComposeOverallStatus(legal LegalFlag, ops OpsFlag) Overall {
	if !legal.Known() || legal == LegalNoGo {
		return OverallNoGo
	}
	if !ops.Known() || ops == OpsNoGo {
		return OverallNoGo
	}
	if legal == LegalWarning || ops == OpsWarning {
		return OverallWarning
	}
	return OverallGo
}

// ComposeReasonCodes returns one code per non-GO flag, legal first.
func ComposeReasonCodes(legal LegalFlag, ops OpsFlag) []string {
	codes := make([]string, 0, 2)
	switch legal {
	case LegalGo:
	case LegalWarning, LegalNoGo:
		codes = append(codes, string(legal))
	default:
		codes = append(codes, unknownFlagCode(PillarLegal))
	}
	switch ops {
	case OpsGo:
	case OpsWarning, OpsNoGo:
		codes = append(codes, string(ops))
	default:
		codes = append(codes, unknownFlagCode(PillarOps))
	}
	return codes
}

func unknownFlagCode(p Pillar) string {
	return string(p) + "_FLAG_UNKNOWN"
}
