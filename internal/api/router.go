package api

import (
	"net/http"

	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/telemetry"
)

func NewRouter(handler *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", handler.Health)
	mux.HandleFunc("GET /v1/readiness", handler.GetReadiness)
	mux.HandleFunc("POST /v1/decisions", handler.RecordDecision)
	mux.HandleFunc("POST /v1/decisions/supersede", handler.SupersedeDecision)
	mux.HandleFunc("GET /v1/policy-binding", handler.PolicyBinding)
	mux.HandleFunc("POST /v1/induction/enroll", handler.EnrollInduction)
	mux.HandleFunc("POST /v1/induction/complete", handler.CompleteInduction)
	mux.HandleFunc("GET /v1/induction/status", handler.InductionStatus)
	mux.HandleFunc("POST /v1/legitimacy", handler.EvaluateLegitimacy)
	mux.HandleFunc("GET /v1/governance-events", handler.GovernanceEvents)

	return telemetry.Middleware("github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/api", mux)
}
