package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/apperrors"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/policy"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/pkg/types"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeMessage(w http.ResponseWriter, status int, code apperrors.Code, message string) {
	writeJSON(w, status, types.ErrorResponse{Error: message, Code: string(code)})
}

// writeError maps err onto the response. Scope errors keep their structured
// body; anything without a domain code is logged and reported as internal.
func writeError(w http.ResponseWriter, err error) {
	var scopeErr *policy.ScopeError
	if errors.As(err, &scopeErr) {
		writeJSON(w, http.StatusConflict, types.ErrorResponse{
			Error:   scopeErr.Error(),
			Code:    string(scopeErr.Code()),
			Details: scopeErr,
		})
		return
	}

	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.Code == apperrors.CodeInternal || appErr.Code == apperrors.CodeAuditWriteFailed {
		log.Printf("api: %v", err)
	}
	if appErr == nil {
		writeMessage(w, http.StatusInternalServerError, apperrors.CodeInternal, "internal error")
		return
	}

	status := appErr.Code.HTTPStatus()
	message := appErr.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	writeJSON(w, status, types.ErrorResponse{Error: message, Code: string(appErr.Code), Metadata: appErr.Metadata})
}
