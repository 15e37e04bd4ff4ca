// Package types holds the JSON bodies exchanged with the readiness gateway.
package types

import "encoding/json"

type ErrorResponse struct {
	Error    string            `json:"error"`
	Code     string            `json:"code"`
	Metadata map[string]string `json:"metadata,omitempty"`
	// Details carries structured failure bodies such as a scope error.
	Details any `json:"details,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type DecisionRequest struct {
	DecisionType string          `json:"decision_type"`
	TargetType   string          `json:"target_type"`
	Date         string          `json:"date"`
	ShiftCode    string          `json:"shift_code"`
	StationID    string          `json:"station_id,omitempty"`
	IssueType    string          `json:"issue_type,omitempty"`
	Reason       string          `json:"reason"`
	RootCause    json.RawMessage `json:"root_cause,omitempty"`
}

type SupersedeRequest struct {
	DecisionType string `json:"decision_type"`
	TargetType   string `json:"target_type"`
	TargetID     string `json:"target_id"`
}

type DecisionResponse struct {
	DecisionID   string          `json:"decision_id"`
	DecisionType string          `json:"decision_type"`
	TargetType   string          `json:"target_type"`
	TargetID     string          `json:"target_id"`
	Reason       string          `json:"reason"`
	RootCause    json.RawMessage `json:"root_cause"`
	Status       string          `json:"status"`
	Revision     int             `json:"revision"`
	CreatedAt    string          `json:"created_at"`
	CreatedBy    string          `json:"created_by"`
	UpdatedAt    string          `json:"updated_at"`
	Created      bool            `json:"created"`
	Defaulted    bool            `json:"defaulted,omitempty"`
	AuditStatus  string          `json:"audit_status,omitempty"`
}

type EnrollRequest struct {
	EmployeeID string `json:"employee_id"`
}

type CompleteRequest struct {
	EmployeeID   string `json:"employee_id"`
	CheckpointID string `json:"checkpoint_id"`
}

type LegitimacyRequest struct {
	EmployeeID         string   `json:"employee_id"`
	ComplianceStatuses []string `json:"compliance_statuses"`
	DisciplinaryBlock  bool     `json:"disciplinary_block"`
}

type GovernanceEvent struct {
	EventID          string         `json:"event_id"`
	Action           string         `json:"action"`
	ActorUserID      string         `json:"actor_user_id,omitempty"`
	TargetType       string         `json:"target_type,omitempty"`
	TargetID         string         `json:"target_id,omitempty"`
	Outcome          string         `json:"outcome,omitempty"`
	LegitimacyStatus string         `json:"legitimacy_status,omitempty"`
	ReadinessStatus  string         `json:"readiness_status,omitempty"`
	ReasonCodes      []string       `json:"reason_codes"`
	Meta             map[string]any `json:"meta,omitempty"`
	IdempotencyKey   string         `json:"idempotency_key"`
	BodyDigest       string         `json:"body_digest"`
	KeyID            string         `json:"key_id,omitempty"`
	CreatedAt        string         `json:"created_at"`
	// Verified is set only when the gateway holds a verification key.
	Verified *bool `json:"verified,omitempty"`
}

type GovernanceEventsResponse struct {
	Events []GovernanceEvent `json:"events"`
}
