package provisioning

import (
	"encoding/json"
	"time"
)

const recordPrefix = "resource:"

// Status of a UserResourceRecord.
type Status string

const (
	// StatusPending marks a provisioning claim held by an in-flight attempt.
	StatusPending Status = "pending"
	// StatusReady marks a provisioned resource. Ready records never change.
	StatusReady Status = "ready"
)

// Record maps an identity to its spreadsheet.
type Record struct {
	Identity   string    `json:"identity"`
	ResourceID string    `json:"resource_id,omitempty"`
	Status     Status    `json:"status"`
	AttemptID  string    `json:"attempt_id"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func recordKey(identity string) string {
	return recordPrefix + identity
}

func (r Record) encode() ([]byte, error) {
	return json.Marshal(r)
}

func decodeRecord(raw []byte) (Record, error) {
	var r Record
	err := json.Unmarshal(raw, &r)
	return r, err
}
