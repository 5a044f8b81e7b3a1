// Package receipt defines the durable records GitVan writes for every pack
// application and job run, and the notes-backed store that owns them.
package receipt

import (
	"encoding/json"

	"github.com/gitvan/gitvan/errors"
)

// Status is the terminal state recorded in a receipt.
type Status string

const (
	StatusOK      Status = "OK"
	StatusPartial Status = "PARTIAL"
	StatusSkip    Status = "SKIP"
	StatusError   Status = "ERROR"
)

// IsValidStatus returns true for a recognised status value.
func IsValidStatus(s string) bool {
	switch Status(s) {
	case StatusOK, StatusPartial, StatusSkip, StatusError:
		return true
	default:
		return false
	}
}

// Action identifies what produced a receipt.
type Action string

const (
	ActionApply Action = "apply"
	ActionJob   Action = "job"
	ActionEvent Action = "event"
)

// Role distinguishes live records from tombstones. The store is
// append-only; deletion is logical, by tombstone.
const (
	RoleReceipt   = "receipt"
	RoleTombstone = "tombstone"
)

// ErrorInfo captures the failure recorded in an ERROR receipt.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Attempt int    `json:"attempt,omitempty"`
}

// Receipt is an immutable record of one pack application or job run.
// Written once to refs/notes/gitvan/results on the commit that produced
// it; read-only thereafter.
type Receipt struct {
	Role        string         `json:"role"`
	ID          string         `json:"id"`
	Status      Status         `json:"status"`
	Action      Action         `json:"action"`
	Artifact    string         `json:"artifact,omitempty"`
	Fingerprint string         `json:"fingerprint,omitempty"`
	Commit      string         `json:"commit"`
	Timestamp   string         `json:"ts"`
	Inputs      map[string]any `json:"inputs,omitempty"`
	Error       *ErrorInfo     `json:"error,omitempty"`
}

// Validate checks the fields every receipt must carry.
func (r *Receipt) Validate() error {
	if r.Role != RoleReceipt && r.Role != RoleTombstone {
		return errors.Newf("invalid receipt role %q", r.Role)
	}
	if r.ID == "" {
		return errors.New("receipt id must not be empty")
	}
	if !IsValidStatus(string(r.Status)) {
		return errors.Newf("invalid receipt status %q", r.Status)
	}
	return nil
}

// Marshal renders the receipt as a single JSON line.
func (r *Receipt) Marshal() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", errors.Wrap(err, "marshaling receipt")
	}
	return string(b), nil
}

// Succeeded reports whether this receipt counts toward the at-most-once
// guarantee for its idempotency key.
func (r *Receipt) Succeeded() bool {
	return r.Role == RoleReceipt && (r.Status == StatusOK || r.Status == StatusSkip || r.Status == StatusPartial)
}
