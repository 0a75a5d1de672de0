// Package models defines types shared across internal packages.
package models

import "time"

// Run records one invocation of keepsync sync. Exactly one of Outcome
// or Error is set.
type Run struct {
	ID         uint64    `json:"id" yaml:"id"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	DurationMS int64     `json:"duration_ms" yaml:"duration_ms"`
	LocalKey   string    `json:"local_key" yaml:"local_key"`
	RemoteKey  string    `json:"remote_key" yaml:"remote_key"`
	Outcome    string    `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// Failed reports whether the run ended in an error.
func (r Run) Failed() bool {
	return r.Error != ""
}
