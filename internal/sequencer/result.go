// SPDX-License-Identifier: MPL-2.0

package sequencer

import (
	"encoding/json"

	"github.com/launchpad/launchpad/internal/container"
	"github.com/launchpad/launchpad/internal/depset"
	"github.com/launchpad/launchpad/internal/issue"
	"github.com/launchpad/launchpad/pkg/types"
)

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"

	OutcomeOK      Outcome = "ok"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
	OutcomePending Outcome = "pending"
)

type (
	// Status is the overall result of an operation.
	Status string

	// Outcome is the result of one step.
	Outcome string

	// StepOutcome reports one step of the sequence.
	StepOutcome struct {
		Number  int     `json:"number"`
		Name    string  `json:"name"`
		Outcome Outcome `json:"outcome"`
	}

	// Failure describes the fatal step failure.
	Failure struct {
		Step  int         `json:"step"`
		Name  string      `json:"name"`
		Kind  FailureKind `json:"kind"`
		Issue issue.Id    `json:"issue"`
		// Message is the error chain; Detail the native tool output.
		Message string `json:"message"`
		Detail  string `json:"detail,omitempty"`
	}

	// Result is the machine-readable report of Build and Launch.
	Result struct {
		Status       Status                `json:"status"`
		State        State                 `json:"state"`
		Image        container.ImageTag    `json:"image,omitempty"`
		Reused       bool                  `json:"reused,omitempty"`
		Fingerprint  string                `json:"fingerprint,omitempty"`
		Dependencies []depset.Package      `json:"dependencies,omitempty"`
		Steps        []StepOutcome         `json:"steps"`
		Failure      *Failure              `json:"failure,omitempty"`
		ContainerID  container.ContainerID `json:"container_id,omitempty"`
		Address      string                `json:"address,omitempty"`
		ExitCode     types.ExitCode        `json:"exit_code"`
	}
)

// newResult returns a result with every step pending.
func newResult() *Result {
	r := &Result{Status: StatusOK, Steps: make([]StepOutcome, StepCount)}
	for i := range r.Steps {
		r.Steps[i] = StepOutcome{Number: i + 1, Name: steps[i].name, Outcome: OutcomePending}
	}
	return r
}

// markThrough marks steps 1..n as succeeded.
func (r *Result) markThrough(n int) {
	for i := 0; i < n && i < len(r.Steps); i++ {
		r.Steps[i].Outcome = OutcomeOK
	}
}

// markFailed marks step n failed and every later pending step skipped.
func (r *Result) markFailed(n int) {
	for i := range r.Steps {
		switch {
		case i+1 == n:
			r.Steps[i].Outcome = OutcomeFailed
		case i+1 > n && r.Steps[i].Outcome == OutcomePending:
			r.Steps[i].Outcome = OutcomeSkipped
		}
	}
}

// JSON returns the indented JSON encoding of r.
func (r *Result) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
