package domain

import (
	"encoding/json"
	"time"
)

type InvocationStatus string

const (
	StatusPending   InvocationStatus = "PENDING"
	StatusSucceeded InvocationStatus = "SUCCEEDED"
	StatusFailed    InvocationStatus = "FAILED"
	StatusTimedOut  InvocationStatus = "TIMED_OUT"
)

func (s InvocationStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusTimedOut
}

// InvokeParams are the per-call request parameters handed to an adapter.
type InvokeParams struct {
	MaxResults        int  `json:"max_results"`
	AlternateStrategy bool `json:"alternate_strategy"`
	Attempt           int  `json:"attempt"`
}

// BackendResult is what an adapter returns on success. Warnings describe
// entries that were skipped as malformed.
type BackendResult struct {
	Items    []EvidenceItem
	Warnings []string
	Raw      []byte
}

// ToolInvocation records one backend call. Status only moves from PENDING to
// a single terminal state; the transition methods reject anything else.
type ToolInvocation struct {
	BackendID string
	Params    InvokeParams
	Attempts  int
	Latency   time.Duration
	Items     []EvidenceItem
	Warnings  []string
	Raw       []byte
	Err       error

	status InvocationStatus
}

func NewToolInvocation(backendID string, params InvokeParams) *ToolInvocation {
	return &ToolInvocation{
		BackendID: backendID,
		Params:    params,
		status:    StatusPending,
	}
}

func (t *ToolInvocation) Status() InvocationStatus { return t.status }

func (t *ToolInvocation) Succeed(items []EvidenceItem, raw []byte, latency time.Duration) error {
	if err := t.finish(StatusSucceeded, latency); err != nil {
		return err
	}
	t.Items = items
	t.Raw = raw
	return nil
}

func (t *ToolInvocation) Fail(err error, latency time.Duration) error {
	if terr := t.finish(StatusFailed, latency); terr != nil {
		return terr
	}
	t.Err = err
	return nil
}

func (t *ToolInvocation) TimeOut(err error, latency time.Duration) error {
	if terr := t.finish(StatusTimedOut, latency); terr != nil {
		return terr
	}
	t.Err = err
	return nil
}

func (t *ToolInvocation) finish(status InvocationStatus, latency time.Duration) error {
	if t.status.Terminal() {
		return ErrInvalidTransition
	}
	t.status = status
	t.Latency = latency
	return nil
}

func (t *ToolInvocation) MarshalJSON() ([]byte, error) {
	view := struct {
		BackendID string           `json:"backend_id"`
		Params    InvokeParams     `json:"params"`
		Status    InvocationStatus `json:"status"`
		Attempts  int              `json:"attempts"`
		LatencyMs int64            `json:"latency_ms"`
		Items     int              `json:"items"`
		Warnings  []string         `json:"warnings,omitempty"`
		Error     string           `json:"error,omitempty"`
	}{
		BackendID: t.BackendID,
		Params:    t.Params,
		Status:    t.status,
		Attempts:  t.Attempts,
		LatencyMs: t.Latency.Milliseconds(),
		Items:     len(t.Items),
		Warnings:  t.Warnings,
	}
	if t.Err != nil {
		view.Error = t.Err.Error()
	}
	return json.Marshal(view)
}
