package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/rowjay/s3backup/internal/notify"
)

// State is the progress of one element through a batch.
type State string

const (
	StatePending        State = "pending"
	StateBackingUp      State = "backing_up"
	StateVerifying      State = "verifying"
	StateUploading      State = "uploading"
	StateSweepingLocal  State = "sweeping_local"
	StateSweepingRemote State = "sweeping_remote"
	StateDownloading    State = "downloading"
	StateRestoring      State = "restoring"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

// ElementResult records what happened to one element. Once State is
// StateFailed, FailedStage names the stage that failed.
type ElementResult struct {
	Title       string
	State       State
	FailedStage State
	Err         error

	Artifact      string
	Key           string
	Bytes         int64
	LocalDeleted  []string
	RemoteDeleted []string

	Started  time.Time
	Finished time.Time
}

func (r *ElementResult) advance(s State) {
	if r.State != StateFailed {
		r.State = s
	}
}

// fail marks the element failed at its current stage. Only the first failure
// is kept.
func (r *ElementResult) fail(err error) {
	if r.State == StateFailed {
		return
	}
	r.FailedStage = r.State
	r.State = StateFailed
	r.Err = err
}

func (r *ElementResult) OK() bool { return r.State == StateDone }

// BatchReport collects per-element results. The batch itself never fails
// because of an element; callers decide what a failed element means.
type BatchReport struct {
	Operation string
	RunID     string
	Started   time.Time
	Finished  time.Time
	Results   []*ElementResult
}

func (b *BatchReport) Failed() []*ElementResult {
	var out []*ElementResult
	for _, r := range b.Results {
		if !r.OK() {
			out = append(out, r)
		}
	}
	return out
}

func (b *BatchReport) OK() bool { return len(b.Failed()) == 0 }

// Err joins the errors of failed elements, or returns nil.
func (b *BatchReport) Err() error {
	var errs []error
	for _, r := range b.Failed() {
		errs = append(errs, fmt.Errorf("%s failed at %s: %w", r.Title, r.FailedStage, r.Err))
	}
	return errors.Join(errs...)
}

func (b *BatchReport) event() notify.Event {
	status := "success"
	failed := len(b.Failed())
	if failed > 0 {
		status = "failed"
	}
	ev := notify.Event{
		Type:      b.Operation,
		RunID:     b.RunID,
		Message:   fmt.Sprintf("%s: %d of %d elements failed", b.Operation, failed, len(b.Results)),
		Status:    status,
		StartedAt: b.Started,
		EndedAt:   b.Finished,
		Duration:  b.Finished.Sub(b.Started).String(),
	}
	for _, r := range b.Results {
		el := notify.ElementStatus{Title: r.Title, State: string(r.State), Key: r.Key}
		if r.Err != nil {
			el.Stage = string(r.FailedStage)
			el.Error = r.Err.Error()
		}
		ev.Elements = append(ev.Elements, el)
	}
	return ev
}
