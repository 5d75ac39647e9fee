package brief

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/nightly-brief/internal/core"
	"github.com/book-expert/nightly-brief/internal/tones"
	"github.com/google/uuid"
)

// Publish steps, in execution order.
const (
	StepAudio    = "audio"
	StepMetadata = "metadata"
	StepOpsLog   = "ops-log"
)

// Ops-log status values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

const defaultJobName = "mock_generate"

var (
	// ErrObjectStoreRequired indicates a runner built without an object store.
	ErrObjectStoreRequired = errors.New("object store is required")
	// ErrOpsLogRequired indicates a runner built without an ops log.
	ErrOpsLogRequired = errors.New("ops log is required")
	// ErrLoggerRequired indicates a runner built without a logger.
	ErrLoggerRequired = errors.New("logger is required")
)

// StepError reports which publish step failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s step failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Result is the outcome of one publish cycle.
type Result struct {
	RunContext RunContext
	Tone       tones.Tone
	Written    []string
	Err        error
}

// OK reports whether every write succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Deps holds the collaborators of a Runner. Notifier, Clock and NewID are optional.
type Deps struct {
	Store    core.ObjectStore
	OpsLog   core.OpsLog
	Notifier core.Notifier
	Tones    tones.Set
	Log      *logger.Logger
	JobName  string
	Clock    func() time.Time
	NewID    func() string
}

// Runner performs nightly publication cycles.
type Runner struct {
	store    core.ObjectStore
	opsLog   core.OpsLog
	notifier core.Notifier
	tones    tones.Set
	log      *logger.Logger
	jobName  string
	clock    func() time.Time
	newID    func() string
}

// NewRunner creates a Runner from its dependencies.
func NewRunner(deps Deps) (*Runner, error) {
	if deps.Store == nil {
		return nil, ErrObjectStoreRequired
	}

	if deps.OpsLog == nil {
		return nil, ErrOpsLogRequired
	}

	if deps.Log == nil {
		return nil, ErrLoggerRequired
	}

	runner := &Runner{
		store:    deps.Store,
		opsLog:   deps.OpsLog,
		notifier: deps.Notifier,
		tones:    deps.Tones,
		log:      deps.Log,
		jobName:  deps.JobName,
		clock:    deps.Clock,
		newID:    deps.NewID,
	}

	if runner.jobName == "" {
		runner.jobName = defaultJobName
	}

	if runner.clock == nil {
		runner.clock = time.Now
	}

	if runner.newID == nil {
		runner.newID = uuid.NewString
	}

	return runner, nil
}

// Run performs one cycle with the requested tone. On a publish failure the
// error is recorded in the ops log before it is returned; if that record
// fails as well, both errors are returned joined.
func (r *Runner) Run(ctx context.Context, toneName string) (Result, error) {
	rc := NewRunContext(r.clock(), r.newID())
	tone := tones.Select(r.tones, toneName)

	if toneName != "" && tone.Name != toneName {
		r.log.Warn("Tone %q not found, using %q", toneName, tone.Name)
	}

	r.log.Info("Starting %s run %s for %s with tone %q", r.jobName, rc.RunID, rc.DateKey, tone.Name)

	result := r.Publish(ctx, rc, tone)
	if result.OK() {
		r.notify(ctx, rc, tone)
		r.log.System("Nightly mock brief uploaded for %s (tone: %s)", rc.DateKey, tone.Name)

		return result, nil
	}

	r.log.Error("Nightly mock brief failed for %s: %v", rc.DateKey, result.Err)

	recordErr := r.opsLog.Merge(ctx, rc.DateKey, r.opsFields(rc, tone, StatusError, result.Err))
	if recordErr != nil {
		r.log.Error("Failed to record failure for %s: %v", rc.DateKey, recordErr)

		return result, errors.Join(result.Err, fmt.Errorf("failed to record failure in ops log: %w", recordErr))
	}

	return result, result.Err
}

// Publish performs the three writes of a cycle in order and stops at the
// first failure. It never writes the error record itself.
func (r *Runner) Publish(ctx context.Context, rc RunContext, tone tones.Tone) Result {
	result := Result{RunContext: rc, Tone: tone, Written: nil, Err: nil}

	audioKey := rc.AudioKey()

	err := r.store.Upload(ctx, audioKey, []byte{}, ContentTypeAudio)
	if err != nil {
		result.Err = &StepError{Step: StepAudio, Err: err}

		return result
	}

	result.Written = append(result.Written, audioKey)

	metaKey := rc.MetaKey()

	meta, err := NewMetadata(rc, tone).Marshal()
	if err != nil {
		result.Err = &StepError{Step: StepMetadata, Err: err}

		return result
	}

	err = r.store.Upload(ctx, metaKey, meta, ContentTypeJSON)
	if err != nil {
		result.Err = &StepError{Step: StepMetadata, Err: err}

		return result
	}

	result.Written = append(result.Written, metaKey)

	err = r.opsLog.Merge(ctx, rc.DateKey, r.opsFields(rc, tone, StatusOK, nil))
	if err != nil {
		result.Err = &StepError{Step: StepOpsLog, Err: err}

		return result
	}

	result.Written = append(result.Written, rc.DateKey)

	return result
}

// Metadata downloads the metadata record published for dateKey.
func (r *Runner) Metadata(ctx context.Context, dateKey string) ([]byte, error) {
	_, err := ParseDateKey(dateKey)
	if err != nil {
		return nil, err
	}

	data, err := r.store.Download(ctx, MetaKey(dateKey))
	if err != nil {
		return nil, fmt.Errorf("failed to download metadata for %s: %w", dateKey, err)
	}

	return data, nil
}

// Status returns the ops-log document for dateKey.
func (r *Runner) Status(ctx context.Context, dateKey string) (map[string]any, error) {
	_, err := ParseDateKey(dateKey)
	if err != nil {
		return nil, err
	}

	doc, err := r.opsLog.Get(ctx, dateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read ops log for %s: %w", dateKey, err)
	}

	return doc, nil
}

func (r *Runner) opsFields(rc RunContext, tone tones.Tone, status string, cause error) map[string]any {
	fields := map[string]any{
		"date":   rc.DateKey,
		"job":    r.jobName,
		"utc":    rc.UTC,
		"status": status,
		"tone":   tone.Name,
		"run_id": rc.RunID,
	}

	if cause != nil {
		fields["error"] = cause.Error()
	}

	return fields
}

// notify failures are logged only; the ops log already records success.
func (r *Runner) notify(ctx context.Context, rc RunContext, tone tones.Tone) {
	if r.notifier == nil {
		return
	}

	err := r.notifier.Notify(ctx, core.Notification{
		RunID:     rc.RunID,
		DateKey:   rc.DateKey,
		AudioKey:  rc.AudioKey(),
		MetaKey:   rc.MetaKey(),
		ToneName:  tone.Name,
		Timestamp: rc.Now,
	})
	if err != nil {
		r.log.Warn("Failed to announce brief for %s: %v", rc.DateKey, err)
	}
}
