// Package worker provides a NATS worker that runs the nightly brief on request.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/nightly-brief/internal/brief"
	"github.com/nats-io/nats.go"
)

// ErrSubjectEmpty indicates that the trigger subject is empty.
var ErrSubjectEmpty = errors.New("trigger subject cannot be empty")

// JobRunner runs one publication cycle.
type JobRunner interface {
	Run(ctx context.Context, toneName string) (brief.Result, error)
}

// TriggerRequest is the optional payload of a trigger message.
type TriggerRequest struct {
	ToneName string `json:"tone_name,omitempty"`
}

// TriggerReply reports the outcome of a triggered run.
type TriggerReply struct {
	RunID   string   `json:"run_id"`
	Date    string   `json:"date"`
	Tone    string   `json:"tone"`
	Status  string   `json:"status"`
	Error   string   `json:"error,omitempty"`
	Written []string `json:"written"`
}

// NatsWorker listens for trigger messages on a NATS subject and runs the job.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	runner         JobRunner
	defaultTone    string
	runTimeout     time.Duration
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker. defaultTone is used
// when a trigger does not name a tone. A non-positive runTimeout runs each
// triggered job without a deadline, like the run command.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	runner JobRunner,
	defaultTone string,
	runTimeout time.Duration,
	log *logger.Logger,
) (*NatsWorker, error) {
	if subject == "" {
		return nil, ErrSubjectEmpty
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		runner:         runner,
		defaultTone:    defaultTone,
		runTimeout:     runTimeout,
		log:            log,
	}, nil
}

// Run starts the worker and begins listening for messages.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.Info("Listening for brief triggers on subject: %s", w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := w.runContext()
	defer cancel()

	request, err := w.parseRequest(msg)
	if err != nil {
		w.log.Error("Failed to parse trigger: %v", err)
		w.respond(msg, &TriggerReply{Status: brief.StatusError, Error: err.Error()})

		return
	}

	toneName := request.ToneName
	if toneName == "" {
		toneName = w.defaultTone
	}

	result, runErr := w.runner.Run(ctx, toneName)

	reply := &TriggerReply{
		RunID:   result.RunContext.RunID,
		Date:    result.RunContext.DateKey,
		Tone:    result.Tone.Name,
		Status:  brief.StatusOK,
		Error:   "",
		Written: result.Written,
	}

	if runErr != nil {
		w.log.Error("Triggered run %s failed: %v", reply.RunID, runErr)
		reply.Status = brief.StatusError
		reply.Error = runErr.Error()
	}

	w.respond(msg, reply)
}

func (w *NatsWorker) runContext() (context.Context, context.CancelFunc) {
	if w.runTimeout <= 0 {
		return context.WithCancel(context.Background())
	}

	return context.WithTimeout(context.Background(), w.runTimeout)
}

func (w *NatsWorker) parseRequest(msg *nats.Msg) (*TriggerRequest, error) {
	var request TriggerRequest

	if len(msg.Data) == 0 {
		return &request, nil
	}

	err := json.Unmarshal(msg.Data, &request)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger: %w", err)
	}

	return &request, nil
}

// respond is a no-op for triggers published without a reply subject.
func (w *NatsWorker) respond(msg *nats.Msg, reply *TriggerReply) {
	if msg.Reply == "" {
		return
	}

	replyData, err := json.Marshal(reply)
	if err != nil {
		w.log.Error("Failed to marshal trigger reply: %v", err)

		return
	}

	err = msg.Respond(replyData)
	if err != nil {
		w.log.Error("Failed to publish trigger reply: %v", err)
	}
}
