// Package worker_test tests the NATS trigger worker.
package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/nightly-brief/internal/brief"
	"github.com/book-expert/nightly-brief/internal/tones"
	"github.com/book-expert/nightly-brief/internal/worker"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errMockRun = errors.New("mock run error")

// mockJobRunner is a mock implementation of the JobRunner interface.
type mockJobRunner struct {
	mu          sync.Mutex
	shouldFail  bool
	requestedAs []string
	deadlines   []bool
}

func (m *mockJobRunner) Run(ctx context.Context, toneName string) (brief.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requestedAs = append(m.requestedAs, toneName)

	_, hasDeadline := ctx.Deadline()
	m.deadlines = append(m.deadlines, hasDeadline)

	rc := brief.NewRunContext(time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC), "run-1")
	result := brief.Result{
		RunContext: rc,
		Tone:       tones.Tone{Name: toneName, Fields: nil},
		Written:    []string{rc.AudioKey(), rc.MetaKey(), rc.DateKey},
		Err:        nil,
	}

	if m.shouldFail {
		result.Written = nil
		result.Err = errMockRun

		return result, errMockRun
	}

	return result, nil
}

func (m *mockJobRunner) requests() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.requestedAs...)
}

func (m *mockJobRunner) runDeadlines() []bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]bool(nil), m.deadlines...)
}

func createTestNatsClient(t *testing.T) (*nats.Conn, func()) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	server := test.RunServer(&opts)

	natsConnection, err := nats.Connect(server.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	cleanup := func() {
		server.Shutdown()
		natsConnection.Close()
	}

	return natsConnection, cleanup
}

func setupTest(t *testing.T, runner *mockJobRunner) (*worker.NatsWorker, context.Context, context.CancelFunc, *nats.Conn) {
	t.Helper()

	return setupTestWithTimeout(t, runner, time.Second)
}

func setupTestWithTimeout(
	t *testing.T,
	runner *mockJobRunner,
	runTimeout time.Duration,
) (*worker.NatsWorker, context.Context, context.CancelFunc, *nats.Conn) {
	t.Helper()

	natsConnection, natsCleanup := createTestNatsClient(t)
	t.Cleanup(natsCleanup)

	testLogger, err := logger.New(t.TempDir(), "test-log.log")
	require.NoError(t, err)

	workerInstance, err := worker.NewNatsWorker(
		natsConnection, "test_subject", runner, tones.DefaultName, runTimeout, testLogger,
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	return workerInstance, ctx, cancel, natsConnection
}

// requestUntilReady retries until the worker's subscription is active.
func requestUntilReady(t *testing.T, natsConnection *nats.Conn, data []byte) *nats.Msg {
	t.Helper()

	var (
		reply *nats.Msg
		err   error
	)

	for range 50 {
		reply, err = natsConnection.Request("test_subject", data, 200*time.Millisecond)
		if err == nil {
			return reply
		}
	}

	require.NoError(t, err, "Request should succeed and receive a reply")

	return nil
}

func TestMessageHandler_Success(t *testing.T) {
	t.Parallel()

	runner := &mockJobRunner{shouldFail: false, requestedAs: nil}
	workerInstance, ctx, cancel, natsConnection := setupTest(t, runner)
	defer cancel()

	errChan := make(chan error, 1)

	go func() {
		errChan <- workerInstance.Run(ctx)
	}()

	data, err := json.Marshal(&worker.TriggerRequest{ToneName: "Morning Bright"})
	require.NoError(t, err)

	replyMsg := requestUntilReady(t, natsConnection, data)

	var reply worker.TriggerReply

	require.NoError(t, json.Unmarshal(replyMsg.Data, &reply))
	assert.Equal(t, "ok", reply.Status)
	assert.Equal(t, "run-1", reply.RunID)
	assert.Equal(t, "2024-01-15", reply.Date)
	assert.Equal(t, "Morning Bright", reply.Tone)
	assert.Empty(t, reply.Error)
	assert.Equal(t, []string{
		"audio/briefings/2024/01/15/brief.mp3",
		"audio/meta/2024-01-15.json",
		"2024-01-15",
	}, reply.Written)

	cancel()

	shutdownErr := <-errChan
	assert.NoError(t, shutdownErr, "worker.Run should not error on graceful shutdown")
}

func TestMessageHandler_EmptyPayloadUsesDefaultTone(t *testing.T) {
	t.Parallel()

	runner := &mockJobRunner{shouldFail: false, requestedAs: nil}
	workerInstance, ctx, cancel, natsConnection := setupTest(t, runner)
	defer cancel()

	go func() {
		_ = workerInstance.Run(ctx)
	}()

	replyMsg := requestUntilReady(t, natsConnection, nil)

	var reply worker.TriggerReply

	require.NoError(t, json.Unmarshal(replyMsg.Data, &reply))
	assert.Equal(t, tones.DefaultName, reply.Tone)
	assert.Equal(t, []string{tones.DefaultName}, runner.requests())
}

func TestMessageHandler_RunFailure(t *testing.T) {
	t.Parallel()

	runner := &mockJobRunner{shouldFail: true, requestedAs: nil}
	workerInstance, ctx, cancel, natsConnection := setupTest(t, runner)
	defer cancel()

	go func() {
		_ = workerInstance.Run(ctx)
	}()

	replyMsg := requestUntilReady(t, natsConnection, []byte(`{}`))

	var reply worker.TriggerReply

	require.NoError(t, json.Unmarshal(replyMsg.Data, &reply))
	assert.Equal(t, "error", reply.Status)
	assert.Equal(t, errMockRun.Error(), reply.Error)
	assert.Empty(t, reply.Written)
}

func TestMessageHandler_InvalidPayload(t *testing.T) {
	t.Parallel()

	runner := &mockJobRunner{shouldFail: false, requestedAs: nil}
	workerInstance, ctx, cancel, natsConnection := setupTest(t, runner)
	defer cancel()

	go func() {
		_ = workerInstance.Run(ctx)
	}()

	replyMsg := requestUntilReady(t, natsConnection, []byte(`not json`))

	var reply worker.TriggerReply

	require.NoError(t, json.Unmarshal(replyMsg.Data, &reply))
	assert.Equal(t, "error", reply.Status)
	assert.NotEmpty(t, reply.Error)
	assert.Empty(t, runner.requests(), "invalid triggers never start a run")
}

func TestMessageHandler_RunTimeout(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name         string
		runTimeout   time.Duration
		wantDeadline bool
	}{
		{name: "zero timeout runs without a deadline", runTimeout: 0, wantDeadline: false},
		{name: "positive timeout bounds the run", runTimeout: time.Second, wantDeadline: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			runner := &mockJobRunner{}
			workerInstance, ctx, cancel, natsConnection := setupTestWithTimeout(t, runner, tc.runTimeout)
			defer cancel()

			go func() {
				_ = workerInstance.Run(ctx)
			}()

			requestUntilReady(t, natsConnection, nil)

			assert.Equal(t, []bool{tc.wantDeadline}, runner.runDeadlines())
		})
	}
}

func TestNewNatsWorker_RequiresSubject(t *testing.T) {
	t.Parallel()

	_, err := worker.NewNatsWorker(nil, "", &mockJobRunner{}, "", 0, nil)
	require.ErrorIs(t, err, worker.ErrSubjectEmpty)
}
