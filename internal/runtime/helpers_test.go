package runtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/drblury/mics/internal/runtime/bus"
	handlerpkg "github.com/drblury/mics/internal/runtime/handlers"
	loggingpkg "github.com/drblury/mics/internal/runtime/logging"
	"github.com/drblury/mics/internal/runtime/message"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type logEntry struct {
	level  string
	msg    string
	err    error
	fields loggingpkg.LogFields
}

// testLogger records every entry so tests can assert on what was logged.
type testLogger struct {
	mu      *sync.Mutex
	entries *[]logEntry
	fields  loggingpkg.LogFields
}

func newTestLogger() *testLogger {
	return &testLogger{mu: &sync.Mutex{}, entries: &[]logEntry{}}
}

func (l *testLogger) With(fields loggingpkg.LogFields) loggingpkg.ServiceLogger {
	merged := make(loggingpkg.LogFields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &testLogger{mu: l.mu, entries: l.entries, fields: merged}
}

func (l *testLogger) record(level, msg string, err error, fields loggingpkg.LogFields) {
	merged := make(loggingpkg.LogFields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.entries = append(*l.entries, logEntry{level: level, msg: msg, err: err, fields: merged})
}

func (l *testLogger) Debug(msg string, fields loggingpkg.LogFields) { l.record("debug", msg, nil, fields) }
func (l *testLogger) Info(msg string, fields loggingpkg.LogFields)  { l.record("info", msg, nil, fields) }
func (l *testLogger) Trace(msg string, fields loggingpkg.LogFields) { l.record("trace", msg, nil, fields) }
func (l *testLogger) Error(msg string, err error, fields loggingpkg.LogFields) {
	l.record("error", msg, err, fields)
}

func (l *testLogger) Entries() []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]logEntry, len(*l.entries))
	copy(out, *l.entries)
	return out
}

// find returns the first entry with msg.
func (l *testLogger) find(msg string) (logEntry, bool) {
	for _, e := range l.Entries() {
		if e.msg == msg {
			return e, true
		}
	}
	return logEntry{}, false
}

type ping struct {
	message.EventBase[int]
	Seq int
}

type lookup struct {
	message.EventBase[string]
	Key string
}

type announce struct {
	message.BroadcastBase
	Text string
}

// runService starts s in the background and returns a function waiting for
// Run's result.
func runService(t *testing.T, ctx context.Context, s *MicroService) func() error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	return func() error {
		t.Helper()
		select {
		case err := <-errCh:
			return err
		case <-time.After(5 * time.Second):
			t.Fatalf("microservice %s did not stop", s.Name())
			return nil
		}
	}
}

// waitRunning blocks until s has finished initialisation.
func waitRunning(t *testing.T, s *MicroService) {
	t.Helper()
	require.Eventually(t, func() bool { return s.State() == StateRunning }, 2*time.Second, time.Millisecond)
}

// newEchoService builds a service answering ping with Seq*2.
func newEchoService(t *testing.T, b *bus.Bus, name string, opts ...Option) *MicroService {
	t.Helper()
	s, err := NewMicroService(name, b, func(s *MicroService) error {
		return SubscribeEvent(s, func(c handlerpkg.EventContext[ping, int]) error {
			c.Complete(c.Event.Seq * 2)
			return nil
		})
	}, opts...)
	require.NoError(t, err)
	return s
}
