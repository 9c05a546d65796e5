package runtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/mics/internal/runtime/bus"
	handlerpkg "github.com/drblury/mics/internal/runtime/handlers"
	"github.com/drblury/mics/internal/runtime/message"
	metadatapkg "github.com/drblury/mics/internal/runtime/metadata"
)

func testEnvelope() message.Envelope {
	return message.Envelope{
		CorrelationID: "01JTESTCORRELATION",
		Kind:          message.KindEvent,
		Type:          message.TypeFor[ping](),
		Payload:       ping{Seq: 1},
		Metadata:      metadatapkg.New(metadatapkg.KeySender, "camera"),
		SentAt:        time.Now().Add(-20 * time.Millisecond),
	}
}

func TestDispatchHooks_OnDispatchStart(t *testing.T) {
	var called bool
	var captured DispatchContext

	mw := hooksMiddleware("lidar", DispatchHooks{
		OnDispatchStart: func(ctx DispatchContext) {
			called = true
			captured = ctx
		},
	})
	handler := mw(func(context.Context, message.Envelope) error { return nil })

	require.NoError(t, handler(context.Background(), testEnvelope()))
	assert.True(t, called)
	assert.Equal(t, "lidar", captured.Service)
	assert.Equal(t, "01JTESTCORRELATION", captured.CorrelationID)
	assert.Equal(t, "camera", captured.Sender)
	assert.Equal(t, message.KindEvent, captured.Kind)
	assert.Contains(t, captured.MessageType, "ping")
	assert.False(t, captured.StartedAt.IsZero())
	assert.GreaterOrEqual(t, captured.QueuedFor, 20*time.Millisecond)
}

func TestDispatchHooks_OnDispatchDone(t *testing.T) {
	var captured DispatchContext
	var errCalled bool

	mw := hooksMiddleware("lidar", DispatchHooks{
		OnDispatchDone:  func(ctx DispatchContext) { captured = ctx },
		OnDispatchError: func(DispatchContext, error) { errCalled = true },
	})
	handler := mw(func(context.Context, message.Envelope) error {
		time.Sleep(10 * time.Millisecond)
		return nil
	})

	require.NoError(t, handler(context.Background(), testEnvelope()))
	assert.False(t, errCalled)
	assert.GreaterOrEqual(t, captured.Duration, 10*time.Millisecond)
}

func TestDispatchHooks_OnDispatchError(t *testing.T) {
	expected := errors.New("handler error")
	var capturedErr error
	var doneCalled bool

	mw := hooksMiddleware("lidar", DispatchHooks{
		OnDispatchDone:  func(DispatchContext) { doneCalled = true },
		OnDispatchError: func(_ DispatchContext, err error) { capturedErr = err },
	})
	handler := mw(func(context.Context, message.Envelope) error { return expected })

	assert.ErrorIs(t, handler(context.Background(), testEnvelope()), expected)
	assert.False(t, doneCalled)
	assert.Equal(t, expected, capturedErr)
}

func TestDispatchHooks_NoSentAtMeansNoQueueTime(t *testing.T) {
	var captured DispatchContext
	mw := hooksMiddleware("lidar", DispatchHooks{OnDispatchStart: func(ctx DispatchContext) { captured = ctx }})
	env := testEnvelope()
	env.SentAt = time.Time{}

	require.NoError(t, mw(func(context.Context, message.Envelope) error { return nil })(context.Background(), env))
	assert.Zero(t, captured.QueuedFor)
}

func TestDispatchHooks_Merge(t *testing.T) {
	var order []string
	first := DispatchHooks{
		OnDispatchStart: func(DispatchContext) { order = append(order, "first-start") },
		OnDispatchError: func(DispatchContext, error) { order = append(order, "first-error") },
	}
	second := DispatchHooks{
		OnDispatchStart: func(DispatchContext) { order = append(order, "second-start") },
		OnDispatchDone:  func(DispatchContext) { order = append(order, "second-done") },
	}

	merged := first.Merge(second)
	merged.OnDispatchStart(DispatchContext{})
	merged.OnDispatchDone(DispatchContext{})
	merged.OnDispatchError(DispatchContext{}, errors.New("x"))

	assert.Equal(t, []string{"first-start", "second-start", "second-done", "first-error"}, order)
	assert.True(t, DispatchHooks{}.Merge(DispatchHooks{}).empty())
}

func TestLoggingHooks(t *testing.T) {
	log := newTestLogger()
	hooks := LoggingHooks(log)

	hooks.OnDispatchStart(DispatchContext{Service: "lidar", MessageType: "ping"})
	hooks.OnDispatchDone(DispatchContext{Service: "lidar", MessageType: "ping"})
	hooks.OnDispatchError(DispatchContext{Service: "lidar", MessageType: "ping"}, errors.New("boom"))

	entries := log.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "Dispatch started", entries[0].msg)
	assert.Equal(t, "Dispatch completed", entries[1].msg)
	assert.Equal(t, "error", entries[2].level)
	assert.EqualError(t, entries[2].err, "boom")
	assert.Equal(t, "lidar", entries[2].fields["service"])
}

func TestAlertingHooks(t *testing.T) {
	var alerted bool
	hooks := AlertingHooks(func(DispatchContext, error) { alerted = true })
	assert.Nil(t, hooks.OnDispatchStart)
	assert.Nil(t, hooks.OnDispatchDone)
	hooks.OnDispatchError(DispatchContext{}, errors.New("x"))
	assert.True(t, alerted)
}

func TestWithHooksRunsAroundEveryDispatch(t *testing.T) {
	b := bus.New(bus.Options{})

	var (
		mu      sync.Mutex
		started []string
		failed  []error
	)
	hooks := DispatchHooks{
		OnDispatchStart: func(ctx DispatchContext) {
			mu.Lock()
			started = append(started, ctx.MessageType)
			mu.Unlock()
		},
		OnDispatchError: func(_ DispatchContext, err error) {
			mu.Lock()
			failed = append(failed, err)
			mu.Unlock()
		},
	}

	s, err := NewMicroService("hooked", b, func(s *MicroService) error {
		if err := SubscribeEvent(s, func(c handlerpkg.EventContext[ping, int]) error {
			c.Complete(c.Event.Seq)
			return nil
		}); err != nil {
			return err
		}
		return SubscribeBroadcast(s, func(handlerpkg.BroadcastContext[announce]) error {
			return errors.New("cannot announce")
		})
	}, WithHooks(hooks))
	require.NoError(t, err)

	wait := runService(t, context.Background(), s)
	waitRunning(t, s)

	f, ok := bus.SendEvent[int](b, ping{Seq: 3})
	require.True(t, ok)
	v, ok := f.GetTimeout(2 * time.Second)
	require.True(t, ok)
	assert.Equal(t, 3, v)

	b.SendBroadcast(announce{Text: "hello"})
	require.Error(t, wait())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, started, 2)
	require.Len(t, failed, 1)
	assert.ErrorContains(t, failed[0], "cannot announce")
}
