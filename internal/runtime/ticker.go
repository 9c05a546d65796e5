package runtime

import (
	"errors"
	"time"

	"github.com/drblury/mics/internal/runtime/bus"
	handlerpkg "github.com/drblury/mics/internal/runtime/handlers"
	"github.com/drblury/mics/internal/runtime/lifecycle"
	loggingpkg "github.com/drblury/mics/internal/runtime/logging"
	"github.com/drblury/mics/internal/runtime/message"
)

// DefaultTickerName is the name NewTicker gives its microservice.
const DefaultTickerName = "ticker"

// clockPulse is the ticker's private wake-up. It goes through the ticker's
// own mailbox so tick state is only touched by the run loop.
type clockPulse struct {
	message.BroadcastBase
	origin *MicroService
}

// NewTicker returns a microservice that broadcasts a lifecycle.TickBroadcast
// every interval and counts the ticks in stats. After duration ticks it
// broadcasts lifecycle.TerminatedBroadcast with its own name and terminates.
// A duration of zero ticks until terminated. A lifecycle.CrashedBroadcast
// stops it early.
func NewTicker(b *bus.Bus, stats *lifecycle.Statistics, interval time.Duration, duration int, opts ...Option) (*MicroService, error) {
	if interval <= 0 {
		return nil, errors.New("mics: ticker interval must be positive")
	}
	if duration < 0 {
		return nil, errors.New("mics: ticker duration cannot be negative")
	}
	if stats == nil {
		stats = lifecycle.NewStatistics()
	}

	tick := 0
	init := func(s *MicroService) error {
		if err := SubscribeBroadcast(s, func(c handlerpkg.BroadcastContext[clockPulse]) error {
			if c.Broadcast.origin != s {
				return nil
			}
			tick++
			stats.IncrementRuntime()
			s.SendBroadcast(lifecycle.TickBroadcast{Tick: tick})
			if duration > 0 && tick >= duration {
				c.Logger.Info("Ticker finished", loggingpkg.LogFields{"ticks": tick})
				s.SendBroadcast(lifecycle.TerminatedBroadcast{Service: s.Name()})
				s.Terminate()
			}
			return nil
		}); err != nil {
			return err
		}
		if err := SubscribeBroadcast(s, func(c handlerpkg.BroadcastContext[lifecycle.CrashedBroadcast]) error {
			c.Logger.Info("Peer crashed, stopping ticker", loggingpkg.LogFields{
				"crashed": c.Broadcast.Service,
				"reason":  c.Broadcast.Reason,
			})
			s.Terminate()
			return nil
		}); err != nil {
			return err
		}

		go s.pulse(interval)
		return nil
	}

	s, err := NewMicroService(DefaultTickerName, b, init, opts...)
	if err != nil {
		return nil, err
	}
	s.isTicker = true
	return s, nil
}

// pulse feeds clockPulse into the mailbox until Run returns. When a start
// gate is set the first pulse waits for it.
func (s *MicroService) pulse(interval time.Duration) {
	if s.startGate != nil {
		select {
		case <-s.startGate:
		case <-s.done:
			return
		case <-s.stopCtx.Done():
			return
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-s.stopCtx.Done():
			return
		case <-ticker.C:
			s.bus.SendBroadcast(clockPulse{origin: s})
		}
	}
}

// TerminateOn makes s terminate itself when the ticker announces the end of
// the run or any peer crashes. Call it from the InitFunc.
func TerminateOn(s *MicroService) error {
	if err := SubscribeBroadcast(s, func(c handlerpkg.BroadcastContext[lifecycle.TerminatedBroadcast]) error {
		c.Logger.Debug("Terminated broadcast received", loggingpkg.LogFields{"from": c.Broadcast.Service})
		s.Terminate()
		return nil
	}); err != nil {
		return err
	}
	return SubscribeBroadcast(s, func(c handlerpkg.BroadcastContext[lifecycle.CrashedBroadcast]) error {
		c.Logger.Debug("Crashed broadcast received", loggingpkg.LogFields{"from": c.Broadcast.Service})
		s.Terminate()
		return nil
	})
}
