// Package bus routes events and broadcasts between registered participants.
//
// A Bus owns one mailbox per participant, an ordered subscriber list per event
// type (rotated on every send for round-robin fairness), a subscriber list per
// broadcast type (fanout), and the correlation table that links a sent event
// to its Future. Buses are constructed explicitly and shared by injection;
// there is no process-wide instance.
package bus

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	errspkg "github.com/drblury/mics/internal/runtime/errors"
	"github.com/drblury/mics/internal/runtime/future"
	"github.com/drblury/mics/internal/runtime/ids"
	"github.com/drblury/mics/internal/runtime/logging"
	"github.com/drblury/mics/internal/runtime/message"
	"github.com/drblury/mics/internal/runtime/metadata"
)

// Participant is anything that owns a mailbox. Identity is the interface
// value itself, so implementations should be pointers. Name is used only for
// logs, metrics and snapshots.
type Participant interface {
	Name() string
}

// Options configures a Bus. The zero value is usable.
type Options struct {
	Logger  logging.ServiceLogger
	Metrics *Metrics
}

// Bus is the in-process message router.
type Bus struct {
	logger  logging.ServiceLogger
	metrics *Metrics

	mu         sync.RWMutex
	mailboxes  map[Participant]*mailbox
	events     map[reflect.Type]*ring
	broadcasts map[reflect.Type]*ring

	pendingMu sync.Mutex
	pending   map[string]pendingFuture
}

type pendingFuture struct {
	future    any
	eventType reflect.Type
	target    Participant
}

var (
	anyEventType  = reflect.TypeFor[message.AnyEvent]()
	broadcastType = reflect.TypeFor[message.Broadcast]()
)

// New constructs an empty bus.
func New(opts Options) *Bus {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Bus{
		logger:     logger.With(logging.LogFields{"component": "bus"}),
		metrics:    opts.Metrics,
		mailboxes:  make(map[Participant]*mailbox),
		events:     make(map[reflect.Type]*ring),
		broadcasts: make(map[reflect.Type]*ring),
		pending:    make(map[string]pendingFuture),
	}
}

// Metrics returns the collectors passed in Options, possibly nil.
func (b *Bus) Metrics() *Metrics {
	return b.metrics
}

// Register ensures p has a mailbox. Registering twice is a no-op.
func (b *Bus) Register(p Participant) error {
	if p == nil {
		return errspkg.ErrServiceRequired
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ensureMailboxLocked(p)
	return nil
}

// Unregister removes p's mailbox and purges p from every subscriber list. A
// goroutine blocked in AwaitMessage for p returns ErrUnregistered. Messages
// still queued are discarded; futures of discarded events stay unresolved.
// It reports whether p was registered.
func (b *Bus) Unregister(p Participant) bool {
	if p == nil {
		return false
	}

	b.mu.Lock()
	mb, ok := b.mailboxes[p]
	if !ok {
		b.mu.Unlock()
		return false
	}
	delete(b.mailboxes, p)
	for _, r := range b.events {
		r.remove(p)
	}
	for _, r := range b.broadcasts {
		r.remove(p)
	}
	registered := len(b.mailboxes)
	dropped := mb.close()
	b.mu.Unlock()

	b.metrics.setRegistered(registered)
	b.metrics.dropped(p.Name(), dropped)
	b.logger.Info("Participant unregistered", logging.LogFields{
		"service": p.Name(),
		"dropped": dropped,
	})
	return true
}

// IsRegistered reports whether p currently owns a mailbox.
func (b *Bus) IsRegistered(p Participant) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.mailboxes[p]
	return ok
}

// SubscribeEvent appends p to the round-robin list for eventType, creating
// p's mailbox if needed. Subscribing the same participant twice is ignored.
func (b *Bus) SubscribeEvent(eventType reflect.Type, p Participant) error {
	if p == nil {
		return errspkg.ErrServiceRequired
	}
	if eventType == nil || !eventType.Implements(anyEventType) {
		return fmt.Errorf("%w: %s", errspkg.ErrNotEvent, message.TypeName(eventType))
	}
	b.subscribe(b.events, eventType, p)
	return nil
}

// SubscribeBroadcast adds p to the fanout list for broadcastType, creating
// p's mailbox if needed.
func (b *Bus) SubscribeBroadcast(bt reflect.Type, p Participant) error {
	if p == nil {
		return errspkg.ErrServiceRequired
	}
	if bt == nil || !bt.Implements(broadcastType) {
		return fmt.Errorf("%w: %s", errspkg.ErrNotBroadcast, message.TypeName(bt))
	}
	b.subscribe(b.broadcasts, bt, p)
	return nil
}

// SubscribeEventOf is SubscribeEvent keyed on the type parameter.
func SubscribeEventOf[E message.AnyEvent](b *Bus, p Participant) error {
	return b.SubscribeEvent(message.TypeFor[E](), p)
}

// SubscribeBroadcastOf is SubscribeBroadcast keyed on the type parameter.
func SubscribeBroadcastOf[B message.Broadcast](b *Bus, p Participant) error {
	return b.SubscribeBroadcast(message.TypeFor[B](), p)
}

func (b *Bus) subscribe(registry map[reflect.Type]*ring, t reflect.Type, p Participant) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ensureMailboxLocked(p)
	r, ok := registry[t]
	if !ok {
		r = &ring{}
		registry[t] = r
	}
	if r.add(p) {
		b.logger.Debug("Subscribed", logging.LogFields{
			"service": p.Name(),
			"type":    message.TypeName(t),
		})
	}
}

func (b *Bus) ensureMailboxLocked(p Participant) *mailbox {
	if mb, ok := b.mailboxes[p]; ok {
		return mb
	}
	mb := newMailbox()
	b.mailboxes[p] = mb
	b.metrics.setRegistered(len(b.mailboxes))
	b.logger.Info("Participant registered", logging.LogFields{"service": p.Name()})
	return mb
}

// SendOption customises an outgoing envelope.
type SendOption func(*message.Envelope)

// WithMetadata merges md into the envelope metadata.
func WithMetadata(md metadata.Metadata) SendOption {
	return func(env *message.Envelope) {
		env.Metadata = env.Metadata.Merge(md)
	}
}

// WithSender stamps the sender name on the envelope.
func WithSender(name string) SendOption {
	return func(env *message.Envelope) {
		if name != "" {
			env.Metadata = env.Metadata.With(metadata.KeySender, name)
		}
	}
}

func newEnvelope(kind message.Kind, m message.Message, opts []SendOption) message.Envelope {
	t := message.TypeOf(m)
	env := message.Envelope{
		CorrelationID: ids.NewCorrelationID(),
		Kind:          kind,
		Type:          t,
		Payload:       m,
		SentAt:        time.Now(),
	}
	env.Metadata = metadata.New(
		metadata.KeyMessageType, message.TypeName(t),
		metadata.KeyCorrelationID, env.CorrelationID,
	)
	for _, opt := range opts {
		opt(&env)
	}
	return env
}

// SendEvent routes e to one subscriber of its type, chosen round robin, and
// returns the Future its result will be delivered through. The boolean is
// false when nobody subscribes to the type; no Future exists in that case.
//
// T is rarely inferable, so callers spell it out: SendEvent[bool](b, detect).
func SendEvent[T any](b *Bus, e message.Event[T], opts ...SendOption) (*future.Future[T], bool) {
	f, _, ok := SendEventEnvelope(b, e, opts...)
	return f, ok
}

// SendEventEnvelope is SendEvent that also returns the envelope placed in the
// subscriber's mailbox, whose CorrelationID completes the Future.
func SendEventEnvelope[T any](b *Bus, e message.Event[T], opts ...SendOption) (*future.Future[T], message.Envelope, bool) {
	if e == nil {
		b.logger.Error("Send rejected", errspkg.ErrNilMessage, logging.LogFields{"kind": message.KindEvent.String()})
		return nil, message.Envelope{}, false
	}
	env := newEnvelope(message.KindEvent, e, opts)
	typeName := env.TypeName()

	b.mu.RLock()
	defer b.mu.RUnlock()

	r, ok := b.events[env.Type]
	var target Participant
	if ok {
		target, ok = r.next()
	}
	if !ok {
		b.metrics.eventUnhandled(typeName)
		b.logger.Debug("Event has no subscriber", logging.LogFields{"type": typeName})
		return nil, message.Envelope{}, false
	}

	f := future.New[T]()
	b.track(env.CorrelationID, pendingFuture{future: f, eventType: env.Type, target: target})

	mb := b.mailboxes[target]
	depth, delivered := 0, false
	if mb != nil {
		depth, delivered = mb.push(env)
	}
	if !delivered {
		b.untrack(env.CorrelationID)
		b.logger.Debug("Event target vanished before delivery", logging.LogFields{
			"type":    typeName,
			"service": target.Name(),
		})
		return nil, message.Envelope{}, false
	}

	b.metrics.eventSent(typeName)
	b.metrics.setDepth(target.Name(), depth)
	return f, env, true
}

// Complete resolves the Future correlated with correlationID and forgets the
// correlation. It reports false, doing nothing, when no such Future is
// pending or when T does not match the event's result type.
func Complete[T any](b *Bus, correlationID string, result T) bool {
	b.pendingMu.Lock()
	pf, ok := b.pending[correlationID]
	if !ok {
		b.pendingMu.Unlock()
		return false
	}
	f, ok := pf.future.(*future.Future[T])
	if !ok {
		b.pendingMu.Unlock()
		err := fmt.Errorf("result type %s does not match the event", reflect.TypeFor[T]())
		b.logger.Error("Completion rejected", err, logging.LogFields{
			"type":           message.TypeName(pf.eventType),
			"correlation_id": correlationID,
		})
		return false
	}
	delete(b.pending, correlationID)
	remaining := len(b.pending)
	b.pendingMu.Unlock()

	f.Resolve(result)
	b.metrics.eventCompleted(message.TypeName(pf.eventType))
	b.metrics.setPending(remaining)
	return true
}

func (b *Bus) track(id string, pf pendingFuture) {
	b.pendingMu.Lock()
	b.pending[id] = pf
	n := len(b.pending)
	b.pendingMu.Unlock()
	b.metrics.setPending(n)
}

func (b *Bus) untrack(id string) {
	b.pendingMu.Lock()
	delete(b.pending, id)
	n := len(b.pending)
	b.pendingMu.Unlock()
	b.metrics.setPending(n)
}

// SendBroadcast delivers m to every participant subscribed to its type at the
// moment of the call and returns how many mailboxes received it.
func (b *Bus) SendBroadcast(m message.Broadcast, opts ...SendOption) int {
	if m == nil {
		b.logger.Error("Send rejected", errspkg.ErrNilMessage, logging.LogFields{"kind": message.KindBroadcast.String()})
		return 0
	}
	env := newEnvelope(message.KindBroadcast, m, opts)
	typeName := env.TypeName()

	b.mu.RLock()
	defer b.mu.RUnlock()

	r, ok := b.broadcasts[env.Type]
	if !ok {
		b.logger.Trace("Broadcast has no subscriber", logging.LogFields{"type": typeName})
		return 0
	}

	delivered := 0
	for _, p := range r.list() {
		mb := b.mailboxes[p]
		if mb == nil {
			continue
		}
		depth, ok := mb.push(env)
		if !ok {
			continue
		}
		delivered++
		b.metrics.setDepth(p.Name(), depth)
	}
	b.metrics.broadcastSent(typeName, delivered)
	return delivered
}

// AwaitMessage blocks until p's mailbox yields the next envelope. It returns
// ErrUnregistered when p has no mailbox, or loses it while waiting, and
// ctx.Err() when ctx ends first; the latter is safe to retry.
func (b *Bus) AwaitMessage(ctx context.Context, p Participant) (message.Envelope, error) {
	if p == nil {
		return message.Envelope{}, errspkg.ErrServiceRequired
	}
	b.mu.RLock()
	mb, ok := b.mailboxes[p]
	b.mu.RUnlock()
	if !ok {
		return message.Envelope{}, errspkg.ErrUnregistered
	}

	env, depth, err := mb.pop(ctx)
	if err != nil {
		return message.Envelope{}, err
	}
	b.metrics.setDepth(p.Name(), depth)
	return env, nil
}

// MailboxSnapshot is the state of one mailbox.
type MailboxSnapshot struct {
	Service string `json:"service"`
	Depth   int    `json:"depth"`
}

// OrphanedFuture is a pending Future whose event went to a participant that
// has since unregistered. Nothing will complete it.
type OrphanedFuture struct {
	CorrelationID string `json:"correlation_id"`
	Type          string `json:"type"`
	Service       string `json:"service"`
}

// Snapshot is a point-in-time view of the bus.
type Snapshot struct {
	Mailboxes      []MailboxSnapshot   `json:"mailboxes"`
	Events         map[string][]string `json:"events"`
	Broadcasts     map[string][]string `json:"broadcasts"`
	PendingFutures int                 `json:"pending_futures"`
	Orphaned       []OrphanedFuture    `json:"orphaned,omitempty"`
	CollectedAt    time.Time           `json:"collected_at"`
}

// Snapshot returns the current registrations. Event subscriber lists are in
// the order the next sends will visit them.
func (b *Bus) Snapshot() Snapshot {
	snap := Snapshot{
		Events:      make(map[string][]string),
		Broadcasts:  make(map[string][]string),
		CollectedAt: time.Now(),
	}

	b.mu.RLock()
	for p, mb := range b.mailboxes {
		snap.Mailboxes = append(snap.Mailboxes, MailboxSnapshot{Service: p.Name(), Depth: mb.len()})
	}
	collect(b.events, snap.Events)
	collect(b.broadcasts, snap.Broadcasts)

	b.pendingMu.Lock()
	snap.PendingFutures = len(b.pending)
	for id, pf := range b.pending {
		if _, ok := b.mailboxes[pf.target]; ok {
			continue
		}
		snap.Orphaned = append(snap.Orphaned, OrphanedFuture{
			CorrelationID: id,
			Type:          message.TypeName(pf.eventType),
			Service:       pf.target.Name(),
		})
	}
	b.pendingMu.Unlock()
	b.mu.RUnlock()

	sort.Slice(snap.Mailboxes, func(i, j int) bool {
		return snap.Mailboxes[i].Service < snap.Mailboxes[j].Service
	})
	sort.Slice(snap.Orphaned, func(i, j int) bool {
		return snap.Orphaned[i].CorrelationID < snap.Orphaned[j].CorrelationID
	})

	return snap
}

func collect(registry map[reflect.Type]*ring, into map[string][]string) {
	for t, r := range registry {
		members := r.list()
		if len(members) == 0 {
			continue
		}
		names := make([]string, len(members))
		for i, p := range members {
			names[i] = p.Name()
		}
		into[message.TypeName(t)] = names
	}
}
