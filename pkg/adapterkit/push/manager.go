// Package push implements the subscription engine behind push features.
//
// A Manager accepts values through Publish, serializes them through one
// dispatcher goroutine and fans each value out to every live subscription.
// Each subscription has its own bounded queue and overflow policy, so a slow
// reader only loses its own values and never stalls the others. Wait
// subscriptions are fed by a pump goroutine of their own.
//
// SnapshotTagValueManager and EventMessageManager adapt a Manager to the
// snapshot-push and event-push feature contracts.
package push

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	akerrors "github.com/randalmurphal/adapterkit/pkg/adapterkit/errors"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/observability"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/types"
)

// State is the lifecycle state of a Manager.
type State int32

// Manager states.
const (
	StateRunning State = iota
	StateDisposing
	StateDisposed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDisposing:
		return "disposing"
	default:
		return "disposed"
	}
}

// Hooks are called when the subscriber set changes. They run on the goroutine
// that subscribed or closed, outside the manager's lock. Panics are logged.
type Hooks[T any] struct {
	OnSubscriptionAdded   func(sub *Subscription[T])
	OnSubscriptionRemoved func(sub *Subscription[T])
}

// Manager fans published values out to subscriptions.
type Manager[T any] struct {
	cfg   Config
	hooks Hooks[T]

	queue chan T

	mu     sync.RWMutex
	subs   map[string]*Subscription[T]
	active int

	state  atomic.Int32
	ctx    context.Context
	cancel context.CancelFunc
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// NewManager creates a running manager and starts its dispatcher.
func NewManager[T any](cfg Config, hooks Hooks[T]) *Manager[T] {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager[T]{
		cfg:    cfg,
		hooks:  hooks,
		queue:  make(chan T, cfg.QueueSize),
		subs:   make(map[string]*Subscription[T]),
		ctx:    ctx,
		cancel: cancel,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	go m.dispatch()
	return m
}

// State returns the current lifecycle state.
func (m *Manager[T]) State() State {
	return State(m.state.Load())
}

// Subscribe registers a new subscription. The caller identity is taken from
// ctx. When ctx is cancelled the subscription closes itself.
func (m *Manager[T]) Subscribe(ctx context.Context, mode types.SubscriptionMode, opts ...SubscribeOption) (*Subscription[T], error) {
	return m.subscribe(ctx, mode, nil, opts...)
}

func (m *Manager[T]) subscribe(ctx context.Context, mode types.SubscriptionMode, filter func(T) bool, opts ...SubscribeOption) (*Subscription[T], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := subscribeConfig{
		buffer:  m.cfg.SubscriberBuffer,
		policy:  m.cfg.Policy,
		timeout: m.cfg.WriteTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	sub := &Subscription[T]{
		id:      uuid.New().String(),
		caller:  types.CallerFrom(ctx),
		mode:    mode,
		ch:      make(chan T, cfg.buffer),
		done:    make(chan struct{}),
		policy:  cfg.policy,
		timeout: cfg.timeout,
		filter:  filter,
		manager: m,
	}
	if cfg.policy == Wait {
		sub.pending = make(chan T, cfg.buffer)
	}

	m.mu.Lock()
	if m.State() != StateRunning {
		m.mu.Unlock()
		return nil, akerrors.Runtime("push.subscribe", akerrors.ErrClosed, "%s manager is %s", m.cfg.Name, m.State())
	}
	m.subs[sub.id] = sub
	if mode == types.SubscriptionActive {
		m.active++
	}
	m.mu.Unlock()

	if sub.pending != nil {
		go sub.pump(m.ctx)
	}
	m.cfg.Metrics.RecordSubscriptions(context.Background(), m.cfg.Name, 1)
	observability.LogSubscriptionAdded(m.cfg.Logger, sub.id, sub.caller.ID, mode.String())
	m.runHook("on_subscription_added", m.hooks.OnSubscriptionAdded, sub)

	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				_ = sub.Close()
			case <-sub.done:
			}
		}()
	}

	return sub, nil
}

// Publish enqueues v for delivery without waiting for subscribers.
// It returns false once the manager is disposing or when the dispatch queue
// is full. A value published concurrently with Close may be dropped.
func (m *Manager[T]) Publish(v T) bool {
	if m.State() != StateRunning {
		m.cfg.Metrics.RecordPublish(context.Background(), m.cfg.Name, false)
		return false
	}
	select {
	case m.queue <- v:
		m.cfg.Metrics.RecordPublish(context.Background(), m.cfg.Name, true)
		return true
	default:
		m.cfg.Metrics.RecordPublish(context.Background(), m.cfg.Name, false)
		return false
	}
}

// HasSubscriptions reports whether any subscription is live.
func (m *Manager[T]) HasSubscriptions() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs) > 0
}

// HasActiveSubscriptions reports whether any Active subscription is live.
func (m *Manager[T]) HasActiveSubscriptions() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active > 0
}

// SubscriberCount returns the number of live subscriptions.
func (m *Manager[T]) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs)
}

// Close stops the dispatcher and closes every live subscription.
// Publish returns false from the moment Close is called. Values already in
// the dispatch queue are fanned out first; a Wait subscription drops any
// of them still pending in its own queue when it closes.
func (m *Manager[T]) Close() error {
	m.once.Do(func() {
		m.state.Store(int32(StateDisposing))
		close(m.stop)
		<-m.done
		m.cancel()

		m.mu.RLock()
		subs := make([]*Subscription[T], 0, len(m.subs))
		for _, sub := range m.subs {
			subs = append(subs, sub)
		}
		m.mu.RUnlock()

		for _, sub := range subs {
			_ = sub.Close()
		}
		m.state.Store(int32(StateDisposed))
	})
	return nil
}

func (m *Manager[T]) dispatch() {
	defer close(m.done)
	for {
		select {
		case v := <-m.queue:
			m.fanOut(v)
		case <-m.stop:
			for {
				select {
				case v := <-m.queue:
					m.fanOut(v)
				default:
					return
				}
			}
		}
	}
}

// fanOut delivers v to a snapshot of the subscriber set. It never blocks:
// Wait subscriptions get v through their pending queue and pump.
func (m *Manager[T]) fanOut(v T) {
	m.mu.RLock()
	subs := make([]*Subscription[T], 0, len(m.subs))
	for _, sub := range m.subs {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	for _, sub := range subs {
		if sub.filter != nil && !sub.filter(v) {
			continue
		}
		if sub.pending != nil {
			select {
			case sub.pending <- v:
			default:
				m.recordDelivery(sub, false)
			}
			continue
		}
		m.recordDelivery(sub, sub.deliver(m.ctx, v))
	}
}

func (m *Manager[T]) recordDelivery(sub *Subscription[T], delivered bool) {
	m.cfg.Metrics.RecordDelivery(context.Background(), m.cfg.Name, !delivered)
	if !delivered {
		observability.LogValueDropped(m.cfg.Logger, sub.id, sub.policy.String())
	}
}

// remove unregisters sub and reports whether it was registered.
func (m *Manager[T]) remove(sub *Subscription[T]) bool {
	m.mu.Lock()
	if _, ok := m.subs[sub.id]; !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.subs, sub.id)
	if sub.mode == types.SubscriptionActive {
		m.active--
	}
	m.mu.Unlock()

	m.cfg.Metrics.RecordSubscriptions(context.Background(), m.cfg.Name, -1)
	observability.LogSubscriptionRemoved(m.cfg.Logger, sub.id)
	m.runHook("on_subscription_removed", m.hooks.OnSubscriptionRemoved, sub)
	return true
}

func (m *Manager[T]) runHook(name string, hook func(*Subscription[T]), sub *Subscription[T]) {
	if hook == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			observability.LogHookPanic(m.cfg.Logger, name, r)
		}
	}()
	hook(sub)
}
