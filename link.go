package seriallink

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// DeliveryPolicy selects how Drain hands pending messages to the host.
type DeliveryPolicy int

const (
	// OnlyOldest delivers the single oldest pending message.
	OnlyOldest DeliveryPolicy = iota
	// OnlyNewest delivers the single newest pending message and discards
	// the rest.
	OnlyNewest
	// AllMessages delivers every pending message, oldest first.
	AllMessages
)

// String returns the configuration file spelling of the policy.
func (p DeliveryPolicy) String() string {
	switch p {
	case OnlyOldest:
		return "only_oldest"
	case OnlyNewest:
		return "only_newest"
	case AllMessages:
		return "all_messages"
	default:
		return "unknown"
	}
}

// Option customizes a Link at construction time.
type Option func(*Link)

// WithLogger routes the link's diagnostics through log instead of
// discarding them.
func WithLogger(log *zap.Logger) Option {
	return func(l *Link) { l.log = log }
}

// WithTransport replaces the port-name based transport selection with a
// custom factory. The factory runs once per Start.
func WithTransport(factory func(Config) Transport) Option {
	return func(l *Link) { l.factory = factory }
}

// WithConnectionHandler sets the callback Drain invokes for connection
// events. true means connected.
func WithConnectionHandler(fn func(connected bool)) Option {
	return func(l *Link) { l.onConnection = fn }
}

// WithMessageHandler sets the callback Drain invokes for received lines.
func WithMessageHandler(fn func(line string)) Option {
	return func(l *Link) { l.onMessage = fn }
}

// Link connects a host program to a line-oriented device without ever
// blocking the host. A background worker owns the transport and keeps it
// alive; the host exchanges messages with the worker through two bounded
// queues. All Link methods return immediately and are safe for concurrent
// use, though the queues are sized for a single consumer.
//
// A Link is reusable: after Stop it can be started again with fresh queues
// and statistics.
type Link struct {
	cfg     Config
	log     *zap.Logger
	factory func(Config) Transport

	mu       sync.RWMutex
	running  bool
	stopping bool
	worker   *ioWorker
	inbound  *messageQueue
	outbound *messageQueue
	stats    *counters

	onConnection func(connected bool)
	onMessage    func(line string)
	teardown     func() error
}

// New builds a Link around cfg. Zero-valued fields receive defaults here;
// validation waits until Start.
func New(cfg Config, opts ...Option) *Link {
	l := &Link{
		cfg:     cfg.withDefaults(),
		log:     zap.NewNop(),
		factory: newTransport,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Config returns the link's configuration with defaults applied.
func (l *Link) Config() Config {
	return l.cfg
}

// Start validates the configuration and launches the worker. The worker
// keeps trying to connect until Stop, so Start succeeding says nothing
// about the device being reachable; watch for the connected event.
func (l *Link) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return ErrAlreadyRunning
	}
	if err := l.cfg.validate(); err != nil {
		return err
	}
	l.stats = &counters{}
	l.inbound = newMessageQueue(l.cfg.QueueCapacity, l.cfg.Overflow)
	l.outbound = newMessageQueue(l.cfg.OutboundCapacity, DropOldest)
	l.worker = newIOWorker(l.cfg, l.factory(l.cfg), l.inbound, l.outbound, l.log, l.stats)
	l.running = true
	go l.worker.run()
	l.log.Debug("link started", zap.String("port", l.cfg.PortName))
	return nil
}

// Stop runs the teardown callback, asks the worker to exit and waits for
// it. The wait is bounded by the read timeout plus any reconnect pause in
// progress. Pending inbound messages are discarded; pending outbound lines
// get a final flush while the connection still stands.
func (l *Link) Stop() error {
	l.mu.Lock()
	if !l.running || l.stopping {
		l.mu.Unlock()
		return ErrNotRunning
	}
	l.stopping = true
	worker := l.worker
	teardown := l.teardown
	l.mu.Unlock()

	// Teardown runs before the stop request so its farewell lines can
	// still be queued, and without the lock so it can call Send.
	if teardown != nil {
		l.runTeardown(teardown)
	}
	worker.requestStop()
	<-worker.done

	l.mu.Lock()
	l.running = false
	l.stopping = false
	l.worker = nil
	l.inbound = nil
	l.outbound = nil
	l.mu.Unlock()
	l.log.Debug("link stopped", zap.String("port", l.cfg.PortName))
	return nil
}

// runTeardown shields the shutdown path from a misbehaving callback. A
// teardown error or panic is logged and shutdown proceeds.
func (l *Link) runTeardown(fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("teardown panicked", zap.Any("panic", r))
		}
	}()
	if err := fn(); err != nil {
		l.log.Error("teardown failed", zap.Error(err))
	}
}

// Drain removes pending messages per policy and dispatches them to the
// registered handlers on the calling goroutine. It returns the number of
// messages delivered. Messages drained with OnlyNewest that were not the
// newest are discarded unseen.
func (l *Link) Drain(policy DeliveryPolicy) (int, error) {
	l.mu.RLock()
	if !l.running {
		l.mu.RUnlock()
		return 0, ErrNotRunning
	}
	queue := l.inbound
	onConnection := l.onConnection
	onMessage := l.onMessage
	l.mu.RUnlock()

	switch policy {
	case OnlyOldest:
		msg, ok := queue.pop()
		if !ok {
			return 0, nil
		}
		deliver(msg, onConnection, onMessage)
		return 1, nil
	case OnlyNewest:
		msgs := queue.popAll()
		if len(msgs) == 0 {
			return 0, nil
		}
		deliver(msgs[len(msgs)-1], onConnection, onMessage)
		return 1, nil
	case AllMessages:
		msgs := queue.popAll()
		for _, msg := range msgs {
			deliver(msg, onConnection, onMessage)
		}
		return len(msgs), nil
	default:
		return 0, fmt.Errorf("%w: unknown delivery policy %d", ErrInvalidConfig, policy)
	}
}

// Tick drains with the configured delivery policy. Call it once per host
// loop iteration.
func (l *Link) Tick() (int, error) {
	return l.Drain(l.cfg.Delivery)
}

// ReadMessage removes and returns the oldest pending message, bypassing
// the handlers. ok is false when nothing is pending.
func (l *Link) ReadMessage() (Message, bool, error) {
	l.mu.RLock()
	if !l.running {
		l.mu.RUnlock()
		return Message{}, false, ErrNotRunning
	}
	queue := l.inbound
	l.mu.RUnlock()
	msg, ok := queue.pop()
	return msg, ok, nil
}

// Send queues text for transmission and returns immediately. The worker
// writes queued lines in order whenever the transport is connected. When
// the outbound queue is full the oldest pending line is evicted.
func (l *Link) Send(text string) error {
	l.mu.RLock()
	if !l.running {
		l.mu.RUnlock()
		return ErrNotRunning
	}
	queue := l.outbound
	stats := l.stats
	l.mu.RUnlock()

	_, evicted := queue.push(DataMessage(text))
	if evicted {
		stats.outboundDropped.Inc()
		l.log.Warn("outbound queue full, dropped oldest pending line")
	}
	return nil
}

// SetTeardown registers a callback that Stop runs before stopping the
// worker, while the connection may still be up. Use it for farewell
// messages or device shutdown commands; lines it Sends are flushed before
// the transport closes.
func (l *Link) SetTeardown(fn func() error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.teardown = fn
}

// SetConnectionHandler replaces the connection event callback.
func (l *Link) SetConnectionHandler(fn func(connected bool)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onConnection = fn
}

// SetMessageHandler replaces the received line callback.
func (l *Link) SetMessageHandler(fn func(line string)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onMessage = fn
}

// Running reports whether Start has succeeded without a matching Stop.
func (l *Link) Running() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.running
}

// State reports the current connection state.
func (l *Link) State() ConnState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.worker == nil {
		return StateDisconnected
	}
	return l.worker.connState()
}

// Stats returns a snapshot of the current run's counters. After Stop the
// final counters remain readable until the next Start resets them.
func (l *Link) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.stats == nil {
		return Stats{State: StateDisconnected}
	}
	state := StateDisconnected
	if l.worker != nil {
		state = l.worker.connState()
	}
	return l.stats.snapshot(state)
}

// deliver dispatches one drained message to the matching handler. Nil
// handlers swallow their messages.
func deliver(msg Message, onConnection func(bool), onMessage func(string)) {
	switch msg.Kind {
	case KindConnected:
		if onConnection != nil {
			onConnection(true)
		}
	case KindDisconnected:
		if onConnection != nil {
			onConnection(false)
		}
	default:
		if onMessage != nil {
			onMessage(msg.Text)
		}
	}
}
