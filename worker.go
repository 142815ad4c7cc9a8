package seriallink

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// ConnState describes the worker's view of the transport.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

// String returns a short lowercase name for the state.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// ioWorker owns the transport for the lifetime of one Start/Stop cycle and
// is the only goroutine that touches it. It connects, reads lines into the
// inbound queue, drains the outbound queue, and reconnects after failures
// until asked to stop. Connection events travel through the same inbound
// queue as data so the host sees everything in order.
type ioWorker struct {
	cfg      Config
	tr       Transport
	inbound  *messageQueue
	outbound *messageQueue
	log      *zap.Logger
	stats    *counters
	retry    backoff.BackOff

	state    atomic.Int32
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func newIOWorker(cfg Config, tr Transport, inbound, outbound *messageQueue, log *zap.Logger, stats *counters) *ioWorker {
	return &ioWorker{
		cfg:      cfg,
		tr:       tr,
		inbound:  inbound,
		outbound: outbound,
		log:      log,
		stats:    stats,
		retry:    newRetryBackoff(cfg),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// run is the worker loop. It exits only after requestStop, leaving the
// transport closed. Each iteration is bounded by the read timeout, which
// caps how long a stop request can go unnoticed.
func (w *ioWorker) run() {
	defer close(w.done)
	for !w.stopping() {
		if w.connState() != StateConnected {
			if !w.connect() {
				continue
			}
		}
		w.readOnce()
		w.flushOutbound()
	}
	if w.connState() == StateConnected {
		w.finalFlush()
	}
	if err := w.tr.Close(); err != nil {
		w.log.Warn("close transport", zap.Error(err))
	}
	w.state.Store(int32(StateDisconnected))
}

// requestStop asks the worker to exit. Wait on done for completion.
func (w *ioWorker) requestStop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

func (w *ioWorker) stopping() bool {
	select {
	case <-w.stop:
		return true
	default:
		return false
	}
}

func (w *ioWorker) connState() ConnState {
	return ConnState(w.state.Load())
}

// connect opens the transport. On failure it sleeps out the retry delay
// and reports false so the loop can recheck the stop flag.
func (w *ioWorker) connect() bool {
	w.state.Store(int32(StateConnecting))
	if err := w.tr.Open(); err != nil {
		w.state.Store(int32(StateDisconnected))
		delay := w.retry.NextBackOff()
		w.log.Warn("open failed",
			zap.String("port", w.cfg.PortName),
			zap.Duration("retry_in", delay),
			zap.Error(err))
		w.sleep(delay)
		return false
	}
	w.retry.Reset()
	w.pushInbound(Message{Kind: KindConnected})
	w.state.Store(int32(StateConnected))
	w.stats.connects.Inc()
	w.log.Info("connected", zap.String("port", w.cfg.PortName))
	return true
}

// readOnce waits up to the read timeout for one line. Expiring without a
// line is normal; only transport errors cost the connection.
func (w *ioWorker) readOnce() {
	line, ok, err := w.tr.ReadLine(w.cfg.ReadTimeout)
	if err != nil {
		w.dropLink("read failed", err)
		return
	}
	if !ok {
		return
	}
	w.pushInbound(DataMessage(line))
	w.stats.linesReceived.Inc()
}

// flushOutbound writes every queued outgoing line. A failed write loses
// that line and the connection; the rest stay queued for after reconnect.
func (w *ioWorker) flushOutbound() {
	if w.connState() != StateConnected {
		return
	}
	for {
		msg, ok := w.outbound.pop()
		if !ok {
			return
		}
		if err := w.tr.WriteLine(msg.Text); err != nil {
			w.stats.writeErrors.Inc()
			w.dropLink("write failed", err)
			return
		}
		w.stats.linesSent.Inc()
	}
}

// finalFlush gives pending outgoing lines, teardown farewells included,
// one last chance on the wire before shutdown.
func (w *ioWorker) finalFlush() {
	for {
		msg, ok := w.outbound.pop()
		if !ok {
			return
		}
		if err := w.tr.WriteLine(msg.Text); err != nil {
			w.stats.writeErrors.Inc()
			w.log.Warn("write during shutdown failed", zap.Error(err))
			return
		}
		w.stats.linesSent.Inc()
	}
}

// dropLink tears down a failed connection: Disconnected event first, then
// close, so the host never observes a close without the event ahead of it
// in the queue. Ends with the retry pause.
func (w *ioWorker) dropLink(what string, err error) {
	w.log.Warn(what, zap.String("port", w.cfg.PortName), zap.Error(err))
	w.pushInbound(Message{Kind: KindDisconnected})
	if cerr := w.tr.Close(); cerr != nil {
		w.log.Warn("close transport", zap.Error(cerr))
	}
	w.state.Store(int32(StateDisconnected))
	w.stats.disconnects.Inc()
	w.sleep(w.retry.NextBackOff())
}

func (w *ioWorker) pushInbound(msg Message) {
	accepted, evicted := w.inbound.push(msg)
	if evicted || !accepted {
		w.stats.linesDropped.Inc()
	}
}

// sleep pauses for d or until a stop request, whichever comes first.
func (w *ioWorker) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-w.stop:
	case <-t.C:
	}
}

// newRetryBackoff builds the reconnect schedule: a constant pause, or an
// exponential one when MaxReconnectDelay leaves room above ReconnectDelay.
func newRetryBackoff(cfg Config) backoff.BackOff {
	if cfg.MaxReconnectDelay <= cfg.ReconnectDelay {
		return backoff.NewConstantBackOff(cfg.ReconnectDelay)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.ReconnectDelay
	b.MaxInterval = cfg.MaxReconnectDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
