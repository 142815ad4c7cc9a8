package seriallink

import (
	"sync"
	"time"
)

// fakeEvent is one scripted outcome for a ReadLine call: either a line or
// a transport failure.
type fakeEvent struct {
	line string
	err  error
}

// fakeTransport scripts transport behavior for worker and link tests.
// Events pushed by the test surface through ReadLine in order, exactly as
// a live device's would.
type fakeTransport struct {
	mu        sync.Mutex
	openErrs  []error
	openCalls int
	closes    int
	wrote     []string
	writeErr  error

	events chan fakeEvent
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		events: make(chan fakeEvent, 64),
	}
}

// factory plugs the fake into a Link via WithTransport.
func (f *fakeTransport) factory(Config) Transport { return f }

// scriptOpenErrs fixes the outcomes of successive Open calls; calls beyond
// the script succeed.
func (f *fakeTransport) scriptOpenErrs(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openErrs = errs
}

// failNextWrite makes the next WriteLine fail with err and lose the line.
func (f *fakeTransport) failNextWrite(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = err
}

// deviceSends queues a line as if the device had sent it.
func (f *fakeTransport) deviceSends(line string) {
	f.events <- fakeEvent{line: line}
}

// deviceFails queues a transport failure behind any pending lines.
func (f *fakeTransport) deviceFails(err error) {
	f.events <- fakeEvent{err: err}
}

// sent returns every line written so far.
func (f *fakeTransport) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.wrote))
	copy(out, f.wrote)
	return out
}

func (f *fakeTransport) opens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.openCalls
}

func (f *fakeTransport) closeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func (f *fakeTransport) Open() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.openCalls
	f.openCalls++
	if i < len(f.openErrs) && f.openErrs[i] != nil {
		return f.openErrs[i]
	}
	return nil
}

func (f *fakeTransport) ReadLine(timeout time.Duration) (string, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ev := <-f.events:
		if ev.err != nil {
			return "", false, ev.err
		}
		return ev.line, true, nil
	case <-timer.C:
		return "", false, nil
	}
}

func (f *fakeTransport) WriteLine(line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		err := f.writeErr
		f.writeErr = nil
		return err
	}
	f.wrote = append(f.wrote, line)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}
