package seriallink

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errDeviceGone = errors.New("device gone")

func testConfig() Config {
	return Config{
		PortName:       "fake://device",
		QueueCapacity:  16,
		ReadTimeout:    10 * time.Millisecond,
		ReconnectDelay: 5 * time.Millisecond,
	}
}

// startLinkWith starts a Link wired to the given fake and stops it on
// cleanup if the test left it running.
func startLinkWith(t *testing.T, cfg Config, fake *fakeTransport, opts ...Option) *Link {
	t.Helper()
	link := New(cfg, append([]Option{WithTransport(fake.factory)}, opts...)...)
	require.NoError(t, link.Start())
	t.Cleanup(func() {
		if link.Running() {
			_ = link.Stop()
		}
	})
	return link
}

func startTestLink(t *testing.T, cfg Config, opts ...Option) (*Link, *fakeTransport) {
	t.Helper()
	fake := newFakeTransport()
	return startLinkWith(t, cfg, fake, opts...), fake
}

// nextMessage waits for the next inbound message.
func nextMessage(t *testing.T, link *Link, wait time.Duration) Message {
	t.Helper()
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		msg, ok, err := link.ReadMessage()
		require.NoError(t, err)
		if ok {
			return msg
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timeout waiting for message")
	return Message{}
}

func awaitConnected(t *testing.T, link *Link) {
	t.Helper()
	require.Equal(t, KindConnected, nextMessage(t, link, 2*time.Second).Kind)
}

func TestWorker_ConnectEmitsEvent(t *testing.T) {
	link, fake := startTestLink(t, testConfig())

	awaitConnected(t, link)
	require.Eventually(t, func() bool { return link.State() == StateConnected },
		time.Second, 5*time.Millisecond)
	require.Equal(t, int64(1), link.Stats().Connects)
	require.Equal(t, 1, fake.opens())
}

func TestWorker_RetriesUntilOpenSucceeds(t *testing.T) {
	fake := newFakeTransport()
	fake.scriptOpenErrs(errDeviceGone, errDeviceGone)
	link := startLinkWith(t, testConfig(), fake)

	awaitConnected(t, link)
	require.Equal(t, 3, fake.opens())
	// Failed attempts produce no events, only the eventual success does.
	require.Equal(t, int64(1), link.Stats().Connects)
}

func TestWorker_ReadErrorReconnects(t *testing.T) {
	link, fake := startTestLink(t, testConfig())
	awaitConnected(t, link)

	fake.deviceSends("hello")
	msg := nextMessage(t, link, time.Second)
	require.Equal(t, KindData, msg.Kind)
	require.Equal(t, "hello", msg.Text)

	fake.deviceFails(errDeviceGone)
	require.Equal(t, KindDisconnected, nextMessage(t, link, time.Second).Kind)
	require.Equal(t, KindConnected, nextMessage(t, link, time.Second).Kind)

	stats := link.Stats()
	require.Equal(t, int64(2), stats.Connects)
	require.Equal(t, int64(1), stats.Disconnects)
	require.Equal(t, int64(1), stats.LinesReceived)
}

func TestWorker_EventOrderPreserved(t *testing.T) {
	link, fake := startTestLink(t, testConfig())
	fake.deviceSends("a")
	fake.deviceSends("b")
	fake.deviceFails(errDeviceGone)

	var got []Message
	for i := 0; i < 5; i++ {
		got = append(got, nextMessage(t, link, 2*time.Second))
	}
	require.Equal(t, KindConnected, got[0].Kind)
	require.Equal(t, "a", got[1].Text)
	require.Equal(t, "b", got[2].Text)
	require.Equal(t, KindDisconnected, got[3].Kind)
	require.Equal(t, KindConnected, got[4].Kind)
}

func TestWorker_DeviceLineNotMistakenForEvent(t *testing.T) {
	link, fake := startTestLink(t, testConfig())
	awaitConnected(t, link)

	fake.deviceSends("connected")
	msg := nextMessage(t, link, time.Second)
	require.Equal(t, KindData, msg.Kind)
	require.Equal(t, "connected", msg.Text)
}

func TestWorker_SendWritesInOrder(t *testing.T) {
	link, fake := startTestLink(t, testConfig())
	awaitConnected(t, link)

	require.NoError(t, link.Send("a"))
	require.NoError(t, link.Send("b"))
	require.NoError(t, link.Send("c"))
	require.Eventually(t, func() bool { return len(fake.sent()) == 3 },
		time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"a", "b", "c"}, fake.sent())
	require.Equal(t, int64(3), link.Stats().LinesSent)
}

func TestWorker_SendBeforeConnectFlushedAfter(t *testing.T) {
	fake := newFakeTransport()
	fake.scriptOpenErrs(errDeviceGone)
	link := startLinkWith(t, testConfig(), fake)

	// Queued while the device is still unreachable.
	require.NoError(t, link.Send("early"))
	awaitConnected(t, link)

	require.Eventually(t, func() bool { return len(fake.sent()) == 1 },
		time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"early"}, fake.sent())
}

func TestWorker_WriteFailureCostsConnectionAndLine(t *testing.T) {
	link, fake := startTestLink(t, testConfig())
	awaitConnected(t, link)

	fake.failNextWrite(errDeviceGone)
	require.NoError(t, link.Send("lost"))

	require.Equal(t, KindDisconnected, nextMessage(t, link, time.Second).Kind)
	require.Equal(t, KindConnected, nextMessage(t, link, time.Second).Kind)
	// The failed line is gone, not retried after reconnect.
	require.Empty(t, fake.sent())
	require.Equal(t, int64(1), link.Stats().WriteErrors)
}

func TestWorker_OverflowCountsDrops(t *testing.T) {
	cfg := testConfig()
	cfg.QueueCapacity = 1
	link, fake := startTestLink(t, cfg)

	fake.deviceSends("one")
	fake.deviceSends("two")
	fake.deviceSends("three")

	// Connected event plus two lines were displaced on the way through
	// the one-slot queue.
	require.Eventually(t, func() bool { return link.Stats().LinesDropped == 3 },
		time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		msg, ok, err := link.ReadMessage()
		return err == nil && ok && msg.Kind == KindData && msg.Text == "three"
	}, time.Second, 5*time.Millisecond)
}

func TestWorker_StopsPromptlyDuringRetryWait(t *testing.T) {
	cfg := testConfig()
	cfg.ReconnectDelay = 500 * time.Millisecond
	fake := newFakeTransport()
	fake.scriptOpenErrs(errDeviceGone)
	link := startLinkWith(t, cfg, fake)

	// Let the worker fail its open and enter the retry pause.
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	require.NoError(t, link.Stop())
	require.Less(t, time.Since(start), 300*time.Millisecond)
	require.False(t, link.Running())
}

func TestWorker_StopClosesTransport(t *testing.T) {
	link, fake := startTestLink(t, testConfig())
	awaitConnected(t, link)

	require.NoError(t, link.Stop())
	require.False(t, link.Running())
	require.GreaterOrEqual(t, fake.closeCalls(), 1)
	require.Equal(t, StateDisconnected, link.State())
}

func TestWorker_TeardownSendFlushedOnStop(t *testing.T) {
	link, fake := startTestLink(t, testConfig())
	awaitConnected(t, link)

	link.SetTeardown(func() error { return link.Send("BYE") })
	require.NoError(t, link.Stop())
	require.Contains(t, fake.sent(), "BYE")
}

func TestWorker_TeardownFailureDoesNotAbortStop(t *testing.T) {
	link, _ := startTestLink(t, testConfig())
	awaitConnected(t, link)

	link.SetTeardown(func() error { return errors.New("teardown boom") })
	require.NoError(t, link.Stop())
	require.False(t, link.Running())
}

func TestWorker_TeardownPanicContained(t *testing.T) {
	link, _ := startTestLink(t, testConfig())
	awaitConnected(t, link)

	link.SetTeardown(func() error { panic("teardown boom") })
	require.NoError(t, link.Stop())
	require.False(t, link.Running())
}

func TestNewRetryBackoff(t *testing.T) {
	// Equal delays give a constant schedule.
	cfg := testConfig().withDefaults()
	b := newRetryBackoff(cfg)
	require.Equal(t, cfg.ReconnectDelay, b.NextBackOff())
	require.Equal(t, cfg.ReconnectDelay, b.NextBackOff())

	// Room above the initial delay enables growth up to the cap, with
	// jitter around each step.
	cfg.ReconnectDelay = 10 * time.Millisecond
	cfg.MaxReconnectDelay = 80 * time.Millisecond
	b = newRetryBackoff(cfg)
	for i := 0; i < 10; i++ {
		d := b.NextBackOff()
		require.Greater(t, d, time.Duration(0))
		require.Less(t, d, 200*time.Millisecond)
	}
	b.Reset()
	require.Less(t, b.NextBackOff(), 20*time.Millisecond)
}
