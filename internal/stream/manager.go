package stream

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// ErrClosed is returned when operations are attempted on a closed manager.
var ErrClosed = errors.New("stream: manager is closed")

// DefaultReconnectDelay is the quiet period between tearing a socket
// down and redialing the same endpoint, so the old socket fully
// releases before a new one opens.
const DefaultReconnectDelay = 250 * time.Millisecond

// RetryPolicy configures automatic reconnection after transport
// failures. The zero value disables it: an errored channel stays put
// until Reconnect is called, which matches the dashboard's manual
// "reconnect" affordance.
type RetryPolicy struct {
	AutoRetry    bool
	InitialDelay time.Duration // first backoff step; defaults to 500ms
	MaxDelay     time.Duration // backoff cap; 0 = uncapped
	MaxAttempts  int           // consecutive failures before giving up; 0 = unlimited
}

// ChannelStats is a read-only snapshot of one channel's health.
type ChannelStats struct {
	State           State
	MessageCount    uint64
	SubscriberCount int
	LastError       string
}

// Options configures a Manager.
type Options struct {
	Catalog   *Catalog
	Transport Transport
	// Header is sent with every dial (upstream auth).
	Header http.Header
	// ReconnectDelay overrides DefaultReconnectDelay when positive.
	ReconnectDelay time.Duration
	Retry          RetryPolicy
	Logger         *slog.Logger
}

// subscriber is one registered callback slot. Slots are identified by
// id, so the same function subscribed twice occupies two independent
// slots with independent disposers.
type subscriber struct {
	id uint64
	fn Handler
}

// connection is the lifecycle record for one channel's socket. The
// manager owns it exclusively; at most one exists per channel. Late
// events from a superseded dial or read loop identify themselves by
// pointer and are discarded.
type connection struct {
	channel ChannelID
	state   State
	conn    Conn
	cancel  context.CancelFunc
}

// Manager multiplexes subscriber callbacks onto upstream channel
// connections with subscriber-based ref-counting: a connection exists
// for a channel exactly while the channel has at least one subscriber
// and the manager is enabled.
type Manager struct {
	catalog        *Catalog
	transport      Transport
	header         http.Header
	reconnectDelay time.Duration
	retry          RetryPolicy
	log            *slog.Logger

	mu        sync.Mutex
	closed    bool
	enabled   bool
	conns     map[ChannelID]*connection
	subs      map[ChannelID][]*subscriber
	msgCount  map[ChannelID]uint64
	lastErr   map[ChannelID]string
	timers    map[ChannelID]*time.Timer
	attempts  map[ChannelID]int
	nextSubID uint64
	lastGlob  State
	onStatus  func(State)
	statusCh  chan State
}

// New creates a Manager. The catalog and transport are required; the
// manager starts enabled with no subscribers and no connections.
func New(opts Options) *Manager {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	delay := opts.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	m := &Manager{
		catalog:        opts.Catalog,
		transport:      opts.Transport,
		header:         opts.Header,
		reconnectDelay: delay,
		retry:          opts.Retry,
		log:            log.With("component", "stream"),
		enabled:        true,
		conns:          make(map[ChannelID]*connection),
		subs:           make(map[ChannelID][]*subscriber),
		msgCount:       make(map[ChannelID]uint64),
		lastErr:        make(map[ChannelID]string),
		timers:         make(map[ChannelID]*time.Timer),
		attempts:       make(map[ChannelID]int),
		lastGlob:       StateDisconnected,
		statusCh:       make(chan State, 16),
	}
	go m.statusLoop()
	return m
}

// statusLoop delivers global-status changes to the listener one at a
// time, in the order they happened.
func (m *Manager) statusLoop() {
	for s := range m.statusCh {
		m.mu.Lock()
		fn := m.onStatus
		m.mu.Unlock()
		if fn != nil {
			fn(s)
		}
	}
}

// OnStatusChange registers a listener invoked whenever the global
// status changes. The listener runs on its own goroutine and must not
// be changed after subscribers exist.
func (m *Manager) OnStatusChange(fn func(State)) {
	m.mu.Lock()
	m.onStatus = fn
	m.mu.Unlock()
}

// Subscribe registers fn for messages on ch and returns a disposer.
// It fails synchronously for unknown channels. The first subscriber on
// a channel opens its connection; connection errors surface later via
// Stats and GlobalStatus, never through Subscribe. The disposer is
// idempotent; the second and later invocations are no-ops.
func (m *Manager) Subscribe(ch ChannelID, fn Handler) (func(), error) {
	if fn == nil {
		return nil, errors.New("stream: nil handler")
	}
	if _, err := m.catalog.EndpointFor(ch); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	sub := &subscriber{id: m.nextSubID, fn: fn}
	m.nextSubID++
	m.subs[ch] = append(m.subs[ch], sub)
	if len(m.subs[ch]) == 1 {
		m.ensureConnectedLocked(ch)
	}
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { m.unsubscribe(ch, sub.id) })
	}, nil
}

func (m *Manager) unsubscribe(ch ChannelID, id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.subs[ch]
	for i, s := range list {
		if s.id == id {
			m.subs[ch] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(m.subs[ch]) == 0 {
		delete(m.subs, ch)
		m.disconnectLocked(ch)
		m.notifyStatusLocked()
	}
}

// Reconnect tears down ch's connection and, after the reconnect delay,
// dials again if the channel still has subscribers. It is the only way
// out of the error state.
func (m *Manager) Reconnect(ch ChannelID) error {
	if !Known(ch) {
		return ErrUnknownChannel
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.reconnectLocked(ch)
	return nil
}

// ReconnectAll reconnects every channel that currently has at least one
// subscriber. Idle channels are left untouched.
func (m *Manager) ReconnectAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	for _, ch := range channelOrder {
		if len(m.subs[ch]) > 0 {
			m.reconnectLocked(ch)
		}
	}
}

func (m *Manager) reconnectLocked(ch ChannelID) {
	m.disconnectLocked(ch)
	m.attempts[ch] = 0
	m.notifyStatusLocked()
	if len(m.subs[ch]) == 0 || !m.enabled {
		return
	}
	m.scheduleDialLocked(ch, m.reconnectDelay)
}

// scheduleDialLocked arms a timer that redials ch after delay, unless
// the channel lost its subscribers or the gate went off in the interim.
func (m *Manager) scheduleDialLocked(ch ChannelID, delay time.Duration) {
	if t := m.timers[ch]; t != nil {
		t.Stop()
	}
	m.timers[ch] = time.AfterFunc(delay, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.timers, ch)
		if m.closed || !m.enabled || len(m.subs[ch]) == 0 {
			return
		}
		m.ensureConnectedLocked(ch)
	})
}

// SetEnabled pauses or resumes the whole subsystem. Disabling closes
// every connection but preserves subscriber lists; enabling redials
// only channels that still have subscribers.
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.enabled == enabled {
		return
	}
	m.enabled = enabled
	if !enabled {
		for _, ch := range channelOrder {
			m.disconnectLocked(ch)
		}
		m.log.Info("streaming disabled, all channels closed")
	} else {
		m.log.Info("streaming enabled")
		for _, ch := range channelOrder {
			if len(m.subs[ch]) > 0 {
				m.ensureConnectedLocked(ch)
			}
		}
	}
	m.notifyStatusLocked()
}

// Enabled reports whether the gate is on.
func (m *Manager) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// Stats returns a snapshot of every known channel's state, delivered
// message count, subscriber count, and last transport error. Unknown
// channels are simply absent from the map. Safe to poll.
func (m *Manager) Stats() map[ChannelID]ChannelStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[ChannelID]ChannelStats, len(channelOrder))
	for _, ch := range channelOrder {
		st := StateDisconnected
		if c := m.conns[ch]; c != nil {
			st = c.state
		}
		out[ch] = ChannelStats{
			State:           st,
			MessageCount:    m.msgCount[ch],
			SubscriberCount: len(m.subs[ch]),
			LastError:       m.lastErr[ch],
		}
	}
	return out
}

// GlobalStatus reduces all channel states to one dashboard indicator.
func (m *Manager) GlobalStatus() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.globalStatusLocked()
}

func (m *Manager) globalStatusLocked() State {
	states := make([]State, 0, len(m.conns))
	for _, c := range m.conns {
		states = append(states, c.state)
	}
	return AggregateStatus(states)
}

func (m *Manager) notifyStatusLocked() {
	if m.closed {
		return
	}
	glob := m.globalStatusLocked()
	if glob == m.lastGlob {
		return
	}
	m.lastGlob = glob
	select {
	case m.statusCh <- glob:
	default:
		// Listener hopelessly behind; skip the intermediate state.
	}
}

// Close tears down every connection and timer. Subsequent Subscribe
// and Reconnect calls fail with ErrClosed.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for _, ch := range channelOrder {
		m.disconnectLocked(ch)
	}
	m.subs = make(map[ChannelID][]*subscriber)
	close(m.statusCh)
	m.log.Info("stream manager closed")
}

// ---------------------------------------------------------------------------
// Connection lifecycle
// ---------------------------------------------------------------------------

// ensureConnectedLocked opens a connection for ch unless one is already
// connected or connecting. Idempotent: racing "first" subscribers and
// repeated gate toggles never double-connect a channel. Refuses to dial
// while the gate is off.
func (m *Manager) ensureConnectedLocked(ch ChannelID) {
	if !m.enabled {
		m.log.Debug("not connecting while disabled", "channel", ch)
		return
	}
	if c := m.conns[ch]; c != nil {
		if c.state == StateConnected || c.state == StateConnecting {
			m.log.Debug("ensure connected is a no-op", "channel", ch, "state", c.state.String())
			return
		}
		// Errored record: replace it with a fresh dial.
		m.disconnectLocked(ch)
	}

	endpoint, err := m.catalog.EndpointFor(ch)
	if err != nil {
		// Unreachable for catalog channels; fail loudly if it ever is.
		m.log.Error("no endpoint for channel", "channel", ch, "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &connection{channel: ch, state: StateConnecting, cancel: cancel}
	m.conns[ch] = c
	m.log.Info("channel connecting", "channel", ch, "endpoint", endpoint)
	m.notifyStatusLocked()

	go m.dial(ctx, c, endpoint)
}

// dial runs off the manager lock. Its outcome only applies if c is
// still the channel's current connection record.
func (m *Manager) dial(ctx context.Context, c *connection, endpoint string) {
	conn, err := m.transport.Dial(ctx, endpoint, m.header)

	m.mu.Lock()
	if m.conns[c.channel] != c {
		// Superseded by a disconnect or reconnect while dialing.
		m.mu.Unlock()
		if err == nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		c.state = StateError
		m.lastErr[c.channel] = err.Error()
		m.log.Warn("channel connect failed", "channel", c.channel, "error", err)
		m.scheduleRetryLocked(c.channel)
		m.notifyStatusLocked()
		m.mu.Unlock()
		return
	}
	c.state = StateConnected
	c.conn = conn
	m.attempts[c.channel] = 0
	delete(m.lastErr, c.channel)
	m.log.Info("channel connected", "channel", c.channel)
	m.notifyStatusLocked()
	m.mu.Unlock()

	m.readLoop(c, conn)
}

// readLoop pumps frames from one socket until it fails or is closed.
// Per-channel delivery order is the transport's arrival order because
// dispatch happens inline on this goroutine.
func (m *Manager) readLoop(c *connection, conn Conn) {
	for {
		frame, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			m.mu.Lock()
			if m.conns[c.channel] == c {
				c.state = StateError
				c.conn = nil
				m.lastErr[c.channel] = err.Error()
				m.log.Warn("channel read failed", "channel", c.channel, "error", err)
				m.scheduleRetryLocked(c.channel)
				m.notifyStatusLocked()
			}
			m.mu.Unlock()
			return
		}
		m.dispatch(c, frame)
	}
}

// disconnectLocked closes ch's connection, if any, and cancels pending
// redial timers. Subscriber lists are untouched.
func (m *Manager) disconnectLocked(ch ChannelID) {
	if t := m.timers[ch]; t != nil {
		t.Stop()
		delete(m.timers, ch)
	}
	c := m.conns[ch]
	if c == nil {
		return
	}
	delete(m.conns, ch)
	c.cancel()
	if c.conn != nil {
		c.conn.Close()
	}
	m.log.Info("channel disconnected", "channel", ch, "from", c.state.String())
}

// scheduleRetryLocked arms an exponential-backoff redial when the retry
// policy allows it. Without a policy the channel stays errored until an
// explicit Reconnect.
func (m *Manager) scheduleRetryLocked(ch ChannelID) {
	if !m.retry.AutoRetry || m.closed || !m.enabled || len(m.subs[ch]) == 0 {
		return
	}
	attempt := m.attempts[ch]
	if m.retry.MaxAttempts > 0 && attempt >= m.retry.MaxAttempts {
		m.log.Warn("giving up on channel after max retry attempts",
			"channel", ch, "attempts", attempt)
		return
	}
	m.attempts[ch] = attempt + 1

	delay := m.retry.InitialDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	for i := 0; i < attempt; i++ {
		delay *= 2
		if m.retry.MaxDelay > 0 && delay >= m.retry.MaxDelay {
			delay = m.retry.MaxDelay
			break
		}
	}
	m.log.Info("scheduling channel retry", "channel", ch,
		"attempt", attempt+1, "delay", delay)

	if t := m.timers[ch]; t != nil {
		t.Stop()
	}
	m.timers[ch] = time.AfterFunc(delay, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.timers, ch)
		if m.closed || !m.enabled || len(m.subs[ch]) == 0 {
			return
		}
		// Clear the errored record and dial fresh.
		m.disconnectLocked(ch)
		m.ensureConnectedLocked(ch)
	})
}

// ---------------------------------------------------------------------------
// Fan-out
// ---------------------------------------------------------------------------

// dispatch decodes one frame and delivers it to a snapshot of the
// channel's subscribers. A malformed frame is logged and dropped; it
// never tears the connection down. Frames from a socket that has been
// superseded or torn down are discarded.
func (m *Manager) dispatch(c *connection, frame []byte) {
	ch := c.channel
	msg, err := decoders[ch](frame)
	if err != nil {
		m.log.Warn("dropping malformed frame", "channel", ch, "error", err)
		return
	}

	m.mu.Lock()
	if m.conns[ch] != c {
		m.mu.Unlock()
		return
	}
	m.msgCount[ch]++
	snapshot := make([]*subscriber, len(m.subs[ch]))
	copy(snapshot, m.subs[ch])
	m.mu.Unlock()

	// Subscribers added or disposed from inside a callback affect
	// future dispatches only, never this iteration.
	for _, s := range snapshot {
		m.deliver(ch, s, msg)
	}
}

// deliver invokes one subscriber, isolating its panics so the rest of
// the fan-out and the connection survive.
func (m *Manager) deliver(ch ChannelID, s *subscriber, msg any) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("subscriber callback panicked",
				"channel", ch, "subscriber", s.id, "panic", r)
		}
	}()
	s.fn(msg)
}
