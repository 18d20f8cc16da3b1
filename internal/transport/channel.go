package transport

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/strokectl/internal/observability"
	"github.com/danmuck/strokectl/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

var (
	ErrChannelNotOpen  = errors.New("transport: channel not open")
	ErrAlreadyStarted  = errors.New("transport: channel already started")
	ErrChannelClosed   = errors.New("transport: channel closed")
	ErrEndpointMissing = errors.New("transport: endpoint required")
)

type EventKind int

const (
	EventState EventKind = iota
	EventMessage
)

// Event is one observation from a Channel. State events carry the new
// connection state; Terminal marks the final Disconnected after which the
// channel will not dial again. Message events carry one inbound frame.
type Event struct {
	Channel  string
	Kind     EventKind
	State    session.ConnState
	Terminal bool
	Attempt  int
	Err      error
	Payload  []byte
}

// Config names the channel and sets its reliability and heartbeat.
// A nil Heartbeat disables liveness pings.
type Config struct {
	Name        string
	Session     session.Config
	Heartbeat   []byte
	EventBuffer int
}

// Channel is a persistent message channel with reconnect-with-backoff.
// Send never queues: frames sent while the channel is not open are dropped.
type Channel struct {
	cfg    Config
	dialer Dialer
	events chan Event
	rng    *rand.Rand

	mu      sync.Mutex
	conn    Conn
	state   session.ConnState
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(cfg Config, dialer Dialer) *Channel {
	cfg.Session = cfg.Session.WithDefaults()
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "relay"
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	if dialer == nil {
		dialer = WebSocketDialer{Session: cfg.Session}
	}
	return &Channel{
		cfg:    cfg,
		dialer: dialer,
		events: make(chan Event, cfg.EventBuffer),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		state:  session.Disconnected,
		done:   make(chan struct{}),
	}
}

func (c *Channel) Name() string {
	return c.cfg.Name
}

// Events is closed after the channel stops for good.
func (c *Channel) Events() <-chan Event {
	return c.events
}

func (c *Channel) State() session.ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed once the connection goroutine has exited.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Connect validates endpoint and starts dialing in the background. It
// returns before the channel is open.
func (c *Channel) Connect(ctx context.Context, endpoint string) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return ErrEndpointMissing
	}
	if err := c.cfg.Session.ValidateClientTransport(endpoint); err != nil {
		return err
	}

	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(runCtx, endpoint)
	return nil
}

// Send writes payload if the channel is open. Otherwise it logs, counts the
// drop and returns ErrChannelNotOpen.
func (c *Channel) Send(payload []byte) error {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()

	if conn == nil || state != session.Connected {
		observability.RecordTransportMessage(c.cfg.Name, "dropped")
		log.Warn().
			Str("channel", c.cfg.Name).
			Str("state", state.String()).
			Int("bytes", len(payload)).
			Msg("transport.Channel.Send dropped: channel not open")
		return ErrChannelNotOpen
	}
	if err := conn.Write(payload); err != nil {
		observability.RecordTransportMessage(c.cfg.Name, "dropped")
		log.Warn().Str("channel", c.cfg.Name).Err(err).Msg("transport.Channel.Send write failed")
		// the reader sees the close and drives the reconnect policy
		_ = conn.Close()
		return err
	}
	observability.RecordTransportMessage(c.cfg.Name, "sent")
	return nil
}

// Close stops reconnecting, closes any open connection and waits for the
// connection goroutine.
func (c *Channel) Close() error {
	c.mu.Lock()
	cancel := c.cancel
	started := c.started
	conn := c.conn
	c.mu.Unlock()

	if !started {
		return nil
	}
	cancel()
	if conn != nil {
		_ = conn.Close()
	}
	<-c.done
	return nil
}

func (c *Channel) run(ctx context.Context, endpoint string) {
	defer close(c.done)
	defer close(c.events)

	attempts := 0
	for {
		c.transition(ctx, Event{State: session.Connecting, Attempt: attempts})
		conn, err := c.dialer.Dial(ctx, endpoint)
		if err == nil {
			attempts = 0
			c.setConn(conn)
			c.transition(ctx, Event{State: session.Connected})
			log.Info().Str("channel", c.cfg.Name).Str("endpoint", endpoint).Msg("transport.Channel open")
			err = c.serve(ctx, conn)
			c.setConn(nil)
			_ = conn.Close()
		}

		if ctx.Err() != nil {
			c.transition(ctx, Event{State: session.Disconnected, Terminal: true, Err: ErrChannelClosed})
			return
		}

		attempts++
		delay, ok := c.cfg.Session.ReconnectDelay(attempts, c.rng)
		if !ok {
			log.Error().
				Str("channel", c.cfg.Name).
				Int("attempts", attempts-1).
				Err(err).
				Msg("transport.Channel giving up; restart required")
			c.transition(ctx, Event{State: session.Disconnected, Terminal: true, Attempt: attempts - 1, Err: err})
			return
		}
		log.Warn().
			Str("channel", c.cfg.Name).
			Int("attempt", attempts).
			Dur("delay", delay).
			Err(err).
			Msg("transport.Channel closed; reconnect scheduled")
		observability.RecordReconnectAttempt(c.cfg.Name)
		c.transition(ctx, Event{State: session.Disconnected, Attempt: attempts, Err: err})

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.transition(ctx, Event{State: session.Disconnected, Terminal: true, Err: ErrChannelClosed})
			return
		case <-timer.C:
		}
	}
}

// serve pumps inbound frames until the connection fails or ctx ends.
func (c *Channel) serve(ctx context.Context, conn Conn) error {
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	if len(c.cfg.Heartbeat) > 0 {
		go c.heartbeat(conn, stop)
	}

	for {
		payload, err := conn.Read()
		if err != nil {
			return err
		}
		observability.RecordTransportMessage(c.cfg.Name, "received")
		if !c.emit(ctx, Event{Channel: c.cfg.Name, Kind: EventMessage, Payload: payload}) {
			return ctx.Err()
		}
	}
}

func (c *Channel) heartbeat(conn Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.Session.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.Write(c.cfg.Heartbeat); err != nil {
				log.Warn().Str("channel", c.cfg.Name).Err(err).Msg("transport.Channel heartbeat failed")
				_ = conn.Close()
				return
			}
			log.Trace().Str("channel", c.cfg.Name).Msg("transport.Channel heartbeat")
		}
	}
}

func (c *Channel) setConn(conn Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Channel) transition(ctx context.Context, ev Event) {
	c.mu.Lock()
	c.state = ev.State
	c.mu.Unlock()

	ev.Channel = c.cfg.Name
	ev.Kind = EventState
	observability.RecordTransportState(c.cfg.Name, ev.State.String())
	c.emit(ctx, ev)
}

func (c *Channel) emit(ctx context.Context, ev Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-ctx.Done():
		// shutdown events still go out if there is room
		select {
		case c.events <- ev:
			return true
		default:
			return false
		}
	}
}
