// Package chat manages one member's presence in an event chat room: it
// joins the room when the broker connection comes up, keeps the ordered
// message log, publishes chat lines and announces departure.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/looplab/fsm"
	"github.com/rs/zerolog"

	"github.com/lyfcircle/circle/internal/metrics"
	"github.com/lyfcircle/circle/internal/protocol"
	"github.com/lyfcircle/circle/internal/ratelimit"
	"github.com/lyfcircle/circle/internal/stomp"
)

var (
	// ErrNotConnected is returned by Send while the broker session is down.
	ErrNotConnected = errors.New("chat: not connected")
	// ErrClosed is returned once the session has been deactivated.
	ErrClosed = errors.New("chat: session closed")
	// ErrAlreadyActive is returned by a second Activate.
	ErrAlreadyActive = errors.New("chat: session already active")
	// ErrRateLimited is returned by Send when the sender is over its limit.
	ErrRateLimited = errors.New("chat: sending too fast")
)

// State is the connection state of a session.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

const (
	eventActivate   = "activate"
	eventConnect    = "connect"
	eventDrop       = "drop"
	eventDeactivate = "deactivate"
)

// Transport is the broker connection a session runs over. *stomp.Client
// implements it.
type Transport interface {
	SetHandlers(h stomp.Handlers)
	Activate(ctx context.Context)
	Deactivate(ctx context.Context) error
	Connected() bool
	Subscribe(dest string, h stomp.Handler) (string, error)
	Unsubscribe(id string) error
	Publish(dest string, body []byte) error
}

// Identity supplies the sender identifier.
type Identity interface {
	Require() (string, error)
}

// Observer is told about every change to the message log. Calls are made
// with the session locked, in log order; observers must not call back into
// the session.
type Observer interface {
	MessageAppended(msg protocol.ChatMessage)
	HistoryReplaced(msgs []protocol.ChatMessage)
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithSendLimiter throttles Send per sender.
func WithSendLimiter(l ratelimit.Limiter) Option {
	return func(s *Session) { s.limiter = l }
}

// WithObserver registers an observer.
func WithObserver(o Observer) Option {
	return func(s *Session) { s.observers = append(s.observers, o) }
}

// Session is the lifecycle of one chat view: Activate once, Send while
// connected, Deactivate once. It is safe for concurrent use.
type Session struct {
	eventID string
	userID  string

	transport Transport
	log       zerolog.Logger
	observers []Observer
	limiter   ratelimit.Limiter

	mu             sync.Mutex
	machine        *fsm.FSM
	messages       *Log
	historyApplied bool
	historySub     string
	closed         bool
}

// NewSession creates a disconnected session for eventID, sending as the
// registered user.
func NewSession(eventID string, id Identity, transport Transport, opts ...Option) (*Session, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, fmt.Errorf("chat: event id is required")
	}
	userID, err := id.Require()
	if err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}

	s := &Session{
		eventID:   eventID,
		userID:    userID,
		transport: transport,
		log:       zerolog.Nop(),
		messages:  NewLog(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.machine = fsm.NewFSM(
		string(StateDisconnected),
		fsm.Events{
			{Name: eventActivate, Src: []string{string(StateDisconnected)}, Dst: string(StateConnecting)},
			{Name: eventConnect, Src: []string{string(StateConnecting)}, Dst: string(StateConnected)},
			{Name: eventDrop, Src: []string{string(StateConnected)}, Dst: string(StateConnecting)},
			{Name: eventDeactivate, Src: []string{string(StateConnecting), string(StateConnected)}, Dst: string(StateDisconnected)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				metrics.SetChatState(e.Dst)
				s.log.Debug().Str("from", e.Src).Str("to", e.Dst).Str("event", e.Event).Msg("chat state changed")
			},
		},
	)
	metrics.SetChatState(string(StateDisconnected))
	return s, nil
}

// EventID returns the room this session belongs to.
func (s *Session) EventID() string { return s.eventID }

// UserID returns the sender identity.
func (s *Session) UserID() string { return s.userID }

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State(s.machine.Current())
}

// Messages returns a copy of the message log in arrival order.
func (s *Session) Messages() []protocol.ChatMessage {
	return s.messages.Snapshot()
}

// Activate starts connecting to the broker. The join sequence runs every
// time the transport (re)connects.
func (s *Session) Activate(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if err := s.machine.Event(ctx, eventActivate); err != nil {
		s.mu.Unlock()
		return ErrAlreadyActive
	}
	s.mu.Unlock()

	s.transport.SetHandlers(stomp.Handlers{
		OnConnect:    s.onConnect,
		OnDisconnect: s.onDisconnect,
		OnStompError: s.onStompError,
	})
	s.log.Info().Str("event_id", s.eventID).Str("user_id", s.userID).Msg("joining chat")
	s.transport.Activate(ctx)
	return nil
}

// Send publishes a chat line. It only takes effect while connected; the
// line shows up in the log once the broker broadcasts it back.
func (s *Session) Send(ctx context.Context, content string) error {
	text, err := NormalizeMessage(content)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if !s.machine.Is(string(StateConnected)) || !s.transport.Connected() {
		return ErrNotConnected
	}
	// Only lines that are about to be published count against the limit.
	if s.limiter != nil {
		if ok, err := s.limiter.Allow(ctx, s.userID); !ok {
			metrics.ChatMessagesTotal.WithLabelValues("throttled").Inc()
			return ErrRateLimited
		} else if err != nil {
			s.log.Debug().Err(err).Msg("rate limiter unavailable")
		}
	}

	body, err := protocol.NewChat(s.userID, s.eventID, text)
	if err != nil {
		return err
	}
	if err := s.transport.Publish(protocol.SendMessageDest(s.eventID), body); err != nil {
		return fmt.Errorf("chat: send: %w", err)
	}
	metrics.ChatMessagesTotal.WithLabelValues("sent").Inc()
	return nil
}

// Deactivate leaves the room and closes the transport. A LEAVE is published
// only when the session is connected. Callbacks arriving afterwards are
// ignored.
func (s *Session) Deactivate(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	active := !s.machine.Is(string(StateDisconnected))

	if s.machine.Is(string(StateConnected)) && s.transport.Connected() {
		if err := s.publishPresence(protocol.NewLeave); err != nil {
			s.log.Warn().Err(err).Msg("failed to announce leave")
		}
	}
	if active {
		if err := s.machine.Event(ctx, eventDeactivate); err != nil {
			s.log.Debug().Err(err).Msg("deactivate transition")
		}
	}
	s.mu.Unlock()

	if !active {
		return nil
	}
	s.log.Info().Str("event_id", s.eventID).Msg("leaving chat")
	if err := s.transport.Deactivate(ctx); err != nil {
		return fmt.Errorf("chat: close transport: %w", err)
	}
	return nil
}

// onConnect subscribes to the room and announces the member. The session
// only reports connected once JOIN has been published, so no chat line can
// precede it.
func (s *Session) onConnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.historyApplied = false
	s.historySub = ""
	if _, err := s.transport.Subscribe(protocol.TopicDest(s.eventID), s.onTopic); err != nil {
		s.log.Warn().Err(err).Msg("subscribe to topic failed")
	}
	if id, err := s.transport.Subscribe(protocol.HistoryDest(s.eventID), s.onHistory); err != nil {
		s.log.Warn().Err(err).Msg("subscribe to history failed")
	} else {
		s.historySub = id
	}
	if err := s.publishPresence(protocol.NewJoin); err != nil {
		s.log.Warn().Err(err).Msg("failed to announce join")
	}

	if err := s.machine.Event(context.Background(), eventConnect); err != nil {
		s.log.Debug().Err(err).Msg("connect transition")
	}
}

func (s *Session) onDisconnect(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.log.Warn().Err(err).Msg("chat connection lost, reconnecting")
	if err := s.machine.Event(context.Background(), eventDrop); err != nil {
		s.log.Debug().Err(err).Msg("drop transition")
	}
}

func (s *Session) onStompError(err *stomp.ServerError) {
	s.log.Warn().Str("message", err.Message).Bytes("body", err.Body).Msg("broker reported an error")
}

func (s *Session) onTopic(m stomp.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	msg, err := protocol.ParseMessage(m.Body)
	if err != nil {
		metrics.ChatMessagesTotal.WithLabelValues("dropped").Inc()
		s.log.Warn().Err(err).Msg("dropping malformed chat message")
		return
	}
	s.messages.Append(msg)
	metrics.ChatMessagesTotal.WithLabelValues("received").Inc()
	for _, o := range s.observers {
		o.MessageAppended(msg)
	}
}

func (s *Session) onHistory(m stomp.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.historyApplied {
		s.log.Debug().Msg("ignoring repeated history payload")
		return
	}

	history, err := protocol.ParseHistory(m.Body)
	if err != nil {
		s.log.Warn().Err(err).Msg("dropping malformed history")
		return
	}
	s.historyApplied = true
	// History arrives once per connection.
	if s.historySub != "" {
		if err := s.transport.Unsubscribe(s.historySub); err != nil {
			s.log.Debug().Err(err).Msg("unsubscribe from history failed")
		}
		s.historySub = ""
	}
	s.messages.Replace(history)
	metrics.ChatHistoryReplays.Inc()
	for _, o := range s.observers {
		o.HistoryReplaced(s.messages.Snapshot())
	}
}

func (s *Session) publishPresence(build func(senderID string) ([]byte, error)) error {
	body, err := build(s.userID)
	if err != nil {
		return err
	}
	return s.transport.Publish(protocol.AddUserDest(s.eventID), body)
}
