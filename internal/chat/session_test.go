package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lyfcircle/circle/internal/identity"
	"github.com/lyfcircle/circle/internal/protocol"
	"github.com/lyfcircle/circle/internal/ratelimit"
	"github.com/lyfcircle/circle/internal/stomp"
)

type publishedFrame struct {
	dest string
	body []byte
}

// fakeTransport records every call. Tests drive connection events by hand.
type fakeTransport struct {
	mu          sync.Mutex
	handlers    stomp.Handlers
	connected   bool
	activated   int
	deactivated int
	subs        map[string]stomp.Handler
	calls       []string
	pubs        []publishedFrame
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{subs: make(map[string]stomp.Handler)}
}

func (f *fakeTransport) SetHandlers(h stomp.Handlers) {
	f.mu.Lock()
	f.handlers = h
	f.mu.Unlock()
}

func (f *fakeTransport) Activate(context.Context) {
	f.mu.Lock()
	f.activated++
	f.calls = append(f.calls, "activate")
	f.mu.Unlock()
}

func (f *fakeTransport) Deactivate(context.Context) error {
	f.mu.Lock()
	f.deactivated++
	f.connected = false
	f.calls = append(f.calls, "deactivate")
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Subscribe(dest string, h stomp.Handler) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return "", stomp.ErrNotConnected
	}
	f.subs[dest] = h
	f.calls = append(f.calls, "subscribe "+dest)
	return "sub-" + dest, nil
}

// Unsubscribe records the call but keeps the handler, as frames already in
// flight can still arrive after UNSUBSCRIBE.
func (f *fakeTransport) Unsubscribe(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return stomp.ErrNotConnected
	}
	f.calls = append(f.calls, "unsubscribe "+id)
	return nil
}

func (f *fakeTransport) Publish(dest string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return stomp.ErrNotConnected
	}
	f.pubs = append(f.pubs, publishedFrame{dest: dest, body: body})
	f.calls = append(f.calls, "publish "+dest)
	return nil
}

// connect simulates a successful (re)connect.
func (f *fakeTransport) connect() {
	f.mu.Lock()
	f.connected = true
	f.subs = make(map[string]stomp.Handler)
	h := f.handlers.OnConnect
	f.mu.Unlock()
	if h != nil {
		h()
	}
}

// drop simulates an unexpected disconnect.
func (f *fakeTransport) drop() {
	f.mu.Lock()
	f.connected = false
	h := f.handlers.OnDisconnect
	f.mu.Unlock()
	if h != nil {
		h(errors.New("connection reset"))
	}
}

func (f *fakeTransport) deliver(t *testing.T, dest string, body string) {
	t.Helper()
	f.mu.Lock()
	h, ok := f.subs[dest]
	f.mu.Unlock()
	if !ok {
		t.Fatalf("no subscription for %s", dest)
	}
	h(stomp.Message{Destination: dest, Body: []byte(body)})
}

func (f *fakeTransport) publishes() []publishedFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishedFrame(nil), f.pubs...)
}

func (f *fakeTransport) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type staticIdentity string

func (s staticIdentity) Require() (string, error) {
	if s == "" {
		return "", identity.ErrNoIdentity
	}
	return string(s), nil
}

type recordingObserver struct {
	appended []protocol.ChatMessage
	replaced [][]protocol.ChatMessage
}

func (r *recordingObserver) MessageAppended(m protocol.ChatMessage) {
	r.appended = append(r.appended, m)
}

func (r *recordingObserver) HistoryReplaced(ms []protocol.ChatMessage) {
	r.replaced = append(r.replaced, ms)
}

func newTestSession(t *testing.T, opts ...Option) (*Session, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	s, err := NewSession("42", staticIdentity("u1"), ft, opts...)
	if err != nil {
		t.Fatalf("NewSession error: %v", err)
	}
	return s, ft
}

func chatJSON(content, sender string) string {
	b, _ := json.Marshal(protocol.ChatMessage{
		Type: protocol.TypeChat, Content: content, SenderID: sender, EventID: "42",
	})
	return string(b)
}

func TestNewSessionRequiresIdentity(t *testing.T) {
	if _, err := NewSession("42", staticIdentity(""), newFakeTransport()); !errors.Is(err, identity.ErrNoIdentity) {
		t.Fatalf("expected ErrNoIdentity, got %v", err)
	}
	if _, err := NewSession("  ", staticIdentity("u1"), newFakeTransport()); err == nil {
		t.Fatal("expected error for blank event id")
	}
}

func TestJoinPublishedOnConnectBeforeSend(t *testing.T) {
	s, ft := newTestSession(t)
	ctx := context.Background()

	if err := s.Activate(ctx); err != nil {
		t.Fatalf("Activate error: %v", err)
	}
	if s.State() != StateConnecting {
		t.Fatalf("expected connecting, got %s", s.State())
	}
	if err := s.Send(ctx, "too early"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected before connect, got %v", err)
	}

	ft.connect()
	if s.State() != StateConnected {
		t.Fatalf("expected connected, got %s", s.State())
	}

	want := []string{
		"activate",
		"subscribe /topic/42",
		"subscribe /queue/history/42",
		"publish /app/chat.addUser/42",
	}
	if got := ft.callLog(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("expected calls %v, got %v", want, got)
	}

	var join protocol.PresenceMsg
	if err := json.Unmarshal(ft.publishes()[0].body, &join); err != nil {
		t.Fatalf("JOIN body: %v", err)
	}
	if join.SenderID != "u1" || join.Type != protocol.TypeJoin {
		t.Errorf("unexpected JOIN %+v", join)
	}

	if err := s.Send(ctx, "  hello  "); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	pubs := ft.publishes()
	if len(pubs) != 2 || pubs[1].dest != "/app/chat.sendMessage/42" {
		t.Fatalf("unexpected publishes %+v", pubs)
	}
	var out protocol.OutgoingChatMsg
	if err := json.Unmarshal(pubs[1].body, &out); err != nil {
		t.Fatalf("CHAT body: %v", err)
	}
	if out.Content != "hello" || out.SenderID != "u1" || out.EventID != "42" || out.Type != protocol.TypeChat {
		t.Errorf("unexpected CHAT %+v", out)
	}
	if len(s.Messages()) != 0 {
		t.Error("send must not echo into the log")
	}
}

func TestSendRejectsInvalidContent(t *testing.T) {
	s, ft := newTestSession(t)
	ctx := context.Background()
	s.Activate(ctx)
	ft.connect()

	if err := s.Send(ctx, "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
	if err := s.Send(ctx, strings.Repeat("a", MaxMessageBytes+1)); err == nil {
		t.Error("expected error for oversized message")
	}
	if len(ft.publishes()) != 1 {
		t.Errorf("expected only the JOIN to be published, got %d", len(ft.publishes()))
	}
}

func TestLogKeepsArrivalOrder(t *testing.T) {
	obs := &recordingObserver{}
	s, ft := newTestSession(t, WithObserver(obs))
	s.Activate(context.Background())
	ft.connect()

	for _, c := range []string{"m1", "m3", "m2"} {
		ft.deliver(t, "/topic/42", chatJSON(c, "u"+c))
	}

	got := s.Messages()
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	for i, want := range []string{"m1", "m3", "m2"} {
		if got[i].Content != want {
			t.Errorf("index %d: expected %q, got %q", i, want, got[i].Content)
		}
	}
	if len(obs.appended) != 3 {
		t.Errorf("observer saw %d appends", len(obs.appended))
	}
}

func TestMalformedMessageIsDropped(t *testing.T) {
	s, ft := newTestSession(t)
	s.Activate(context.Background())
	ft.connect()

	ft.deliver(t, "/topic/42", `{"type":"SHOUT"}`)
	ft.deliver(t, "/topic/42", `not json`)
	ft.deliver(t, "/topic/42", chatJSON("ok", "u2"))

	if got := s.Messages(); len(got) != 1 || got[0].Content != "ok" {
		t.Fatalf("expected only the valid message, got %+v", got)
	}
}

func TestHistoryReplacesLogOncePerConnection(t *testing.T) {
	obs := &recordingObserver{}
	s, ft := newTestSession(t, WithObserver(obs))
	s.Activate(context.Background())
	ft.connect()

	ft.deliver(t, "/topic/42", chatJSON("early", "u9"))
	history := "[" + chatJSON("a", "u2") + "," + chatJSON("b", "u3") + "," + chatJSON("c", "u2") + "]"
	ft.deliver(t, "/queue/history/42", history)

	got := s.Messages()
	if len(got) != 3 || got[0].Content != "a" || got[1].Content != "b" || got[2].Content != "c" {
		t.Fatalf("expected [a b c], got %+v", got)
	}

	ft.deliver(t, "/queue/history/42", "["+chatJSON("x", "u4")+"]")
	if got := s.Messages(); len(got) != 3 {
		t.Fatalf("second history on the same connection must be ignored, got %+v", got)
	}

	ft.deliver(t, "/topic/42", chatJSON("d", "u3"))
	if got := s.Messages(); len(got) != 4 || got[3].Content != "d" {
		t.Fatalf("expected d appended after history, got %+v", got)
	}
	if len(obs.replaced) != 1 || len(obs.replaced[0]) != 3 {
		t.Errorf("observer saw replacements %v", obs.replaced)
	}
}

func TestReconnectRejoins(t *testing.T) {
	s, ft := newTestSession(t)
	ctx := context.Background()
	s.Activate(ctx)
	ft.connect()

	ft.drop()
	if s.State() != StateConnecting {
		t.Fatalf("expected connecting after drop, got %s", s.State())
	}
	if err := s.Send(ctx, "hello?"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected while reconnecting, got %v", err)
	}

	ft.connect()
	if s.State() != StateConnected {
		t.Fatalf("expected connected after reconnect, got %s", s.State())
	}
	joins := 0
	for _, p := range ft.publishes() {
		if p.dest == "/app/chat.addUser/42" {
			joins++
		}
	}
	if joins != 2 {
		t.Errorf("expected JOIN on each connect, got %d", joins)
	}

	history := "[" + chatJSON("a", "u2") + "]"
	ft.deliver(t, "/queue/history/42", history)
	if got := s.Messages(); len(got) != 1 {
		t.Errorf("history must apply again after reconnect, got %+v", got)
	}
}

func TestDeactivateConnectedPublishesLeave(t *testing.T) {
	s, ft := newTestSession(t)
	ctx := context.Background()
	s.Activate(ctx)
	ft.connect()

	if err := s.Deactivate(ctx); err != nil {
		t.Fatalf("Deactivate error: %v", err)
	}
	calls := ft.callLog()
	n := len(calls)
	if n < 2 || calls[n-2] != "publish /app/chat.addUser/42" || calls[n-1] != "deactivate" {
		t.Fatalf("expected LEAVE then close, got %v", calls)
	}

	var leave protocol.PresenceMsg
	pubs := ft.publishes()
	if err := json.Unmarshal(pubs[len(pubs)-1].body, &leave); err != nil {
		t.Fatalf("LEAVE body: %v", err)
	}
	if leave.Type != protocol.TypeLeave || leave.SenderID != "u1" {
		t.Errorf("unexpected LEAVE %+v", leave)
	}
	if s.State() != StateDisconnected {
		t.Errorf("expected disconnected, got %s", s.State())
	}
}

func TestDeactivateNeverConnected(t *testing.T) {
	s, ft := newTestSession(t)
	ctx := context.Background()
	s.Activate(ctx)

	if err := s.Deactivate(ctx); err != nil {
		t.Fatalf("Deactivate error: %v", err)
	}
	if len(ft.publishes()) != 0 {
		t.Fatalf("expected nothing published, got %+v", ft.publishes())
	}
	if ft.deactivated != 1 {
		t.Errorf("expected transport closed once, got %d", ft.deactivated)
	}

	idle, idleTransport := newTestSession(t)
	if err := idle.Deactivate(ctx); err != nil {
		t.Fatalf("Deactivate on idle session: %v", err)
	}
	if idleTransport.deactivated != 0 || len(idleTransport.publishes()) != 0 {
		t.Error("idle session must not touch the transport")
	}
}

func TestCallbacksAfterDeactivateAreIgnored(t *testing.T) {
	s, ft := newTestSession(t)
	ctx := context.Background()
	s.Activate(ctx)
	ft.connect()
	h := ft.subs["/topic/42"]

	s.Deactivate(ctx)
	h(stomp.Message{Body: []byte(chatJSON("late", "u2"))})
	ft.connect()

	if len(s.Messages()) != 0 {
		t.Errorf("late message reached the log: %+v", s.Messages())
	}
	if s.State() != StateDisconnected {
		t.Errorf("expected disconnected, got %s", s.State())
	}
	if err := s.Activate(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := s.Send(ctx, "hi"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestActivateTwice(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()
	if err := s.Activate(ctx); err != nil {
		t.Fatalf("Activate error: %v", err)
	}
	if err := s.Activate(ctx); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}
}

func TestStompErrorDoesNotChangeState(t *testing.T) {
	s, ft := newTestSession(t)
	s.Activate(context.Background())
	ft.connect()

	ft.handlers.OnStompError(&stomp.ServerError{Message: "bad destination"})
	if s.State() != StateConnected {
		t.Errorf("expected connected, got %s", s.State())
	}
}

func TestSendRateLimited(t *testing.T) {
	limiter := ratelimit.NewLocalLimiter(ratelimit.Rule{Limit: 2, Window: time.Hour})
	s, ft := newTestSession(t, WithSendLimiter(limiter))
	ctx := context.Background()
	s.Activate(ctx)
	ft.connect()

	for i := 0; i < 2; i++ {
		if err := s.Send(ctx, "hi"); err != nil {
			t.Fatalf("send %d: %v", i+1, err)
		}
	}
	if err := s.Send(ctx, "hi"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if got := len(ft.publishes()); got != 3 {
		t.Errorf("expected JOIN plus 2 lines, got %d publishes", got)
	}
}

func TestRejectedSendsDoNotUseQuota(t *testing.T) {
	limiter := ratelimit.NewLocalLimiter(ratelimit.Rule{Limit: 1, Window: time.Hour})
	s, ft := newTestSession(t, WithSendLimiter(limiter))
	ctx := context.Background()
	s.Activate(ctx)

	for i := 0; i < 5; i++ {
		if err := s.Send(ctx, "early"); !errors.Is(err, ErrNotConnected) {
			t.Fatalf("send %d while connecting: expected ErrNotConnected, got %v", i+1, err)
		}
	}

	ft.connect()
	if err := s.Send(ctx, "first"); err != nil {
		t.Fatalf("first connected send: %v", err)
	}
	if err := s.Send(ctx, "second"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestHistorySubscriptionDroppedOnceApplied(t *testing.T) {
	s, ft := newTestSession(t)
	ctx := context.Background()
	s.Activate(ctx)
	ft.connect()

	ft.deliver(t, "/queue/history/42", "["+chatJSON("a", "u2")+"]")
	ft.deliver(t, "/queue/history/42", "["+chatJSON("b", "u2")+"]")

	var unsubs []string
	for _, c := range ft.callLog() {
		if strings.HasPrefix(c, "unsubscribe ") {
			unsubs = append(unsubs, c)
		}
	}
	if len(unsubs) != 1 || unsubs[0] != "unsubscribe sub-/queue/history/42" {
		t.Fatalf("expected one history unsubscribe, got %v", unsubs)
	}
	if got := s.Messages(); len(got) != 1 || got[0].Content != "a" {
		t.Errorf("expected log [a], got %+v", got)
	}
}
