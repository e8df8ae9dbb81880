package stomp

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// fakeBroker is a minimal STOMP-over-WebSocket broker. It echoes every SEND
// to subscribers of the same destination on the same connection.
type fakeBroker struct {
	srv *httptest.Server

	// rejectConnect makes the broker answer CONNECT with ERROR.
	rejectConnect bool
	// dropAfterConnect closes the first N connections right after CONNECTED.
	dropAfterConnect int
	// heartBeat is the CONNECTED heart-beat header; the broker never
	// actually sends beats. Defaults to "0,0".
	heartBeat string

	mu       sync.Mutex
	connects int
	sent     []*frame.Frame
	unsubs   []string
	conns    []net.Conn
}

func newFakeBroker(t *testing.T) *fakeBroker {
	t.Helper()
	b := &fakeBroker{}
	b.srv = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.close)
	return b
}

func (b *fakeBroker) url() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http") + "/ws"
}

func (b *fakeBroker) close() {
	b.mu.Lock()
	for _, c := range b.conns {
		c.Close()
	}
	b.mu.Unlock()
	b.srv.Close()
}

func (b *fakeBroker) connectCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connects
}

func (b *fakeBroker) sentFrames() []*frame.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*frame.Frame(nil), b.sent...)
}

func (b *fakeBroker) unsubscribed() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.unsubs...)
}

func (b *fakeBroker) serve(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		return
	}
	b.mu.Lock()
	b.conns = append(b.conns, conn)
	b.mu.Unlock()
	defer conn.Close()

	subs := make(map[string]string) // destination -> subscription id
	for {
		data, _, err := wsutil.ReadClientData(conn)
		if err != nil {
			return
		}
		frames, err := decodeFrames(data)
		if err != nil {
			return
		}
		for _, f := range frames {
			if !b.handle(conn, subs, f) {
				return
			}
		}
	}
}

func (b *fakeBroker) handle(conn net.Conn, subs map[string]string, f *frame.Frame) bool {
	switch f.Command {
	case frame.CONNECT:
		if b.rejectConnect {
			reply(conn, frame.New(frame.ERROR, hdrMessage, "access denied"))
			return false
		}
		b.mu.Lock()
		b.connects++
		drop := b.connects <= b.dropAfterConnect
		b.mu.Unlock()
		hb := b.heartBeat
		if hb == "" {
			hb = "0,0"
		}
		reply(conn, frame.New(frame.CONNECTED, hdrVersion, "1.2", hdrHeartBeat, hb))
		return !drop
	case frame.SUBSCRIBE:
		subs[f.Header.Get(hdrDestination)] = f.Header.Get(hdrID)
	case frame.UNSUBSCRIBE:
		id := f.Header.Get(hdrID)
		for dest, sub := range subs {
			if sub == id {
				delete(subs, dest)
			}
		}
		b.mu.Lock()
		b.unsubs = append(b.unsubs, id)
		b.mu.Unlock()
	case frame.SEND:
		b.mu.Lock()
		b.sent = append(b.sent, f)
		b.mu.Unlock()
		dest := f.Header.Get(hdrDestination)
		if id, ok := subs[dest]; ok {
			msg := frame.New(frame.MESSAGE,
				hdrDestination, dest,
				hdrSubscription, id,
				hdrContentType, f.Header.Get(hdrContentType),
			)
			msg.Body = f.Body
			reply(conn, msg)
		}
	case frame.DISCONNECT:
		reply(conn, frame.New(frame.RECEIPT, hdrReceiptID, f.Header.Get(hdrReceipt)))
		return false
	}
	return true
}

func reply(conn net.Conn, f *frame.Frame) {
	data, err := encodeFrame(f)
	if err != nil {
		return
	}
	wsutil.WriteServerMessage(conn, ws.OpText, data)
}
