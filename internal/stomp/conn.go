package stomp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrClosed is returned by operations on a closed connection.
	ErrClosed = errors.New("stomp: connection closed")
	// ErrNotConnected is returned when no broker connection is established.
	ErrNotConnected = errors.New("stomp: not connected")
	// ErrHeartBeatTimeout ends a connection on which the broker went silent
	// for longer than the negotiated heart-beat allows.
	ErrHeartBeatTimeout = errors.New("stomp: broker heart-beat timed out")
)

// readBeatTolerance scales the negotiated incoming heart-beat interval into
// the read deadline.
const readBeatTolerance = 2

// ServerError is an ERROR frame sent by the broker.
type ServerError struct {
	Message string
	Body    []byte
}

func (e *ServerError) Error() string {
	if len(e.Body) == 0 {
		return "stomp: server error: " + e.Message
	}
	return fmt.Sprintf("stomp: server error: %s: %s", e.Message, e.Body)
}

// DialOptions tunes the STOMP handshake.
type DialOptions struct {
	// Host is sent in the CONNECT host header. Defaults to the URL host.
	Host string
	// HeartBeat is how often the client offers to send heart-beats and
	// asks to receive them. Zero disables both directions.
	HeartBeat time.Duration
	// ConnectTimeout bounds the WebSocket upgrade plus CONNECT/CONNECTED.
	ConnectTimeout time.Duration
	// OnError receives ERROR frames that arrive after the handshake.
	OnError func(*ServerError)
	Logger  zerolog.Logger
}

// Conn is one STOMP session over one WebSocket connection. Frames are read
// on a single goroutine; writes are serialized by a mutex.
type Conn struct {
	nc  net.Conn
	rw  io.ReadWriter
	log zerolog.Logger

	writeMu sync.Mutex
	subs    *dispatcher
	onError func(*ServerError)

	version  string
	sendBeat time.Duration
	readBeat time.Duration

	receiptMu sync.Mutex
	receipts  map[string]chan struct{}

	// closing is set once DISCONNECT is on its way; the broker closing the
	// socket after that is the expected end of the session.
	closing   atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

// bufferedConn reads through the handshake reader so bytes the server sent
// right after the upgrade are not lost.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (b bufferedConn) Read(p []byte) (int, error) { return b.r.Read(p) }

// Dial opens a WebSocket to rawURL and performs the STOMP CONNECT handshake.
func Dial(ctx context.Context, rawURL string, opts DialOptions) (*Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("stomp: parse url: %w", err)
	}
	host := opts.Host
	if host == "" {
		host = u.Hostname()
	}
	if opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}

	dialer := ws.Dialer{Protocols: []string{"v12.stomp", "v11.stomp"}}
	nc, br, _, err := dialer.Dial(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("stomp: dial: %w", err)
	}

	c := &Conn{
		nc:       nc,
		rw:       nc,
		log:      opts.Logger,
		subs:     newDispatcher(),
		onError:  opts.OnError,
		receipts: make(map[string]chan struct{}),
		done:     make(chan struct{}),
	}
	if br != nil {
		c.rw = bufferedConn{Conn: nc, r: br}
	}

	if err := c.handshake(ctx, host, opts.HeartBeat); err != nil {
		nc.Close()
		return nil, err
	}

	go c.readLoop()
	if c.sendBeat > 0 {
		go c.heartbeatLoop(c.sendBeat)
	}
	return c, nil
}

func (c *Conn) handshake(ctx context.Context, host string, heartBeat time.Duration) error {
	connect := frame.New(frame.CONNECT,
		hdrAcceptVersion, "1.2,1.1",
		hdrHost, host,
		hdrHeartBeat, formatHeartBeat(heartBeat, heartBeat),
	)
	if err := c.writeFrame(connect); err != nil {
		return err
	}

	if deadline, ok := ctx.Deadline(); ok {
		c.nc.SetReadDeadline(deadline)
		defer c.nc.SetReadDeadline(time.Time{})
	}

	for {
		data, op, err := wsutil.ReadServerData(c.rw)
		if err != nil {
			return fmt.Errorf("stomp: await CONNECTED: %w", err)
		}
		if op != ws.OpText && op != ws.OpBinary {
			continue
		}
		frames, err := decodeFrames(data)
		if err != nil {
			return err
		}
		for _, f := range frames {
			switch f.Command {
			case frame.CONNECTED:
				c.version = f.Header.Get(hdrVersion)
				c.sendBeat, c.readBeat = negotiateHeartBeat(heartBeat, heartBeat, f.Header.Get(hdrHeartBeat))
				c.log.Debug().
					Str("version", c.version).
					Dur("send_beat", c.sendBeat).
					Dur("read_beat", c.readBeat).
					Msg("stomp session established")
				return nil
			case frame.ERROR:
				return &ServerError{Message: f.Header.Get(hdrMessage), Body: f.Body}
			default:
				c.log.Debug().Str("command", f.Command).Msg("ignoring frame before CONNECTED")
			}
		}
	}
}

// Version returns the protocol version the broker agreed to.
func (c *Conn) Version() string { return c.version }

// Done is closed when the connection ends.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err returns why the connection ended, or nil while it is open or after a
// clean close.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Subscribe registers h for dest and returns the subscription id.
func (c *Conn) Subscribe(dest string, h Handler) (string, error) {
	id := "sub-" + uuid.NewString()
	c.subs.register(id, h)
	f := frame.New(frame.SUBSCRIBE,
		hdrID, id,
		hdrDestination, dest,
		hdrAck, "auto",
	)
	if err := c.writeFrame(f); err != nil {
		c.subs.unregister(id)
		return "", err
	}
	return id, nil
}

// Unsubscribe cancels a subscription. Messages the broker already sent for
// it are dropped.
func (c *Conn) Unsubscribe(id string) error {
	c.subs.unregister(id)
	return c.writeFrame(frame.New(frame.UNSUBSCRIBE, hdrID, id))
}

// Send publishes body to dest with the given content type.
func (c *Conn) Send(dest, contentType string, body []byte) error {
	f := frame.New(frame.SEND,
		hdrDestination, dest,
		hdrContentType, contentType,
		hdrContentLength, fmt.Sprint(len(body)),
	)
	f.Body = body
	return c.writeFrame(f)
}

// Disconnect sends DISCONNECT, waits for the broker's receipt until ctx
// ends, then closes the connection.
func (c *Conn) Disconnect(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	default:
	}

	id := uuid.NewString()
	ack := make(chan struct{})
	c.receiptMu.Lock()
	c.receipts[id] = ack
	c.receiptMu.Unlock()

	c.closing.Store(true)
	err := c.writeFrame(frame.New(frame.DISCONNECT, hdrReceipt, id))
	if err == nil {
		select {
		case <-ack:
		case <-c.done:
		case <-ctx.Done():
			c.log.Debug().Msg("no DISCONNECT receipt before deadline")
		}
	}
	c.Close()
	return err
}

// Close tears the connection down without the DISCONNECT exchange.
func (c *Conn) Close() error {
	c.shutdown(nil)
	return nil
}

func (c *Conn) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		c.err = err
		c.errMu.Unlock()
		close(c.done)
		c.nc.Close()
	})
}

func (c *Conn) writeFrame(f *frame.Frame) error {
	data, err := encodeFrame(f)
	if err != nil {
		return err
	}
	return c.write(data)
}

func (c *Conn) write(data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := wsutil.WriteClientMessage(c.nc, ws.OpText, data); err != nil {
		return fmt.Errorf("stomp: write: %w", err)
	}
	return nil
}

// readLoop reads WebSocket messages until the connection fails or is closed,
// dispatching each decoded frame in order.
func (c *Conn) readLoop() {
	for {
		if c.readBeat > 0 {
			c.nc.SetReadDeadline(time.Now().Add(readBeatTolerance * c.readBeat))
		}
		data, op, err := wsutil.ReadServerData(c.rw)
		if err != nil {
			select {
			case <-c.done:
			default:
				c.shutdown(c.readError(err))
			}
			return
		}
		if op != ws.OpText && op != ws.OpBinary {
			continue
		}

		frames, err := decodeFrames(data)
		if err != nil {
			c.log.Warn().Err(err).Msg("dropping undecodable message")
			continue
		}
		for _, f := range frames {
			c.handleFrame(f)
		}
	}
}

// readError classifies why the read loop stopped.
func (c *Conn) readError(err error) error {
	if c.closing.Load() {
		return nil
	}
	var ne net.Error
	if errors.Is(err, os.ErrDeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return ErrHeartBeatTimeout
	}
	return fmt.Errorf("stomp: read: %w", err)
}

func (c *Conn) handleFrame(f *frame.Frame) {
	switch f.Command {
	case frame.MESSAGE:
		if !c.subs.dispatch(f) {
			c.log.Debug().
				Str("subscription", f.Header.Get(hdrSubscription)).
				Msg("message for unknown subscription")
		}
	case frame.RECEIPT:
		id := f.Header.Get(hdrReceiptID)
		c.receiptMu.Lock()
		ack, ok := c.receipts[id]
		delete(c.receipts, id)
		c.receiptMu.Unlock()
		if ok {
			close(ack)
		}
	case frame.ERROR:
		serr := &ServerError{Message: f.Header.Get(hdrMessage), Body: f.Body}
		c.log.Warn().Str("message", serr.Message).Msg("broker error")
		if c.onError != nil {
			c.onError(serr)
		}
	default:
		c.log.Debug().Str("command", f.Command).Msg("ignoring frame")
	}
}
