// Package stomp is a STOMP 1.2 client carried over WebSocket. Each
// WebSocket text message holds one STOMP frame (or a bare EOL heart-beat),
// which is the framing used by browser STOMP clients and the brokers that
// serve them.
package stomp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
)

// Header names used by this client.
const (
	hdrAcceptVersion = "accept-version"
	hdrHost          = "host"
	hdrHeartBeat     = "heart-beat"
	hdrVersion       = "version"
	hdrDestination   = "destination"
	hdrID            = "id"
	hdrAck           = "ack"
	hdrSubscription  = "subscription"
	hdrContentType   = "content-type"
	hdrContentLength = "content-length"
	hdrReceipt       = "receipt"
	hdrReceiptID     = "receipt-id"
	hdrMessage       = "message"
)

// ContentTypeJSON is the content type of every chat payload.
const ContentTypeJSON = "application/json"

// encodeFrame serializes f into the bytes of one WebSocket message.
func encodeFrame(f *frame.Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return nil, fmt.Errorf("stomp: encode %s: %w", f.Command, err)
	}
	return buf.Bytes(), nil
}

// decodeFrames parses every frame in one WebSocket message. Heart-beats
// yield no frames.
func decodeFrames(data []byte) ([]*frame.Frame, error) {
	if len(bytes.Trim(data, "\r\n")) == 0 {
		return nil, nil
	}
	r := frame.NewReader(bytes.NewReader(data))
	var frames []*frame.Frame
	for {
		f, err := r.Read()
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, fmt.Errorf("stomp: decode: %w", err)
		}
		if f != nil {
			frames = append(frames, f)
		}
	}
}

// formatHeartBeat renders the client's heart-beat header: how often it can
// send, then how often it wants to hear from the server.
func formatHeartBeat(send, read time.Duration) string {
	return strconv.FormatInt(send.Milliseconds(), 10) + "," + strconv.FormatInt(read.Milliseconds(), 10)
}

// negotiateHeartBeat combines the client's offer with the server's
// heart-beat header. It returns how often the client must send and how
// often it should expect to receive; zero disables a direction.
func negotiateHeartBeat(send, read time.Duration, server string) (outgoing, incoming time.Duration) {
	parts := strings.Split(server, ",")
	if len(parts) != 2 {
		return 0, 0
	}
	serverSends, err1 := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	serverWants, err2 := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err1 != nil || err2 != nil {
		return 0, 0
	}
	return beatInterval(send, serverWants), beatInterval(read, serverSends)
}

// beatInterval is the larger of the two sides, or zero when either side
// declines.
func beatInterval(local time.Duration, remoteMillis int64) time.Duration {
	if local <= 0 || remoteMillis <= 0 {
		return 0
	}
	remote := time.Duration(remoteMillis) * time.Millisecond
	if remote > local {
		return remote
	}
	return local
}
