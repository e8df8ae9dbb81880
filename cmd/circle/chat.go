package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/lyfcircle/circle/internal/activity"
	"github.com/lyfcircle/circle/internal/api"
	"github.com/lyfcircle/circle/internal/chat"
	"github.com/lyfcircle/circle/internal/logging"
	"github.com/lyfcircle/circle/internal/messaging"
	"github.com/lyfcircle/circle/internal/protocol"
	"github.com/lyfcircle/circle/internal/stomp"
)

const leaveTimeout = 5 * time.Second

func chatCommand(cmd *Command, args []string) error {
	fs := cmd.NewFlagSet()
	if stop, err := parseFlags(fs, args); stop {
		return err
	}
	if fs.NArg() != 1 {
		cmd.PrintUsage(os.Stderr)
		return fmt.Errorf("expected exactly one event id")
	}
	eventID := fs.Arg(0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	userID, err := a.requireUser()
	if err != nil {
		return err
	}

	listing := activity.Load(ctx, api.NewClient(a.cfg.APIBaseURL, a.cfg.HTTPTimeout, logging.Component(a.log, "api")), logging.Component(a.log, "activity"))
	if act, ok := listing.Find(eventID); ok {
		fmt.Printf("%s %s  %s @ %s\n", act.Emoji, act.Name, act.Date, act.Location)
		if act.Icebreaker != "" {
			fmt.Printf("Icebreaker: %s\n", act.Icebreaker)
		}
	}

	printer := newChatPrinter(os.Stdout, userID)
	opts := []chat.Option{
		chat.WithLogger(logging.Component(a.log, "chat")),
		chat.WithObserver(printer),
		chat.WithSendLimiter(a.sendLimiter()),
	}
	bus, err := a.bus()
	if err != nil {
		a.log.Warn().Err(err).Msg("chat mirror disabled")
	} else if bus != nil {
		opts = append(opts, chat.WithObserver(messaging.NewMirror(eventID, bus, logging.Component(a.log, "mirror"))))
	}

	transport := stomp.NewClient(stomp.ClientConfig{
		URL:            a.cfg.BrokerURL,
		ReconnectDelay: a.cfg.ReconnectDelay,
		HeartBeat:      a.cfg.HeartbeatInterval,
		ConnectTimeout: a.cfg.HTTPTimeout,
	}, logging.Component(a.log, "stomp"))

	session, err := chat.NewSession(eventID, a.ident, transport, opts...)
	if err != nil {
		return err
	}
	if err := session.Activate(ctx); err != nil {
		return err
	}
	fmt.Println("Connecting... type a message and press enter, /quit to leave.")

	runChatInput(ctx, session, os.Stdin, printer)

	leaveCtx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()
	return session.Deactivate(leaveCtx)
}

// runChatInput sends every typed line until /quit, end of input or ctx ends.
func runChatInput(ctx context.Context, s *chat.Session, in io.Reader, p *chatPrinter) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(line)
			switch {
			case line == "":
				continue
			case line == "/quit":
				return
			}
			err := s.Send(ctx, line)
			switch {
			case errors.Is(err, chat.ErrNotConnected):
				p.notice("not connected, message not sent")
			case errors.Is(err, chat.ErrRateLimited):
				p.notice("slow down, message not sent")
			case err != nil:
				p.notice(err.Error())
			}
		}
	}
}

// chatPrinter writes the room's messages to the terminal.
type chatPrinter struct {
	mu   sync.Mutex
	w    io.Writer
	self string
}

func newChatPrinter(w io.Writer, self string) *chatPrinter {
	return &chatPrinter{w: w, self: self}
}

func (p *chatPrinter) MessageAppended(m protocol.ChatMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.print(m)
}

func (p *chatPrinter) HistoryReplaced(msgs []protocol.ChatMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "--- %d earlier messages ---\n", len(msgs))
	for _, m := range msgs {
		p.print(m)
	}
	fmt.Fprintln(p.w, "---")
}

func (p *chatPrinter) notice(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "! %s\n", text)
}

func (p *chatPrinter) print(m protocol.ChatMessage) {
	fmt.Fprintln(p.w, formatChatLine(m, p.self))
}

func formatChatLine(m protocol.ChatMessage, self string) string {
	who := m.SenderID
	if who == self {
		who = "you"
	}
	ts := ""
	if m.Timestamp != "" {
		ts = shortTime(m.Timestamp) + " "
	}
	switch m.Type {
	case protocol.TypeJoin:
		return fmt.Sprintf("%s* %s joined", ts, who)
	case protocol.TypeLeave:
		return fmt.Sprintf("%s* %s left", ts, who)
	default:
		return fmt.Sprintf("%s<%s> %s", ts, who, m.Content)
	}
}

// shortTime renders RFC 3339 timestamps as HH:MM and leaves anything else
// untouched.
func shortTime(ts string) string {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.Local().Format("15:04")
		}
	}
	return ts
}
