package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lyfcircle/circle/internal/messaging"
)

func tailCommand(cmd *Command, args []string) error {
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

	bus, err := a.bus()
	if err != nil {
		return err
	}
	if bus == nil {
		return fmt.Errorf("NATS_URL is not set")
	}

	self := a.ident.UserID()
	printer := newChatPrinter(os.Stdout, self)
	err = bus.Follow(eventID, func(ev messaging.MirrorEvent) {
		switch ev.Kind {
		case messaging.KindHistory:
			printer.HistoryReplaced(ev.Messages)
		default:
			for _, m := range ev.Messages {
				printer.MessageAppended(m)
			}
		}
	})
	if err != nil {
		return err
	}

	fmt.Printf("Following %s on %s, Ctrl-C to stop.\n", messaging.ChatSubject(eventID), a.cfg.NATSURL)
	<-ctx.Done()
	return nil
}
