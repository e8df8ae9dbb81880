package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/lyfcircle/circle/internal/activity"
	"github.com/lyfcircle/circle/internal/api"
	"github.com/lyfcircle/circle/internal/logging"
)

func eventsCommand(cmd *Command, args []string) error {
	fs := cmd.NewFlagSet()
	asJSON := fs.Bool("json", false, "Print activities as JSON")
	if stop, err := parseFlags(fs, args); stop {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	client := api.NewClient(a.cfg.APIBaseURL, a.cfg.HTTPTimeout, logging.Component(a.log, "api"))
	listing := activity.Load(ctx, client, logging.Component(a.log, "activity"))

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(listing.All())
	}
	printListing(os.Stdout, listing)
	return nil
}

func printListing(w io.Writer, l activity.Listing) {
	if l.Fallback {
		fmt.Fprintln(w, "Could not load activities; showing the usual line-up.")
	}
	table := NewTableWriter([]string{"ID", "", "Activity", "When", "Where", "People", "New"})
	for _, a := range l.All() {
		unread := ""
		if a.HasNewMessages {
			unread = "•"
		}
		table.AddRow([]string{
			a.ID,
			a.Emoji,
			a.Name,
			a.Date.String(),
			a.Location,
			strconv.Itoa(a.Participants),
			unread,
		})
	}
	table.Print(w)
	fmt.Fprintln(w, "Join a room with 'circle chat <id>'.")
}
