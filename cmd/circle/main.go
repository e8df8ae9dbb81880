// Command circle is the lyf circle member client: it runs the registration
// survey, lists activities and joins activity chat rooms.
package main

import (
	"fmt"
	"os"
)

// Version information (set via ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	registry := NewCommandRegistry(VersionInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	})
	registerCommands(registry)

	if err := registry.Execute(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func registerCommands(r *CommandRegistry) {
	r.Register(&Command{
		Name:        "register",
		Description: "Answer the membership survey and register",
		Usage:       "circle register [--questions file.yaml] [--block-on-failure]",
		Examples: []string{
			"circle register",
			"CIRCLE_API_URL=https://circle.example.com circle register",
			"circle register --questions ./questions.yaml",
		},
		Run: registerCommand,
	})

	r.Register(&Command{
		Name:        "events",
		Description: "List activities you can join",
		Usage:       "circle events [--json]",
		Examples: []string{
			"circle events",
			"circle events --json",
		},
		Run: eventsCommand,
	})

	r.Register(&Command{
		Name:        "chat",
		Description: "Join the chat room of an activity",
		Usage:       "circle chat <event-id>",
		Examples: []string{
			"circle chat 42",
			"NATS_URL=nats://localhost:4222 circle chat 42",
		},
		Run: chatCommand,
	})

	r.Register(&Command{
		Name:        "tail",
		Description: "Follow a chat room mirrored to NATS by a running chat",
		Usage:       "circle tail <event-id>",
		Examples: []string{
			"NATS_URL=nats://localhost:4222 circle tail 42",
		},
		Run: tailCommand,
	})

	r.Register(&Command{
		Name:        "whoami",
		Description: "Print the registered user id",
		Usage:       "circle whoami",
		Run:         whoamiCommand,
	})

	r.Register(&Command{
		Name:        "forget",
		Description: "Remove the stored user id",
		Usage:       "circle forget",
		Run:         forgetCommand,
	})
}
