package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

// Command is one circle subcommand.
type Command struct {
	Name        string
	Description string
	Usage       string
	Examples    []string
	Run         func(cmd *Command, args []string) error
}

// NewFlagSet creates a flag set that prints the command's usage on error.
func (c *Command) NewFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet(c.Name, flag.ContinueOnError)
	fs.Usage = func() { c.PrintUsage(os.Stderr) }
	return fs
}

// parseFlags parses args and reports whether the command should stop,
// which is the case after --help.
func parseFlags(fs *flag.FlagSet, args []string) (bool, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return true, nil
		}
		return true, err
	}
	return false, nil
}

// PrintUsage prints the command's usage block.
func (c *Command) PrintUsage(w io.Writer) {
	fmt.Fprintf(w, "%s\n\n", c.Description)
	fmt.Fprintf(w, "USAGE:\n    %s\n\n", c.Usage)
	if len(c.Examples) > 0 {
		fmt.Fprintf(w, "EXAMPLES:\n")
		for _, example := range c.Examples {
			fmt.Fprintf(w, "    %s\n", example)
		}
	}
}

// CommandRegistry dispatches os.Args to commands.
type CommandRegistry struct {
	commands map[string]*Command
	order    []string
	version  VersionInfo
}

// VersionInfo holds build-time version information.
type VersionInfo struct {
	Version string
	Commit  string
	Date    string
}

// NewCommandRegistry creates an empty registry.
func NewCommandRegistry(v VersionInfo) *CommandRegistry {
	return &CommandRegistry{
		commands: make(map[string]*Command),
		version:  v,
	}
}

// Register adds a command; help lists commands in registration order.
func (r *CommandRegistry) Register(cmd *Command) {
	if _, ok := r.commands[cmd.Name]; !ok {
		r.order = append(r.order, cmd.Name)
	}
	r.commands[cmd.Name] = cmd
}

// Execute runs the command named by args[0].
func (r *CommandRegistry) Execute(args []string) error {
	if len(args) < 1 {
		r.PrintHelp(os.Stdout)
		return fmt.Errorf("no command specified")
	}

	name := args[0]
	switch name {
	case "help", "-h", "--help":
		r.PrintHelp(os.Stdout)
		return nil
	case "version", "--version":
		fmt.Printf("circle %s (%s, %s)\n", r.version.Version, r.version.Commit, r.version.Date)
		return nil
	}

	cmd, ok := r.commands[name]
	if !ok {
		r.PrintHelp(os.Stderr)
		return fmt.Errorf("unknown command: %s", name)
	}
	return cmd.Run(cmd, args[1:])
}

// PrintHelp prints the overall help.
func (r *CommandRegistry) PrintHelp(w io.Writer) {
	fmt.Fprintln(w, "circle - lyf circle member client")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "    circle <command> [arguments]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	for _, name := range r.order {
		cmd := r.commands[name]
		fmt.Fprintf(w, "    %-10s %s\n", cmd.Name, cmd.Description)
	}
	fmt.Fprintf(w, "    %-10s %s\n", "version", "Print version information")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'circle <command> --help' for more information on a command.")
	fmt.Fprintln(w, "Settings come from CIRCLE_* environment variables.")
}

// TableWriter renders rows as an aligned, bordered table.
type TableWriter struct {
	headers []string
	rows    [][]string
	widths  []int
}

// NewTableWriter creates a table with the given headers.
func NewTableWriter(headers []string) *TableWriter {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = displayWidth(h)
	}
	return &TableWriter{headers: headers, widths: widths}
}

// AddRow appends a row.
func (t *TableWriter) AddRow(row []string) {
	t.rows = append(t.rows, row)
	for i, cell := range row {
		if i < len(t.widths) && displayWidth(cell) > t.widths[i] {
			t.widths[i] = displayWidth(cell)
		}
	}
}

// Print writes the table to w.
func (t *TableWriter) Print(w io.Writer) {
	t.printSeparator(w, "┌", "┬", "┐")
	t.printRow(w, t.headers)
	t.printSeparator(w, "├", "┼", "┤")
	for _, row := range t.rows {
		t.printRow(w, row)
	}
	t.printSeparator(w, "└", "┴", "┘")
}

func (t *TableWriter) printSeparator(w io.Writer, left, mid, right string) {
	fmt.Fprint(w, left)
	for i, width := range t.widths {
		fmt.Fprint(w, strings.Repeat("─", width+2))
		if i < len(t.widths)-1 {
			fmt.Fprint(w, mid)
		}
	}
	fmt.Fprintln(w, right)
}

func (t *TableWriter) printRow(w io.Writer, row []string) {
	fmt.Fprint(w, "│")
	for i, cell := range row {
		if i < len(t.widths) {
			pad := t.widths[i] - displayWidth(cell)
			fmt.Fprintf(w, " %s%s │", cell, strings.Repeat(" ", pad))
		}
	}
	fmt.Fprintln(w)
}

// displayWidth counts runes; close enough for names and dates.
func displayWidth(s string) int {
	return len([]rune(s))
}
