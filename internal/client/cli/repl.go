package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
)

// command is one REPL verb.
type command struct {
	name    string
	aliases []string
	usage   string
	summary string
	// auth commands are hidden and refused until a worker is logged in.
	auth    bool
	minArgs int
	run     func(ctx context.Context, args []string) error
}

// runREPL reads commands from scanner until EOF or "exit". The prompt is
// recomputed before every line. Handler errors are printed and the loop
// goes on.
func runREPL(ctx context.Context, cmds []command, loggedIn func() bool, prompt func() string,
	scanner *bufio.Scanner, out io.Writer) {
	index := make(map[string]command, len(cmds))
	for _, c := range cmds {
		index[c.name] = c
		for _, al := range c.aliases {
			index[al] = c
		}
	}

	for {
		fmt.Fprint(out, prompt())
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		name, args := parts[0], parts[1:]

		switch name {
		case "exit", "quit":
			fmt.Fprintln(out, "Bye!")
			return
		case "help":
			printHelp(out, cmds, loggedIn())
			continue
		}

		c, ok := index[name]
		if !ok {
			fmt.Fprintln(out, "Unknown command:", name)
			continue
		}
		if c.auth && !loggedIn() {
			fmt.Fprintln(out, "Please log in first")
			continue
		}
		if len(args) < c.minArgs {
			fmt.Fprintln(out, "Usage:", c.usage)
			continue
		}
		if err := c.run(ctx, args); err != nil {
			fmt.Fprintln(out, "error:", err)
		}
	}
}

func printHelp(out io.Writer, cmds []command, loggedIn bool) {
	var lines []string
	for _, c := range cmds {
		if c.auth && !loggedIn {
			continue
		}
		lines = append(lines, fmt.Sprintf("  %-28s %s", c.usage, c.summary))
	}
	sort.Strings(lines)
	fmt.Fprintln(out, "Available commands:")
	for _, l := range lines {
		fmt.Fprintln(out, l)
	}
	fmt.Fprintf(out, "  %-28s %s\n", "exit", "leave the program")
}

func (a *App) commands() []command {
	return []command{
		{name: "register", usage: "register", summary: "create a worker account", run: a.Register},
		{name: "login", usage: "login", summary: "log in (works offline after the first login)", run: a.Login},
		{name: "logout", usage: "logout", summary: "log out", auth: true, run: a.Logout},
		{name: "license", usage: "license", summary: "show the license status", run: a.License},

		{name: "start", usage: "start <job-id> [notes]", summary: "start working on a job", auth: true, minArgs: 1, run: a.StartJob},
		{name: "end", usage: "end [notes]", summary: "end the current job", auth: true, run: a.EndJob},
		{name: "break", usage: "break <break-type-id>", summary: "start a break", auth: true, minArgs: 1, run: a.StartBreak},
		{name: "endbreak", usage: "endbreak", summary: "end the current break", auth: true, run: a.EndBreak},
		{name: "photo", usage: "photo <path>", summary: "attach a photo", auth: true, minArgs: 1, run: a.Photo},
		{name: "download", usage: "download <photo-guid>", summary: "download a synced photo", auth: true, minArgs: 1, run: a.DownloadPhoto},
		{name: "status", aliases: []string{"st"}, usage: "status", summary: "show the current job and sync state", auth: true, run: a.Status},
		{name: "history", usage: "history [n]", summary: "list recent time entries", auth: true, run: a.History},
		{name: "jobs", usage: "jobs", summary: "list jobs and break types", auth: true, run: a.Jobs},

		{name: "sync", usage: "sync", summary: "synchronize now", auth: true, run: a.Sync},
		{name: "pull", usage: "pull", summary: "refresh jobs, break types and settings", auth: true, run: a.Pull},
		{name: "failed", usage: "failed", summary: "list items that could not be sent", auth: true, run: a.Failed},
		{name: "retry", usage: "retry <id>", summary: "send a failed item again", auth: true, minArgs: 1, run: a.Retry},
		{name: "dismiss", usage: "dismiss <id>", summary: "drop a failed item", auth: true, minArgs: 1, run: a.Dismiss},
		{name: "conflicts", usage: "conflicts", summary: "list conflicts waiting for review", auth: true, run: a.Conflicts},
		{name: "reconcile", usage: "reconcile", summary: "queue unsynced records that were never queued", auth: true, run: a.Reconcile},
		{name: "resolve", usage: "resolve <guid> <local|server>", summary: "resolve a conflict", auth: true, minArgs: 2, run: a.Resolve},
	}
}
