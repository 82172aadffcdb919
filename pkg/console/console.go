// Package console runs an interactive chat with the agents of an app.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"golang.org/x/term"

	"github.com/kadirpekel/hfspace/pkg/agent"
)

// Session is what the console talks to.
type Session interface {
	AgentNames() []string
	SendTo(ctx context.Context, agent, message string) (string, error)
	ClearHistory(agent string) error
	AgentTools(agent string) ([]agent.ToolInfo, error)
}

// Options configures Run.
type Options struct {
	// Agent is the agent the session starts with (default: the first).
	Agent string

	In  io.Reader
	Out io.Writer
}

const maxLineSize = 1024 * 1024

// Run reads messages from opts.In and prints replies until the user quits,
// the input ends or ctx is done. A failed message is reported and the
// session continues.
func Run(ctx context.Context, s Session, opts Options) error {
	names := s.AgentNames()
	if len(names) == 0 {
		return errors.New("console: no agents")
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	current := opts.Agent
	if current == "" {
		current = names[0]
	}
	if !slices.Contains(names, current) {
		return fmt.Errorf("console: unknown agent %q", current)
	}

	out := opts.Out
	lines := readLines(ctx, opts.In)

	if isTerminal(out) {
		fmt.Fprintf(out, "\n💬 Chatting with %s. Type /help for commands.\n\n", current)
	}

	for {
		fmt.Fprintf(out, "%s > ", current)

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				return nil
			}
			line = strings.TrimSpace(l)
		}

		if line == "" {
			continue
		}

		if line == "STOP" || strings.HasPrefix(line, "/") {
			next, quit := command(s, out, current, line)
			if quit {
				return nil
			}
			current = next
			continue
		}

		reply, err := s.SendTo(ctx, current, line)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(out, "Error: %v\n\n", err)
			continue
		}
		fmt.Fprintf(out, "\n%s\n\n", reply)
	}
}

// command handles a console command and returns the agent to continue
// with and whether the session ends.
func command(s Session, out io.Writer, current, line string) (string, bool) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit", "/exit", "STOP":
		fmt.Fprintln(out, "Goodbye")
		return current, true

	case "/clear":
		if err := s.ClearHistory(current); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		} else {
			fmt.Fprintf(out, "Cleared history of %s\n", current)
		}

	case "/agents":
		for _, name := range s.AgentNames() {
			marker := " "
			if name == current {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %s\n", marker, name)
		}

	case "/agent":
		if arg == "" {
			fmt.Fprintln(out, "Usage: /agent NAME")
			break
		}
		if !slices.Contains(s.AgentNames(), arg) {
			fmt.Fprintf(out, "Unknown agent: %s\n", arg)
			break
		}
		fmt.Fprintf(out, "Switched to %s\n", arg)
		return arg, false

	case "/tools":
		tools, err := s.AgentTools(current)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			break
		}
		if len(tools) == 0 {
			fmt.Fprintln(out, "No tools available")
			break
		}
		for _, t := range tools {
			fmt.Fprintf(out, "  %s  %s\n", t.Name, firstLine(t.Description))
		}

	case "/help":
		printHelp(out)

	default:
		fmt.Fprintf(out, "Unknown command: %s\n", cmd)
	}
	return current, false
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  /agents       list agents")
	fmt.Fprintln(out, "  /agent NAME   switch to another agent")
	fmt.Fprintln(out, "  /tools        list the tools of the current agent")
	fmt.Fprintln(out, "  /clear        clear the conversation history")
	fmt.Fprintln(out, "  /quit, /exit  end the session (STOP also works)")
}

// readLines feeds lines from r to the returned channel, which closes at
// EOF. The reader goroutine exits when ctx is done and a line arrives.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			select {
			case ch <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
