package console

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/hfspace/pkg/agent"
)

type fakeSession struct {
	agents  []string
	sent    []string
	cleared []string
	err     error
}

func (f *fakeSession) AgentNames() []string { return f.agents }

func (f *fakeSession) SendTo(_ context.Context, name, message string) (string, error) {
	f.sent = append(f.sent, name+":"+message)
	if f.err != nil {
		return "", f.err
	}
	return strings.ToUpper(message), nil
}

func (f *fakeSession) ClearHistory(name string) error {
	f.cleared = append(f.cleared, name)
	return nil
}

func (f *fakeSession) AgentTools(string) ([]agent.ToolInfo, error) {
	return []agent.ToolInfo{{Name: "mcp_hfspace-search-spaces", Description: "Search spaces\nmore"}}, nil
}

func run(t *testing.T, s Session, input string) string {
	t.Helper()
	var out bytes.Buffer
	err := Run(context.Background(), s, Options{In: strings.NewReader(input), Out: &out})
	require.NoError(t, err)
	return out.String()
}

func TestRun_SendsMessages(t *testing.T) {
	s := &fakeSession{agents: []string{"default"}}
	out := run(t, s, "hello\n\n  \nworld\n")

	assert.Equal(t, []string{"default:hello", "default:world"}, s.sent)
	assert.Contains(t, out, "default > ")
	assert.Contains(t, out, "\nHELLO\n")
	assert.Contains(t, out, "\nWORLD\n")
}

func TestRun_QuitCommands(t *testing.T) {
	for _, quit := range []string{"/quit", "/exit", "STOP"} {
		t.Run(quit, func(t *testing.T) {
			s := &fakeSession{agents: []string{"default"}}
			run(t, s, quit+"\nnot sent\n")
			assert.Empty(t, s.sent)
		})
	}
}

func TestRun_Commands(t *testing.T) {
	s := &fakeSession{agents: []string{"default", "researcher"}}
	out := run(t, s, "/agents\n/tools\n/agent\n/agent nobody\n/agent researcher\n/clear\nhi\n/help\n/bogus\n")

	assert.Contains(t, out, "* default\n  researcher\n")
	assert.Contains(t, out, "  mcp_hfspace-search-spaces  Search spaces\n")
	assert.NotContains(t, out, "more")
	assert.Contains(t, out, "Usage: /agent NAME")
	assert.Contains(t, out, "Unknown agent: nobody")
	assert.Contains(t, out, "Switched to researcher")
	assert.Contains(t, out, "researcher > ")
	assert.Equal(t, []string{"researcher"}, s.cleared)
	assert.Equal(t, []string{"researcher:hi"}, s.sent)
	assert.Contains(t, out, "/quit, /exit")
	assert.Contains(t, out, "Unknown command: /bogus")
}

func TestRun_ErrorsDoNotEndSession(t *testing.T) {
	s := &fakeSession{agents: []string{"default"}, err: errors.New("space is sleeping")}
	out := run(t, s, "one\ntwo\n")

	assert.Len(t, s.sent, 2)
	assert.Equal(t, 2, strings.Count(out, "Error: space is sleeping"))
}

func TestRun_StartAgent(t *testing.T) {
	s := &fakeSession{agents: []string{"a", "b"}}

	var out bytes.Buffer
	require.NoError(t, Run(context.Background(), s, Options{Agent: "b", In: strings.NewReader("x\n"), Out: &out}))
	assert.Equal(t, []string{"b:x"}, s.sent)

	err := Run(context.Background(), s, Options{Agent: "c", In: strings.NewReader(""), Out: io.Discard})
	assert.ErrorContains(t, err, "unknown agent")

	err = Run(context.Background(), &fakeSession{}, Options{In: strings.NewReader(""), Out: io.Discard})
	assert.Error(t, err)
}

func TestRun_ContextCancel(t *testing.T) {
	s := &fakeSession{agents: []string{"default"}}
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, s, Options{In: pr, Out: io.Discard})
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
