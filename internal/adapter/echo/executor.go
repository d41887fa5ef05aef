// Package echo provides a reference agent executor. It echoes message
// text back as an artifact and exercises every lifecycle path: direct
// replies, multi-turn input, rejection, and completion.
package echo

import (
	"context"
	"strings"

	"github.com/agentrelay/agentrelay/internal/domain/a2a"
	"github.com/agentrelay/agentrelay/internal/port/agent"
)

// Executor is the built-in echo agent.
//
//	"ping"       gets a direct "pong" reply without creating a task
//	"ask: <q>"   pauses for input; the follow-up message completes the task
//	empty text   is rejected
//	anything else is echoed back as a text artifact
type Executor struct{}

// New creates the echo executor.
func New() *Executor {
	return &Executor{}
}

// Respond short-circuits ping messages with a direct reply.
func (e *Executor) Respond(_ context.Context, msg a2a.Message) (*a2a.Message, bool, error) {
	if strings.TrimSpace(msg.Text()) != "ping" {
		return nil, false, nil
	}
	reply := a2a.NewTextMessage(a2a.RoleAgent, "pong")
	return &reply, true, nil
}

// Execute runs one turn of the echo agent.
func (e *Executor) Execute(ctx context.Context, rc agent.RequestContext, u agent.Updater) error {
	text := strings.TrimSpace(rc.Message.Text())

	if text == "" {
		reason := a2a.NewTextMessage(a2a.RoleAgent, "nothing to echo")
		return u.Reject(ctx, &reason)
	}

	if err := u.Working(ctx, nil); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if rest, ok := strings.CutPrefix(text, "ask:"); ok {
		question := a2a.NewTextMessage(a2a.RoleAgent, "what should I do with "+strings.TrimSpace(rest)+"?")
		return u.InputRequired(ctx, &question)
	}

	echoed := text
	if len(rc.Task.History) > 1 {
		// A resumed turn echoes the whole exchange.
		var lines []string
		for _, m := range rc.Task.History {
			if m.Role == a2a.RoleUser {
				lines = append(lines, m.Text())
			}
		}
		echoed = strings.Join(lines, "\n")
	}

	if err := u.AddArtifact(ctx, a2a.NewTextArtifact("echo", echoed), true); err != nil {
		return err
	}
	return u.Complete(ctx, nil)
}

var (
	_ agent.Executor  = (*Executor)(nil)
	_ agent.Responder = (*Executor)(nil)
)
