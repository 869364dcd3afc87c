package main

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/manthysbr/auleagent/internal/adapters/operator"
	"github.com/manthysbr/auleagent/internal/core/domain"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive shell: one goal per line",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := newLogger(os.Stderr, false)
		terminal := operator.NewTerminal(os.Stdin, os.Stdout)

		a, err := bootstrap(ctx, logger, terminal)
		if err != nil {
			return err
		}
		defer a.close()

		return repl(ctx, terminal, a.agent)
	},
}

// goalRunner is the part of the agent the shells need.
type goalRunner interface {
	Run(ctx context.Context, goal string, attachments []domain.Attachment) string
	Suggest(text string)
}

const replHelp = `Enter a goal, "/suggest <hint>" to guide the next run, or "quit".`

// repl reads goals until quit, EOF or cancellation. Each goal runs to
// completion before the next line is read.
func repl(ctx context.Context, terminal *operator.Terminal, agent goalRunner) error {
	terminal.Printf("%s\n", replHelp)
	for {
		line, err := terminal.Ask(ctx, "Goal:")
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		switch {
		case line == "":
			continue
		case line == "quit" || line == "exit":
			return nil
		case strings.HasPrefix(line, "/suggest"):
			hint := strings.TrimSpace(strings.TrimPrefix(line, "/suggest"))
			if hint == "" {
				terminal.Printf("usage: /suggest <hint>\n")
				continue
			}
			agent.Suggest(hint)
			terminal.Printf("Suggestion queued for the next run.\n")
		default:
			terminal.Printf("%s\n", agent.Run(ctx, line, nil))
		}
	}
}
