package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/szaher/contractbot/internal/engine"
	"github.com/szaher/contractbot/internal/session"
)

func newChatCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the engine interactively",
		Long:  "Reads one turn per line from stdin and prints the reply. Type /quit to leave.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			rt, _, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			go func() { _ = rt.RunBackground(ctx) }()

			if sessionID == "" {
				sessionID = session.NewID()
			}
			return chat(ctx, rt.Engine(), sessionID, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session id (generated when empty)")

	return cmd
}

// chat runs the read-eval-print loop until EOF, /quit or cancellation.
func chat(ctx context.Context, eng *engine.Engine, sessionID string, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "Session %s. Say \"create contract\" to begin, /quit to leave.\n", sessionID)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "/quit" {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		res, err := eng.ProcessTurn(ctx, sessionID, line)
		if err != nil {
			return fmt.Errorf("process turn: %w", err)
		}
		fmt.Fprintln(out, res.Message)
		if verbose {
			fmt.Fprintf(out, "  [%s %s %s remaining=%v]\n", res.Kind, res.Flow, res.State, res.RemainingFields)
		}
	}
}
