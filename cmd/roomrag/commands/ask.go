package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/roomrag-go/internal/logging"
	"github.com/54b3r/roomrag-go/internal/tracing"
)

// NewAskCmd constructs the `roomrag ask` command, which answers one question
// from the documents of a room and records it in the room history.
func NewAskCmd() *cobra.Command {
	var roomID int64
	var showChunks bool

	cmd := &cobra.Command{
		Use:   "ask --room ID QUESTION",
		Short: "Ask a question about the documents of a room",
		Example: `  roomrag ask --room 1 "How many remote work days are allowed?"
  roomrag ask --room 1 --chunks "Who approves vacation requests?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log := state.cfg, state.log
			if roomID <= 0 {
				return fmt.Errorf("ask: %w", errRoomRequired)
			}
			question := strings.TrimSpace(strings.Join(args, " "))

			flush, _ := tracing.Install(tracing.Config{
				Host:      cfg.Tracing.Host,
				PublicKey: cfg.Tracing.PublicKey,
				SecretKey: cfg.Tracing.SecretKey,
			})
			defer flush()

			ctx, cancel := context.WithTimeout(logging.WithLogger(cmd.Context(), log), cfg.Server.ChatTimeout)
			defer cancel()

			a, err := newApp(ctx, cfg, log, appOptions{})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer a.Close()

			room, err := a.db.GetRoom(ctx, roomID)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			orchestrator, err := a.chat(ctx)
			if err != nil {
				return fmt.Errorf("ask: failed to initialise chat: %w", err)
			}
			ex, err := orchestrator.Answer(ctx, question, room.Namespace)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ex.Answer)
			if len(ex.Sources) > 0 {
				fmt.Fprintln(out, "\nSources:")
			}
			for i, s := range ex.Sources {
				fmt.Fprintf(out, "  [%d] %s (document %d, score %.3f)\n", i+1, s.Filename, s.DocumentID, s.Score)
				if showChunks {
					fmt.Fprintf(out, "      %s\n", strings.ReplaceAll(s.ChunkText, "\n", "\n      "))
				}
			}
			return nil
		},
	}

	cmd.Flags().Int64VarP(&roomID, "room", "r", 0, "Room ID to ask in")
	cmd.Flags().BoolVar(&showChunks, "chunks", false, "Print the cited chunk text")

	return cmd
}
