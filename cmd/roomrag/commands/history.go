package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/roomrag-go/internal/store"
)

// NewHistoryCmd constructs the `roomrag history` command, which prints the
// recorded questions and answers of a room, oldest first.
func NewHistoryCmd() *cobra.Command {
	var roomID int64
	var limit int

	cmd := &cobra.Command{
		Use:   "history --room ID",
		Short: "Show the question and answer history of a room",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if roomID <= 0 {
				return fmt.Errorf("history: %w", errRoomRequired)
			}
			db, err := store.Open(state.cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			defer db.Close()

			if _, err := db.GetRoom(cmd.Context(), roomID); err != nil {
				return fmt.Errorf("history: %w", err)
			}
			msgs, err := db.History(cmd.Context(), roomID, limit)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}

			out := cmd.OutOrStdout()
			for _, m := range msgs {
				fmt.Fprintf(out, "[%s] %s: %s\n", m.CreatedAt.Format(time.RFC3339), m.Role, m.Content)
				for _, s := range m.Sources {
					fmt.Fprintf(out, "    source: %s (document %d, score %.3f)\n", s.Filename, s.DocumentID, s.Score)
				}
			}
			return nil
		},
	}

	cmd.Flags().Int64VarP(&roomID, "room", "r", 0, "Room ID")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Most recent messages to show (0 for all)")

	return cmd
}
