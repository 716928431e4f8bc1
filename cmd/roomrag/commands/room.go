package commands

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/roomrag-go/internal/store"
)

// NewRoomCmd constructs the `roomrag room` command group.
func NewRoomCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "room",
		Short: "Create, list and delete rooms",
	}
	cmd.AddCommand(newRoomCreateCmd(), newRoomListCmd(), newRoomDeleteCmd())
	return cmd
}

func newRoomCreateCmd() *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a room",
		Example: `  roomrag room create "HR policies" --description "Handbook and leave rules"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.Open(state.cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("room create: %w", err)
			}
			defer db.Close()

			room, err := db.CreateRoom(cmd.Context(), args[0], description)
			if err != nil {
				return fmt.Errorf("room create: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created room %d (%s) namespace %s\n", room.ID, room.Name, room.Namespace)
			return nil
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "Room description")
	return cmd
}

func newRoomListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List rooms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := store.Open(state.cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("room list: %w", err)
			}
			defer db.Close()

			rooms, err := db.ListRooms(cmd.Context())
			if err != nil {
				return fmt.Errorf("room list: %w", err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tNAMESPACE\tCREATED")
			for _, r := range rooms {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.ID, r.Name, r.Namespace, r.CreatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}

func newRoomDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a room with its documents, vectors and history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("room delete: invalid room id %q", args[0])
			}
			a, err := newApp(cmd.Context(), state.cfg, state.log, appOptions{})
			if err != nil {
				return fmt.Errorf("room delete: %w", err)
			}
			defer a.Close()

			if err := a.docs.DeleteRoom(cmd.Context(), id); err != nil {
				return fmt.Errorf("room delete: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted room %d\n", id)
			return nil
		},
	}
}
