package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func NewListCommand() *cobra.Command {
	f := NewClientFlags()

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List chats, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, closeCache, err := f.OpenSession(cmd.Context())
			if err != nil {
				return err
			}
			defer closeCache()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tMESSAGES\tCREATED")
			for _, c := range session.Chats() {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", c.ID, c.Title, len(session.Messages(c.ID)),
					c.CreatedAt.Local().Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}

	f.BindFlags(cmd.Flags())
	return cmd
}

func NewDeleteCommand() *cobra.Command {
	f := NewClientFlags()

	cmd := &cobra.Command{
		Use:   "delete CHAT_ID",
		Short: "Delete a chat and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, closeCache, err := f.OpenSession(cmd.Context())
			if err != nil {
				return err
			}
			defer closeCache()

			if err := session.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}

	f.BindFlags(cmd.Flags())
	return cmd
}
