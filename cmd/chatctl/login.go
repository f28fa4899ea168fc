package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func NewLoginCommand() *cobra.Command {
	f := NewClientFlags()
	var password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Check credentials against the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.Validate(); err != nil {
				return err
			}
			if password == "" {
				password = os.Getenv("FLOWCHAT_PASSWORD")
			}
			if password == "" {
				return errors.New("--password or FLOWCHAT_PASSWORD is required")
			}

			resp, err := f.Remote().Login(cmd.Context(), f.Email, password)
			if err != nil {
				return err
			}
			if !resp.Success {
				return errors.New(resp.Message)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", resp.Email, resp.Role)
			return nil
		},
	}

	f.BindFlags(cmd.Flags())
	cmd.Flags().StringVar(&password, "password", "", "Account password")
	return cmd
}
