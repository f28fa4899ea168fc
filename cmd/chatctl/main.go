// Command chatctl is a terminal client for the chat backend. It keeps a
// local cache so chats survive while the backend is unreachable.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/capitalize-ai/flowchat/pkg/logger"
)

var (
	logLevel = "warn"
	log      = logger.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "chatctl",
	Short: "Chat with a Flowise chatflow from the terminal",
	Long: `chatctl signs in to the chat backend, lists and edits chats, and runs
an interactive chat session. Chats are cached locally and pushed to the
backend when it is reachable.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := zapcore.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("cannot parse log-level: %w", err)
		}
		// Logs go to stderr so they stay out of the chat transcript.
		l, err := logger.NewDevelopment()
		if err != nil {
			return err
		}
		log = &logger.Logger{Logger: l.WithOptions(zap.IncreaseLevel(level))}
		return nil
	},
}

func main() {
	rootCmd.AddCommand(
		NewLoginCommand(),
		NewListCommand(),
		NewChatCommand(),
		NewDeleteCommand(),
	)

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", logLevel,
		"Log level (debug,info,warn,error)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
