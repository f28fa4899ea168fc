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
	"go.uber.org/zap"

	"github.com/capitalize-ai/flowchat/internal/chatsync"
)

const chatHelp = `Commands:
  /new            start a new chat
  /list           list chats
  /open CHAT_ID   switch to a chat
  /delete CHAT_ID delete a chat
  /save           save now
  /quit           save and exit
Anything else is sent to the active chat.`

func NewChatCommand() *cobra.Command {
	f := NewClientFlags()
	var chatID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			session, closeCache, err := f.OpenSession(ctx)
			if err != nil {
				return err
			}
			defer closeCache()

			if chatID != "" {
				if err := session.Select(chatID); err != nil {
					return fmt.Errorf("%s: %w", chatID, err)
				}
			} else if session.Active() == "" {
				if _, err := session.NewChat(ctx); err != nil {
					return err
				}
			}

			session.StartAutosave(ctx, chatsync.AutosaveInterval)
			defer func() {
				// The signal context may be done by now.
				if err := session.SignOut(context.Background()); err != nil {
					log.Warn("final save failed", zap.Error(err))
				}
			}()

			return repl(ctx, session, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	f.BindFlags(cmd.Flags())
	cmd.Flags().StringVar(&chatID, "chat", "", "Chat to open instead of the newest")
	return cmd
}

func repl(ctx context.Context, session *chatsync.Session, in io.Reader, out io.Writer) error {
	// The reader goroutine exits once repl returns.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fmt.Fprintln(out, chatHelp)
	printTranscript(out, session)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(out, "> ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			done, err := runCommand(ctx, session, line, out)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
			if done {
				return nil
			}
			continue
		}

		reply, err := session.Send(ctx, line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		fmt.Fprintf(out, "assistant: %s\n", reply.Text)
		for _, doc := range reply.SourceDocuments {
			if src, ok := doc.Metadata["source"]; ok {
				fmt.Fprintf(out, "  source: %v\n", src)
			}
		}
	}
}

func runCommand(ctx context.Context, session *chatsync.Session, line string, out io.Writer) (bool, error) {
	fields := strings.Fields(line)
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch fields[0] {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(out, chatHelp)
	case "/new":
		chat, err := session.NewChat(ctx)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(out, "started %s\n", chat.ID)
	case "/list":
		for _, c := range session.Chats() {
			marker := " "
			if c.ID == session.Active() {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %s  %s\n", marker, c.ID, c.Title)
		}
	case "/open":
		if err := session.Select(arg); err != nil {
			return false, err
		}
		printTranscript(out, session)
	case "/delete":
		if err := session.Delete(ctx, arg); err != nil {
			return false, err
		}
		fmt.Fprintf(out, "deleted %s\n", arg)
	case "/save":
		if err := session.Save(ctx); err != nil {
			return false, err
		}
		fmt.Fprintln(out, "saved")
	default:
		return false, fmt.Errorf("unknown command %s", fields[0])
	}
	return false, nil
}

func printTranscript(out io.Writer, session *chatsync.Session) {
	active := session.Active()
	if active == "" {
		return
	}
	for _, m := range session.Messages(active) {
		who := "assistant"
		if m.IsUser {
			who = "you"
		}
		fmt.Fprintf(out, "%s: %s\n", who, m.Text)
	}
}
