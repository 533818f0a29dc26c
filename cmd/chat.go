package cmd

import (
	"bufio"
	"context"
	"errors"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/erasmolabs/erasmo/internal/advisor"
)

var chatSessionID string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive advisory session",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatSessionID, "session", "", "session to resume")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	sessionID := chatSessionID
	cmd.Println("erasmo advisory session. Type /quit or press Ctrl+D to leave.")
	cmd.Println()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		cmd.Print("you> ")

		if !scanner.Scan() {
			cmd.Println()
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/quit" || input == "/exit" {
			break
		}

		reply, err := a.Advisor.Answer(ctx, sessionID, input)
		if err != nil {
			// Pipeline failures are recoverable within the session.
			var resp *advisor.ErrorResponse
			if errors.As(err, &resp) {
				cmd.PrintErrf("error: %s\n\n", resp.Message)
				continue
			}
			return err
		}
		sessionID = reply.SessionID

		cmd.Println()
		printReply(cmd, reply)
		cmd.Println()
	}

	if sessionID != "" {
		cmd.Printf("Session saved as %s. Resume with: erasmo chat --session %s\n", sessionID, sessionID)
	}
	return scanner.Err()
}
