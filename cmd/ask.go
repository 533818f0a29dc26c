package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
)

var askSessionID string

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a single question",
	Long: `Ask one question and print the answer. Use --session to continue an
existing conversation so follow-ups keep their context.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askSessionID, "session", "", "session to continue")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	question := strings.Join(args, " ")
	reply, err := a.Advisor.Answer(ctx, askSessionID, question)
	if err != nil {
		return err
	}

	printReply(cmd, reply)
	if askSessionID == "" && verbose {
		cmd.Printf("\nSession: %s\n", reply.SessionID)
	}
	return nil
}
