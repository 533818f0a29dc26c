package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var sessionsLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recent advisory sessions",
	RunE:  runSessions,
}

func init() {
	sessionsCmd.Flags().IntVarP(&sessionsLimit, "limit", "n", 20, "maximum number of sessions")
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	sessions, err := a.Store.ListSessions(ctx, sessionsLimit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		cmd.Println("No sessions yet.")
		return nil
	}

	for _, s := range sessions {
		title := s.Title
		if title == "" {
			title = "(untitled)"
		}
		cmd.Printf("%s  %s  %2d turns  %s\n",
			s.CreatedAt.Local().Format("2006-01-02 15:04"), s.ID, s.TurnCount, title)
	}
	return nil
}
