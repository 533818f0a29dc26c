package cmd

import (
	"github.com/spf13/cobra"

	"github.com/erasmolabs/erasmo/internal/advisor"
)

// printReply renders a reply for the terminal. Exactly one of Answer or
// Clarification is set.
func printReply(cmd *cobra.Command, reply *advisor.Reply) {
	if reply.Clarification != nil {
		cmd.Println("I need a bit more to go on:")
		for _, q := range reply.Clarification.Questions {
			cmd.Printf("  - %s\n", q)
		}
		return
	}

	ans := reply.Answer
	cmd.Println(ans.Conceptual)
	if len(ans.ActionPlan) > 0 {
		cmd.Println()
		cmd.Println("Action plan:")
		for i, step := range ans.ActionPlan {
			cmd.Printf("  %d. %s\n", i+1, step)
		}
	}
	if ans.Priority != "" || ans.Timeline != "" {
		cmd.Println()
		if ans.Priority != "" {
			cmd.Printf("Priority: %s", ans.Priority)
		}
		if ans.Timeline != "" {
			if ans.Priority != "" {
				cmd.Printf("  |  ")
			}
			cmd.Printf("Timeline: %s", ans.Timeline)
		}
		cmd.Println()
	}
	if verbose && len(ans.Citations) > 0 {
		cmd.Println()
		cmd.Println("Sources:")
		for _, id := range ans.Citations {
			cmd.Printf("  %s\n", id)
		}
	}
}
