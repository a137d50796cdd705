package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperknow/hyperknow/internal/ui"
)

var followupConversation string

var followupCmd = &cobra.Command{
	Use:   "followup \"question\"",
	Short: "Ask a follow-up question about the last article",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFollowup(cmd.Context(), args[0])
	},
}

func init() {
	followupCmd.Flags().StringVar(&followupConversation, "conversation", "", "conversation id (defaults to the last run)")
	rootCmd.AddCommand(followupCmd)
}

func runFollowup(ctx context.Context, question string) error {
	sess, err := currentSession()
	if err != nil {
		return err
	}
	conversationID := followupConversation
	if conversationID == "" {
		conversationID = sess.ConversationID
	}
	if conversationID == "" {
		return fmt.Errorf("no article to follow up on; generate one with 'hyperknow ask'")
	}

	sp := ui.NewSpinner(ui.StyleSubtle.Render("thinking..."))
	sp.Start()
	first := true
	err = newClient().AskQuestion(ctx, sess.UserID, conversationID, question, func(chunk string) {
		if first {
			sp.Stop()
			first = false
		}
		fmt.Print(chunk)
	})
	if first {
		sp.Stop()
	}
	fmt.Println()
	return err
}
