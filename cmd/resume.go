package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/hyperknow/hyperknow/internal/ui"
	"github.com/hyperknow/hyperknow/pipeline"
)

var resumePlain bool

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Re-attach to the last generation run",
	Long: `Picks up the conversation recorded by the last 'ask' and polls it to
completion. The original event stream is gone, so phase markers are not
available; the run is followed through the progress endpoints alone.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runResume(cmd.Context())
	},
}

func init() {
	resumeCmd.Flags().BoolVar(&resumePlain, "plain", false, "line-oriented output instead of the live view")
	rootCmd.AddCommand(resumeCmd)
}

func runResume(ctx context.Context) error {
	sess, err := currentSession()
	if err != nil {
		return err
	}
	if sess.ConversationID == "" {
		return fmt.Errorf("no generation to resume; start one with 'hyperknow ask'")
	}
	config := GetConfig()
	c := newClient()

	p := pipeline.New(c, pipeline.Options{
		UserID:          sess.UserID,
		ConversationID:  sess.ConversationID,
		ContentInterval: config.Polling.ContentInterval,
		SectionInterval: config.Polling.SectionInterval,
		MaxBackoff:      config.Polling.MaxBackoff,
		StallTimeout:    config.Polling.StallTimeout,
	})
	p.Resume(ctx)
	defer p.Stop()

	if resumePlain || !term.IsTerminal(int(os.Stdout.Fd())) {
		err = followPlain(p.Updates())
	} else {
		err = followTUI(sess.Query, p.Updates())
	}
	if err != nil {
		return err
	}

	final := p.Snapshot()
	if !final.IsComplete {
		fmt.Fprintln(os.Stderr, ui.StyleWarning.Render("generation still not finished"))
		return nil
	}
	finish(ctx, c, sess.UserID, sess.ConversationID, sess.Query, final.Markdown)
	return nil
}
