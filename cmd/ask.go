package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/hyperknow/hyperknow/client"
	"github.com/hyperknow/hyperknow/internal/ui"
	"github.com/hyperknow/hyperknow/models"
	"github.com/hyperknow/hyperknow/pipeline"
)

var (
	askBooks       []string
	askNoWebsearch bool
	askComment     string
	askPlain       bool
)

var askCmd = &cobra.Command{
	Use:   "ask \"question\"",
	Short: "Generate an explanation article for a question",
	Long: `Submits the question, follows the generation live, and records the
finished article into local history. Use --books to ground the generation in
your uploaded reference books and --no-websearch to skip web sources.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAsk(cmd.Context(), args[0])
	},
}

func init() {
	askCmd.Flags().StringSliceVar(&askBooks, "books", nil, "reference book ids to ground the generation in")
	askCmd.Flags().BoolVar(&askNoWebsearch, "no-websearch", false, "skip web search, use only reference books")
	askCmd.Flags().StringVar(&askComment, "comment", "", "additional instructions for the generation")
	askCmd.Flags().BoolVar(&askPlain, "plain", false, "line-oriented output instead of the live view")
	rootCmd.AddCommand(askCmd)
}

func runAsk(ctx context.Context, query string) error {
	sess, err := currentSession()
	if err != nil {
		return err
	}
	config := GetConfig()
	c := newClient()

	t := newTelemetry()
	defer func() { _ = t.Close() }()
	t.Track("ask_started", nil)

	job := models.Job{
		UserID:    sess.UserID,
		Query:     query,
		BookIDs:   askBooks,
		WebSearch: !askNoWebsearch,
		Comments:  askComment,
	}
	job.ConversationID, err = c.SubmitQuery(ctx, job)
	if err != nil {
		return err
	}
	verbosef("conversation %s started", job.ConversationID)

	// Remember the conversation so an interrupted run can be resumed.
	if ss, serr := sessionStore(); serr == nil {
		_ = ss.SetConversation(job.ConversationID, query)
	}

	stream, err := c.OpenEventStream(ctx, job)
	if err != nil {
		return err
	}
	defer stream.Close()

	p := pipeline.New(c, pipeline.Options{
		UserID:          sess.UserID,
		ConversationID:  job.ConversationID,
		ContentInterval: config.Polling.ContentInterval,
		SectionInterval: config.Polling.SectionInterval,
		MaxBackoff:      config.Polling.MaxBackoff,
		StallTimeout:    config.Polling.StallTimeout,
	})
	p.Start(ctx, stream.Messages())
	defer p.Stop()

	if askPlain || !term.IsTerminal(int(os.Stdout.Fd())) {
		err = followPlain(p.Updates())
	} else {
		err = followTUI(query, p.Updates())
	}
	if err != nil {
		return err
	}

	// The stream never reconnects; a mid-run drop is reported here and the
	// pollers see the run through on their own. Close first so Err does not
	// wait on a still-open connection.
	stream.Close()
	if serr := stream.Err(); serr != nil {
		fmt.Fprintln(os.Stderr, ui.StyleWarning.Render("warning: "+serr.Error()))
	}

	final := p.Snapshot()
	if !final.IsComplete {
		// Interrupted or stalled; the run can be picked up with resume.
		fmt.Fprintln(os.Stderr, ui.StyleWarning.Render("generation not finished; run 'hyperknow resume' to re-attach"))
		return nil
	}

	finish(ctx, c, sess.UserID, job.ConversationID, query, final.Markdown)
	t.Track("ask_completed", nil)
	return nil
}

// followTUI runs the live view until the pipeline ends or the user quits.
func followTUI(query string, updates <-chan pipeline.Update) error {
	model := ui.NewWatchModel(query, updates)
	prog := tea.NewProgram(model, tea.WithAltScreen())
	final, err := prog.Run()
	if err != nil {
		return fmt.Errorf("live view failed: %w", err)
	}
	if m, ok := final.(ui.WatchModel); ok && m.Err != nil {
		return m.Err
	}
	return nil
}

// followPlain consumes pipeline updates as log lines, for scripts and
// non-TTY output.
func followPlain(updates <-chan pipeline.Update) error {
	var lastErr error
	for u := range updates {
		switch u.Kind {
		case pipeline.UpdatePhase:
			fmt.Fprintln(os.Stderr, ui.StyleSubtle.Render("phase: "+string(u.Phase)))
		case pipeline.UpdateSections:
			done := 0
			for _, s := range u.Sections {
				if s.Status == models.SectionComplete {
					done++
				}
			}
			fmt.Fprintf(os.Stderr, "sections: %d/%d complete\n", done, len(u.Sections))
		case pipeline.UpdateWarning:
			fmt.Fprintln(os.Stderr, ui.StyleWarning.Render("warning: "+u.Err.Error()))
		case pipeline.UpdateStalled:
			lastErr = u.Err
		case pipeline.UpdateDone:
			fmt.Println(u.Content.Markdown)
		}
	}
	return lastErr
}

// finish records the completed article locally and fetches the one-time
// diagram and related-topics enrichment.
func finish(ctx context.Context, c *client.Client, userID, conversationID, query, markdown string) {
	stats := ui.ComputeStats(markdown)
	if h, err := openHistory(); err == nil {
		defer func() { _ = h.Close() }()
		_ = h.Record(models.Article{
			ConversationID: conversationID,
			UserID:         userID,
			Topic:          query,
			Markdown:       markdown,
			GeneratedAt:    time.Now(),
			ReadingTime:    stats.ReadingTime,
			WordCount:      stats.Words,
			CharacterCount: stats.Characters,
		})
	}

	fmt.Println(ui.StyleSubtle.Render(stats.String()))

	extras, err := c.FetchDiagramAndTopics(ctx, userID, conversationID)
	if err != nil {
		verbosef("diagram fetch failed: %v", err)
		return
	}
	if extras.Diagram != "" {
		fmt.Println(ui.StyleTitle.Render("Concept diagram"))
		fmt.Println(extras.Diagram)
	}
	if len(extras.RelatedTopics) > 0 {
		fmt.Println(ui.StyleTitle.Render("Related topics"))
		fmt.Println("  " + strings.Join(extras.RelatedTopics, ", "))
	}
}
