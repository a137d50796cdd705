package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/hyperknow/hyperknow/internal/ui"
	"github.com/hyperknow/hyperknow/models"
	"github.com/hyperknow/hyperknow/pipeline"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Browse previously generated articles",
}

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your generated articles",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runArchiveList(cmd.Context())
	},
}

var archiveShowCmd = &cobra.Command{
	Use:   "show [conversation-id]",
	Short: "Show one article from the archive",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := ""
		if len(args) > 0 {
			id = args[0]
		}
		return runArchiveShow(cmd.Context(), id)
	},
}

var archiveSearchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Search your local article history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runArchiveSearch(args[0])
	},
}

func init() {
	archiveCmd.AddCommand(archiveListCmd)
	archiveCmd.AddCommand(archiveShowCmd)
	archiveCmd.AddCommand(archiveSearchCmd)
	rootCmd.AddCommand(archiveCmd)
}

func runArchiveList(ctx context.Context) error {
	sess, err := currentSession()
	if err != nil {
		return err
	}
	articles, err := newClient().ListExplanations(ctx, sess.UserID)
	if err != nil {
		return err
	}
	if len(articles) == 0 {
		fmt.Println(ui.StyleSubtle.Render("no articles yet; generate one with 'hyperknow ask'"))
		return nil
	}
	printArticleTable(articles)
	return nil
}

func runArchiveShow(ctx context.Context, conversationID string) error {
	sess, err := currentSession()
	if err != nil {
		return err
	}
	c := newClient()

	if conversationID == "" {
		conversationID, err = selectArticleInteractive(ctx, sess.UserID)
		if err != nil {
			return err
		}
	}

	markdown, err := c.FetchArticle(ctx, sess.UserID, conversationID)
	if err != nil {
		return err
	}

	// Archive views fetch the section state exactly once, for the outline
	// header; there is nothing to poll.
	p := pipeline.New(c, pipeline.Options{UserID: sess.UserID, ConversationID: conversationID})
	p.RunArchive(ctx)
	var sections []models.Section
	for u := range p.Updates() {
		if u.Kind == pipeline.UpdateSections {
			sections = u.Sections
		}
	}

	if len(sections) > 0 {
		fmt.Println(ui.StyleTitle.Render("Outline"))
		for _, s := range sections {
			fmt.Println("  • " + s.Title)
		}
		fmt.Println()
	}
	fmt.Print(ui.RenderMarkdown(markdown, 100))
	fmt.Println(ui.StyleSubtle.Render(ui.ComputeStats(markdown).String()))
	return nil
}

func runArchiveSearch(term string) error {
	sess, err := currentSession()
	if err != nil {
		return err
	}
	h, err := openHistory()
	if err != nil {
		return err
	}
	defer func() { _ = h.Close() }()

	articles, err := h.Search(sess.UserID, term)
	if err != nil {
		return err
	}
	if len(articles) == 0 {
		fmt.Println(ui.StyleSubtle.Render("no matches in local history"))
		return nil
	}
	printArticleTable(articles)
	return nil
}

// selectArticleInteractive lets the user pick an article from the remote
// archive listing.
func selectArticleInteractive(ctx context.Context, userID string) (string, error) {
	articles, err := newClient().ListExplanations(ctx, userID)
	if err != nil {
		return "", err
	}
	if len(articles) == 0 {
		return "", fmt.Errorf("no articles in the archive")
	}

	templates := &promptui.SelectTemplates{
		Label:    "{{ . }}?",
		Active:   `> {{ .Topic | cyan }} ({{ .WordCount }} words)`,
		Inactive: `  {{ .Topic | faint }} ({{ .WordCount }} words)`,
		Selected: `{{ "✔" | green }} {{ .Topic | faint }}`,
	}
	searcher := func(input string, index int) bool {
		return strings.Contains(strings.ToLower(articles[index].Topic), strings.ToLower(input))
	}
	prompt := promptui.Select{
		Label:     "Pick an article",
		Items:     articles,
		Templates: templates,
		Searcher:  searcher,
	}
	i, _, err := prompt.Run()
	if err != nil {
		return "", err
	}
	return articles[i].ConversationID, nil
}

func printArticleTable(articles []models.Article) {
	for _, a := range articles {
		when := ""
		if !a.GeneratedAt.IsZero() {
			when = a.GeneratedAt.Format("2006-01-02")
		}
		fmt.Printf("%s  %s  %s\n",
			ui.StyleSubtle.Render(a.ConversationID),
			ui.StyleTitle.Render(a.Topic),
			ui.StyleSubtle.Render(fmt.Sprintf("%s · %d words · ~%d min", when, a.WordCount, a.ReadingTime)))
	}
}
