package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperknow/hyperknow/internal/ui"
)

var booksCmd = &cobra.Command{
	Use:   "books",
	Short: "Manage reference books used to ground generations",
}

var booksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your uploaded reference books",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBooksList(cmd.Context())
	},
}

var booksUploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a reference book for vectorization",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBooksUpload(cmd.Context(), args[0])
	},
}

func init() {
	booksCmd.AddCommand(booksListCmd)
	booksCmd.AddCommand(booksUploadCmd)
	rootCmd.AddCommand(booksCmd)
}

func runBooksList(ctx context.Context) error {
	sess, err := currentSession()
	if err != nil {
		return err
	}
	books, err := newClient().ListBooks(ctx, sess.UserID)
	if err != nil {
		return err
	}
	if len(books) == 0 {
		fmt.Println(ui.StyleSubtle.Render("no reference books uploaded yet"))
		return nil
	}
	for _, b := range books {
		fmt.Printf("%s  %s\n", ui.StyleSubtle.Render(b.ID), ui.StyleTitle.Render(b.Title))
	}
	return nil
}

func runBooksUpload(ctx context.Context, path string) error {
	sess, err := currentSession()
	if err != nil {
		return err
	}
	sp := ui.NewSpinner(ui.StyleSubtle.Render("uploading " + path + "..."))
	sp.Start()
	msg, err := newClient().UploadBook(ctx, sess.UserID, path)
	sp.Stop()
	if err != nil {
		return err
	}
	fmt.Println(ui.StyleSuccess.Render("✓ " + msg))
	return nil
}
