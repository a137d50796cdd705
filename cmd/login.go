package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/hyperknow/hyperknow/internal/ui"
	"github.com/hyperknow/hyperknow/store"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and persist the session locally",
	RunE: func(cmd *cobra.Command, args []string) error {
		return authenticate(cmd.Context(), false)
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and sign in",
	RunE: func(cmd *cobra.Command, args []string) error {
		return authenticate(cmd.Context(), true)
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ss, err := sessionStore()
		if err != nil {
			return err
		}
		if err := ss.Clear(); err != nil {
			return err
		}
		fmt.Println(ui.StyleSuccess.Render("✓ logged out"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(logoutCmd)
}

func authenticate(ctx context.Context, register bool) error {
	email, password, err := promptCredentials()
	if err != nil {
		return err
	}

	c := newClient()

	var userID string
	if register {
		userID, err = c.Register(ctx, email, password)
	} else {
		userID, err = c.Login(ctx, email, password)
	}
	if err != nil {
		return err
	}

	ss, err := sessionStore()
	if err != nil {
		return err
	}
	if err := ss.Save(store.Session{UserID: userID, Email: email}); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}

	t := newTelemetry()
	defer func() { _ = t.Close() }()
	if register {
		t.Track("account_registered", nil)
	} else {
		t.Track("logged_in", nil)
	}

	fmt.Println(ui.StyleSuccess.Render("✓ signed in as ") + ui.StyleTitle.Render(email))
	return nil
}

// promptCredentials reads the email from stdin and the password without echo.
func promptCredentials() (string, string, error) {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("email: ")
	email, err := reader.ReadString('\n')
	if err != nil {
		return "", "", fmt.Errorf("reading email: %w", err)
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return "", "", fmt.Errorf("email must not be empty")
	}

	fmt.Print("password: ")
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", "", fmt.Errorf("reading password: %w", err)
	}
	password := strings.TrimSpace(string(raw))
	if password == "" {
		return "", "", fmt.Errorf("password must not be empty")
	}
	return email, password, nil
}
