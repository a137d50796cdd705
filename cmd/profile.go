package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperknow/hyperknow/client"
	"github.com/hyperknow/hyperknow/internal/ui"
)

var profileSet []string

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "View or update your profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProfile(cmd.Context())
	},
}

func init() {
	profileCmd.Flags().StringArrayVar(&profileSet, "set", nil, "set a profile field, as key=value (repeatable)")
	rootCmd.AddCommand(profileCmd)
}

func runProfile(ctx context.Context) error {
	sess, err := currentSession()
	if err != nil {
		return err
	}
	c := newClient()

	profile, err := c.GetProfile(ctx, sess.UserID)
	if err != nil {
		return err
	}
	if profile == nil {
		profile = client.Profile{}
	}

	if len(profileSet) > 0 {
		for _, kv := range profileSet {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				return fmt.Errorf("invalid --set %q, expected key=value", kv)
			}
			profile[k] = v
		}
		if err := c.SaveProfile(ctx, sess.UserID, profile); err != nil {
			return err
		}
		fmt.Println(ui.StyleSuccess.Render("✓ profile updated"))
	}

	keys := make([]string, 0, len(profile))
	for k := range profile {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%s: %v\n", ui.StyleSubtle.Render(k), profile[k])
	}
	return nil
}
