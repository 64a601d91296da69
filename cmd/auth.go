package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kozaktomas/attendance-kiosk/internal/attendu"
	"github.com/kozaktomas/attendance-kiosk/internal/config"
	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Check the Attendu session",
	Long: `Refresh the Attendu session or log in with ATTENDU_EMAIL and
ATTENDU_PASSWORD, and print the account the kiosk acts as.`,
	RunE: runAuth,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.Flags().Bool("logout", false, "Log out again after checking")
}

func runAuth(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	client, store, err := connect(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}

	session := store.Get()
	fmt.Printf("Attendu:  %s\n", cfg.Attendu.URL)
	if session.User != nil {
		fmt.Printf("User:     %s <%s>\n", session.User.Name, session.User.Email)
		fmt.Printf("Role:     %s\n", session.User.Role)
	} else {
		fmt.Println("User:     (session restored from refresh cookie)")
	}

	if mustGetBool(cmd, "logout") {
		if err := attendu.Logout(ctx, client, store); err != nil {
			return fmt.Errorf("failed to log out: %w", err)
		}
		fmt.Println("Logged out")
	}
	return nil
}
