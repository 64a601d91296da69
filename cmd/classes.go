package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/kozaktomas/attendance-kiosk/internal/config"
	"github.com/spf13/cobra"
)

var classesCmd = &cobra.Command{
	Use:   "classes",
	Short: "List the classes visible to the kiosk account",
	Long:  `List the Attendu classes the configured account can mark attendance for.`,
	RunE:  runClasses,
}

func init() {
	rootCmd.AddCommand(classesCmd)
	classesCmd.Flags().Bool("json", false, "Output as JSON")
}

func runClasses(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	client, _, err := connect(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}

	classes, err := client.ListClasses(ctx)
	if err != nil {
		return fmt.Errorf("failed to list classes: %w", err)
	}

	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(classes)
	}

	if len(classes) == 0 {
		fmt.Println("No classes found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTEACHER\tSTUDENTS")
	for _, c := range classes {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\n", c.ID, c.Name, c.Teacher, c.Students)
	}
	return w.Flush()
}
