package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/kozaktomas/attendance-kiosk/internal/capture"
	"github.com/kozaktomas/attendance-kiosk/internal/config"
	"github.com/kozaktomas/attendance-kiosk/internal/scan"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var markCmd = &cobra.Command{
	Use:   "mark <class-id> <image>...",
	Short: "Mark attendance from stored images",
	Long: `Submit stored images to the recognition endpoint of a class, one at a
time, and print how each was classified. Images are re-encoded the same way
camera frames are.

Example:
  attendance-kiosk mark 12 ./photos/*.jpg`,
	Args: cobra.MinimumNArgs(2),
	RunE: runMark,
}

func init() {
	rootCmd.AddCommand(markCmd)
	markCmd.Flags().Bool("json", false, "Output as JSON")
}

// markFileResult is the classification of one submitted file.
type markFileResult struct {
	File    string       `json:"file"`
	Outcome scan.Outcome `json:"outcome"`
	Error   string       `json:"error,omitempty"`
}

func runMark(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	jsonOutput := mustGetBool(cmd, "json")

	classID, err := parseClassID(args[0])
	if err != nil {
		return err
	}
	files := args[1:]

	ctx := context.Background()
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	client, _, err := connect(connectCtx, cfg, slog.Default())
	cancel()
	if err != nil {
		return err
	}

	sampler := capture.NewSampler(cfg.Camera.JPEGQuality)

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetDescription("Marking attendance"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionFullWidth(),
		)
	}

	results := make([]markFileResult, 0, len(files))
	for _, file := range files {
		result := markFileResult{File: file}

		blob, err := sampler.SampleFile(file)
		if err != nil {
			result.Error = err.Error()
		} else {
			res, err := client.MarkAttendanceFromFrame(ctx, classID, blob.Data)
			result.Outcome = scan.FromResult(res, err)
		}
		results = append(results, result)

		if bar != nil {
			_ = bar.Add(1)
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tRESULT\tSTUDENT\tDISTANCE")
	counts := make(map[scan.Kind]int)
	for _, r := range results {
		name := filepath.Base(r.File)
		if r.Error != "" {
			fmt.Fprintf(w, "%s\tunreadable\t%s\t\n", name, r.Error)
			continue
		}
		counts[r.Outcome.Kind]++
		switch r.Outcome.Kind {
		case scan.KindMatched:
			student := r.Outcome.SubjectName
			if r.Outcome.AlreadyMarked {
				student += " (already)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%.3f\n", name, r.Outcome.Kind, student, r.Outcome.Distance)
		default:
			fmt.Fprintf(w, "%s\t%s\t%s\t\n", name, r.Outcome.Kind, r.Outcome.Message)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\n%d matched, %d unknown, %d no face, %d failed\n",
		counts[scan.KindMatched], counts[scan.KindUnknown], counts[scan.KindNoFace],
		counts[scan.KindDisabled]+counts[scan.KindTransportError])
	return nil
}
