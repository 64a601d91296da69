package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/kozaktomas/attendance-kiosk/internal/config"
	"github.com/kozaktomas/attendance-kiosk/internal/kiosk"
	"github.com/kozaktomas/attendance-kiosk/internal/scan"
	"github.com/spf13/cobra"
)

var kioskCmd = &cobra.Command{
	Use:   "kiosk [class-id]",
	Short: "Run the attendance kiosk for a class",
	Long: `Open the camera and mark attendance for a class by face recognition.

Frames are sampled on a fixed interval and submitted one at a time. The scan
state and the recently recognized students are shown in the terminal; the
terminal bell rings for every newly recognized student.

The class id defaults to KIOSK_CLASS_ID.

Examples:
  attendance-kiosk kiosk 12
  attendance-kiosk kiosk 12 --headless --interval 2s
  attendance-kiosk kiosk 12 --replay-dir ./testdata/faces`,
	Args: cobra.MaximumNArgs(1),
	RunE: runKiosk,
}

func init() {
	rootCmd.AddCommand(kioskCmd)

	addCameraFlags(kioskCmd)
	kioskCmd.Flags().Bool("headless", false, "Log scan results instead of showing the terminal view")
	kioskCmd.Flags().String("log-file", "", "Write logs to this file while the terminal view is shown")
}

func runKiosk(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	applyCameraFlags(cmd, cfg)

	classID := cfg.Kiosk.ClassID
	if len(args) == 1 {
		id, err := parseClassID(args[0])
		if err != nil {
			return err
		}
		classID = id
	}
	if classID <= 0 {
		return errors.New("class id is required (argument or KIOSK_CLASS_ID)")
	}

	headless := mustGetBool(cmd, "headless")
	logger := slog.Default()
	if !headless {
		// The terminal view owns stdout and stderr.
		var (
			closeLog func() error
			err      error
		)
		logger, closeLog, err = tuiLogger(mustGetString(cmd, "log-file"))
		if err != nil {
			return err
		}
		defer closeLog() //nolint:errcheck // nothing left to log to
		slog.SetDefault(logger)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	connectCtx, connectCancel := context.WithTimeout(ctx, connectTimeout)
	client, _, err := connect(connectCtx, cfg, logger)
	connectCancel()
	if err != nil {
		return err
	}

	device := newCameraDevice(cfg, mustGetString(cmd, "replay-dir"))

	if headless {
		scheduler := newScheduler(cfg, client, device, scan.LogNotifier{Logger: logger}, logger)
		return runHeadless(ctx, scheduler, scan.Target(classID), logger)
	}

	scheduler := newScheduler(cfg, client, device, kiosk.Bell{W: os.Stderr}, logger)
	defer scheduler.Stop()

	p := tea.NewProgram(kiosk.New(scheduler, scan.Target(classID)), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("kiosk view failed: %w", err)
	}
	return nil
}

// runHeadless runs the capture loop until ctx is cancelled, logging every
// state change.
func runHeadless(ctx context.Context, scheduler *scan.Scheduler, target scan.Target, logger *slog.Logger) error {
	scheduler.Machine().OnChange(func(st scan.State) {
		logger.Debug("scan state", "state", st.Kind, "label", st.Label)
	})

	run, err := scheduler.Start(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", scheduler.Message(), err)
	}
	logger.Info("kiosk running, press Ctrl+C to stop", "run_id", run.ID)

	<-run.Done()
	run.Wait()
	return nil
}

// tuiLogger returns the logger used while the terminal view is up. Logs are
// discarded unless path is set. The returned func closes the log file.
func tuiLogger(path string) (*slog.Logger, func() error, error) {
	if path == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() error { return nil }, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: parseLevel(logLevel)})), f.Close, nil
}
