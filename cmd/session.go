package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/attendu"
	"github.com/kozaktomas/attendance-kiosk/internal/capture"
	"github.com/kozaktomas/attendance-kiosk/internal/config"
	"github.com/kozaktomas/attendance-kiosk/internal/scan"
	"github.com/spf13/cobra"
)

// connect creates an Attendu client and makes sure it has a session, either
// from a still valid refresh cookie or by logging in with the configured
// credentials.
func connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*attendu.Client, *attendu.SessionStore, error) {
	client, err := attendu.NewClient(cfg.Attendu.URL, attendu.WithLogger(logger))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Attendu client: %w", err)
	}
	if captureDir != "" {
		if err := client.SetCaptureDir(captureDir); err != nil {
			return nil, nil, err
		}
	}

	store := attendu.NewSessionStore()
	session, err := attendu.EnsureSession(ctx, client, store, cfg.Attendu.Email, cfg.Attendu.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to Attendu at %s: %w", cfg.Attendu.URL, err)
	}
	if session.User != nil {
		logger.Info("logged in", "user", session.User.Email, "role", session.User.Role)
	} else {
		logger.Info("session restored")
	}
	return client, store, nil
}

// addCameraFlags registers the flags shared by the commands that open a camera.
func addCameraFlags(cmd *cobra.Command) {
	cmd.Flags().String("replay-dir", "", "Replay images from this directory instead of opening a camera")
	cmd.Flags().String("device", "", "Camera device node (defaults to KIOSK_DEVICE)")
	cmd.Flags().Duration("interval", 0, "Capture interval (defaults to KIOSK_INTERVAL_MS)")
	cmd.Flags().Duration("cooldown", 0, "Per-student cue cooldown (defaults to KIOSK_COOLDOWN_MS)")
}

// applyCameraFlags overrides the configuration with camera flags that were set.
func applyCameraFlags(cmd *cobra.Command, cfg *config.Config) {
	if device := mustGetString(cmd, "device"); device != "" {
		cfg.Camera.Device = device
	}
	if interval := mustGetDuration(cmd, "interval"); interval > 0 {
		cfg.Kiosk.Interval = interval
	}
	if cooldown := mustGetDuration(cmd, "cooldown"); cooldown > 0 {
		cfg.Kiosk.Cooldown = cooldown
	}
}

// newCameraDevice returns the replay device when replayDir is set, otherwise
// the ffmpeg-backed camera.
func newCameraDevice(cfg *config.Config, replayDir string) capture.Device {
	if replayDir != "" {
		return capture.NewDirDevice(replayDir)
	}
	return capture.NewFFmpegDevice(cfg.Camera.FFmpegPath, cfg.Camera.Device)
}

// newScheduler wires camera, sampler and Attendu client into a scheduler.
func newScheduler(cfg *config.Config, client scan.Submitter, device capture.Device, notifier scan.Notifier, logger *slog.Logger) *scan.Scheduler {
	source := capture.NewSource(device, capture.Constraints{
		FacingMode: cfg.Camera.FacingMode,
		Width:      cfg.Camera.Width,
		Height:     cfg.Camera.Height,
	})
	return scan.NewScheduler(source, capture.NewSampler(cfg.Camera.JPEGQuality), client, scan.NewStateMachine(cfg.Scan), scan.Options{
		Interval:    cfg.Kiosk.Interval,
		Cooldown:    cfg.Kiosk.Cooldown,
		RecentLimit: cfg.Kiosk.RecentLimit,
		Notifier:    notifier,
		Logger:      logger,
	})
}

// connectTimeout bounds the initial session setup of a command.
const connectTimeout = 30 * time.Second
