package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/config"
	"github.com/kozaktomas/attendance-kiosk/internal/scan"
	"github.com/kozaktomas/attendance-kiosk/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the live attendance dashboard",
	Long: `Start the live attendance web server.
The dashboard shows the scan state and recently recognized students, and
can start and stop the kiosk capture loop. Events are streamed over
server-sent events (/api/kiosk/events) and a websocket (/api/kiosk/ws).`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Bool("autostart", false, "Start scanning KIOSK_CLASS_ID right away")
	addCameraFlags(serveCmd)
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		_, _ = fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return port, host
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	applyCameraFlags(cmd, cfg)
	logger := slog.Default()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	connectCtx, connectCancel := context.WithTimeout(ctx, connectTimeout)
	client, _, err := connect(connectCtx, cfg, logger)
	connectCancel()
	if err != nil {
		return err
	}

	device := newCameraDevice(cfg, mustGetString(cmd, "replay-dir"))
	scheduler := newScheduler(cfg, client, device, scan.LogNotifier{Logger: logger}, logger)

	port, host := resolveServeHostPort(cmd)
	server := web.NewServer(cfg, scheduler, port, host, logger)

	if mustGetBool(cmd, "autostart") && cfg.Kiosk.ClassID > 0 {
		if err := server.Autostart(cfg.Kiosk.ClassID); err != nil {
			logger.Warn("autostart failed", "message", scheduler.Message(), "error", err)
		}
	}

	go func() {
		<-ctx.Done()
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("error during shutdown", "error", err)
		}
	}()

	fmt.Printf("Starting live attendance dashboard on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
