package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/kozaktomas/attendance-kiosk/internal/capture"
	"github.com/kozaktomas/attendance-kiosk/internal/config"
	"github.com/kozaktomas/attendance-kiosk/internal/scan"
)

// KioskSnapshot is the full dashboard view of the kiosk.
type KioskSnapshot struct {
	Running bool              `json:"running"`
	ClassID int64             `json:"class_id"`
	RunID   string            `json:"run_id,omitempty"`
	State   scan.State        `json:"state"`
	Message string            `json:"message,omitempty"`
	Recent  []scan.RecentMark `json:"recent"`
}

// OutcomePayload is the data of an outcome event.
type OutcomePayload struct {
	Outcome  scan.Outcome      `json:"outcome"`
	Decision scan.Decision     `json:"decision"`
	Recent   []scan.RecentMark `json:"recent"`
}

// StartRequest is the body of POST /api/kiosk/start.
type StartRequest struct {
	ClassID int64 `json:"class_id"`
}

// KioskHandler controls the capture scheduler from the dashboard.
type KioskHandler struct {
	EventBroadcaster

	config    *config.Config
	scheduler *scan.Scheduler
	ctx       context.Context
	logger    *slog.Logger

	mu      sync.Mutex
	classID int64
}

// NewKioskHandler creates the handler. Runs started over HTTP live until
// stopped or until ctx is cancelled.
func NewKioskHandler(ctx context.Context, cfg *config.Config, scheduler *scan.Scheduler, logger *slog.Logger) *KioskHandler {
	h := &KioskHandler{
		config:    cfg,
		scheduler: scheduler,
		ctx:       ctx,
		logger:    logger,
		classID:   cfg.Kiosk.ClassID,
	}
	scheduler.Machine().OnChange(func(st scan.State) {
		h.SendEvent(KioskEvent{Type: EventState, Data: st})
	})
	return h
}

// Snapshot returns the current dashboard view.
func (h *KioskHandler) Snapshot() KioskSnapshot {
	h.mu.Lock()
	classID := h.classID
	h.mu.Unlock()

	snap := KioskSnapshot{
		ClassID: classID,
		State:   h.scheduler.Machine().State(),
		Message: h.scheduler.Message(),
		Recent:  []scan.RecentMark{},
	}
	if run := h.scheduler.Current(); run != nil {
		snap.Running = true
		snap.ClassID = int64(run.Target)
		snap.RunID = run.ID
		snap.Recent = run.Recent()
	}
	return snap
}

// Get handles GET /api/kiosk.
func (h *KioskHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Snapshot())
}

// Start handles POST /api/kiosk/start. An empty body starts the configured class.
func (h *KioskHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, errInvalidRequestBody)
			return
		}
	}

	h.mu.Lock()
	if req.ClassID == 0 {
		req.ClassID = h.classID
	}
	if req.ClassID <= 0 {
		h.mu.Unlock()
		respondError(w, http.StatusBadRequest, "class_id is required")
		return
	}
	h.mu.Unlock()

	if err := h.StartRun(req.ClassID); err != nil {
		var acqErr *capture.AcquisitionError
		if errors.As(err, &acqErr) {
			respondJSON(w, http.StatusServiceUnavailable, h.Snapshot())
			return
		}
		if errors.Is(err, scan.ErrStartAborted) {
			respondError(w, http.StatusConflict, "start was cancelled by a stop request")
			return
		}
		h.logger.Error("could not start capture run", "class_id", req.ClassID, "error", err)
		respondError(w, http.StatusInternalServerError, "could not start capture run")
		return
	}

	respondJSON(w, http.StatusOK, h.Snapshot())
}

// StartRun starts a capture run for classID with outcomes streamed to
// the dashboard listeners.
func (h *KioskHandler) StartRun(classID int64) error {
	h.mu.Lock()
	h.classID = classID
	h.mu.Unlock()

	_, err := h.scheduler.Start(h.ctx, scan.Target(classID), h.onOutcome)
	return err
}

// Stop handles POST /api/kiosk/stop.
func (h *KioskHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.scheduler.Stop()
	respondJSON(w, http.StatusOK, h.Snapshot())
}

// Events handles GET /api/kiosk/events (server-sent events).
func (h *KioskHandler) Events(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r, &h.EventBroadcaster, h.Snapshot())
}

func (h *KioskHandler) onOutcome(o scan.Outcome, d scan.Decision) {
	payload := OutcomePayload{Outcome: o, Decision: d, Recent: []scan.RecentMark{}}
	if run := h.scheduler.Current(); run != nil {
		payload.Recent = run.Recent()
	}
	h.SendEvent(KioskEvent{Type: EventOutcome, Data: payload})
}
