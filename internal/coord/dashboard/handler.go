package dashboard

import (
	"context"
	"log"
	"time"

	"github.com/cdswerx/cdsync/internal/coord/schema"
	"github.com/cdswerx/cdsync/internal/coord/status"
	"github.com/cdswerx/cdsync/internal/coord/syncer"
)

// PassCompleteData contains pass completion information
type PassCompleteData struct {
	Trigger       syncer.Trigger       `json:"trigger"`
	Events        []schema.ChangeEvent `json:"events"`
	Components    int                  `json:"components"`
	HandlerErrors int                  `json:"handler_errors"`
	SaveError     string               `json:"save_error,omitempty"`
	Duration      time.Duration        `json:"duration"`
}

// Reporter builds status reports. *status.Reporter implements it.
type Reporter interface {
	Status(ctx context.Context) (status.Report, error)
}

// Handler turns coordinator passes into dashboard messages.
// Subscribe OnPass to the coordinator.
type Handler struct {
	server   *Server
	reporter Reporter
	logger   *log.Logger
}

// NewHandler creates a new event handler connected to a dashboard server
func NewHandler(server *Server, reporter Reporter, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{server: server, reporter: reporter, logger: logger}
}

// OnPass broadcasts pass_complete followed by a fresh status.
func (h *Handler) OnPass(res syncer.PassResult) {
	data := PassCompleteData{
		Trigger:       res.Trigger,
		Events:        res.Events,
		Components:    res.Snapshot.Len(),
		HandlerErrors: len(res.HandlerErrors),
		Duration:      res.FinishedAt.Sub(res.StartedAt),
	}
	if data.Events == nil {
		data.Events = []schema.ChangeEvent{}
	}
	if res.SaveErr != nil {
		data.SaveError = res.SaveErr.Error()
	}
	if res.Changed() {
		h.logger.Printf("Pass (%s) changed %d components", res.Trigger, len(res.Events))
	}

	h.server.BroadcastData(MessageTypePassComplete, data)
	h.BroadcastStatus(context.Background())
}

// BroadcastStatus sends the current status report to every client.
func (h *Handler) BroadcastStatus(ctx context.Context) {
	report, err := h.reporter.Status(ctx)
	if err != nil {
		h.logger.Printf("WARNING: cannot broadcast status: %v", err)
		return
	}
	h.server.BroadcastData(MessageTypeStatus, report)
}
