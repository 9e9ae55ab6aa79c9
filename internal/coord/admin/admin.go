// Package admin exposes the admin-facing sync actions behind the access
// policy: manual sync, reset, status and history.
package admin

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/cdswerx/cdsync/internal/coord/access"
	"github.com/cdswerx/cdsync/internal/coord/schema"
	"github.com/cdswerx/cdsync/internal/coord/status"
	"github.com/cdswerx/cdsync/internal/coord/syncer"
)

// Coordinator is the part of *syncer.Coordinator the actions need.
type Coordinator interface {
	Run(ctx context.Context, trigger syncer.Trigger) (syncer.PassResult, error)
	Reset(ctx context.Context) error
}

// HistoryReader reads the change log. *store.Store implements it.
type HistoryReader interface {
	ReadHistory(ctx context.Context, limit int) ([]schema.HistoryEntry, error)
	HistorySince(ctx context.Context, since time.Time) ([]schema.HistoryEntry, error)
}

// StatusReporter builds status reports. *status.Reporter implements it.
type StatusReporter interface {
	Status(ctx context.Context) (status.Report, error)
}

// SyncResult is returned by ManualSync.
type SyncResult struct {
	Success bool                 `json:"success"`
	Events  []schema.ChangeEvent `json:"events"`
	Status  status.Report        `json:"status"`
	Error   string               `json:"error,omitempty"`
}

// Config holds what a Service is built from.
type Config struct {
	Coordinator Coordinator
	Reporter    StatusReporter
	History     HistoryReader

	// Policy defaults to deny-all when nil.
	Policy access.Policy

	// Logger (default: stderr with "[admin] " prefix)
	Logger *log.Logger
}

// Service implements the admin actions.
type Service struct {
	coord    Coordinator
	reporter StatusReporter
	history  HistoryReader
	policy   access.Policy
	logger   *log.Logger
}

type denyAll struct{}

func (denyAll) CanAccess(user, resource string) bool { return false }

// New creates a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Coordinator == nil {
		return nil, fmt.Errorf("coordinator cannot be nil")
	}
	if cfg.Reporter == nil {
		return nil, fmt.Errorf("reporter cannot be nil")
	}
	if cfg.History == nil {
		return nil, fmt.Errorf("history cannot be nil")
	}
	if cfg.Policy == nil {
		cfg.Policy = denyAll{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[admin] ", log.LstdFlags)
	}
	return &Service{
		coord:    cfg.Coordinator,
		reporter: cfg.Reporter,
		history:  cfg.History,
		policy:   cfg.Policy,
		logger:   cfg.Logger,
	}, nil
}

func (s *Service) authorize(user, resource string) error {
	if s.policy.CanAccess(user, resource) {
		return nil
	}
	s.logger.Printf("WARNING: %q denied %s", user, resource)
	return fmt.Errorf("%s for %q: %w", resource, user, schema.ErrAccessDenied)
}

// ManualSync runs one pass synchronously and returns its outcome with the
// resulting status. Running it twice in a row yields no events the second
// time.
//
// The returned error is only set for access denial or a cancelled context;
// persistence problems are reported through SyncResult.Success and Error.
func (s *Service) ManualSync(ctx context.Context, user string) (SyncResult, error) {
	if err := s.authorize(user, access.ResourceRun); err != nil {
		return SyncResult{}, err
	}

	res, err := s.coord.Run(ctx, syncer.TriggerManual)
	if err != nil {
		return SyncResult{}, fmt.Errorf("failed to run sync: %w", err)
	}

	out := SyncResult{Success: res.SaveErr == nil, Events: res.Events}
	if out.Events == nil {
		out.Events = []schema.ChangeEvent{}
	}
	if res.SaveErr != nil {
		out.Error = res.SaveErr.Error()
	}

	report, err := s.reporter.Status(ctx)
	if err != nil {
		s.logger.Printf("WARNING: sync ran but status is unavailable: %v", err)
		out.Success = false
		if out.Error == "" {
			out.Error = err.Error()
		}
	}
	out.Status = report
	return out, nil
}

// ResetSync clears the stored snapshot and the compatibility cache.
func (s *Service) ResetSync(ctx context.Context, user string) error {
	if err := s.authorize(user, access.ResourceReset); err != nil {
		return err
	}
	if err := s.coord.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset sync: %w", err)
	}
	s.logger.Printf("Sync reset by %q", user)
	return nil
}

// Status returns the live status report.
func (s *Service) Status(ctx context.Context, user string) (status.Report, error) {
	if err := s.authorize(user, access.ResourceStatus); err != nil {
		return status.Report{}, err
	}
	return s.reporter.Status(ctx)
}

// History returns up to limit entries, newest first. limit <= 0 means all.
func (s *Service) History(ctx context.Context, user string, limit int) ([]schema.HistoryEntry, error) {
	if err := s.authorize(user, access.ResourceHistory); err != nil {
		return nil, err
	}
	return s.history.ReadHistory(ctx, limit)
}

// HistorySince returns entries at or after since, newest first.
func (s *Service) HistorySince(ctx context.Context, user string, since time.Time) ([]schema.HistoryEntry, error) {
	if err := s.authorize(user, access.ResourceHistory); err != nil {
		return nil, err
	}
	return s.history.HistorySince(ctx, since)
}
