// Package usage runs refresh cycles against the usage reporters, records the
// results in the store, and derives the dashboard series from it.
package usage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wesm/vibepulse/internal/datekey"
	"github.com/wesm/vibepulse/internal/logger"
	"github.com/wesm/vibepulse/internal/models"
	"github.com/wesm/vibepulse/internal/services/fetcher"
	"github.com/wesm/vibepulse/internal/settings"
)

// Status messages
const (
	StatusNoTools             = "Enable Claude Code or Codex in settings."
	StatusDatabaseUnavailable = "Database unavailable. Running without persistence."
)

// maintenanceInterval is the minimum gap between automatic maintenance runs.
const maintenanceInterval = 24 * time.Hour

// ErrNoToolsEnabled is reported when a refresh finds every tool disabled.
var ErrNoToolsEnabled = errors.New("no tools enabled")

// Store is the persistence the service reads and writes.
type Store interface {
	UpsertDailyTotals(tool models.Tool, totals []models.DailyTotal) error
	InsertSample(tool models.Tool, totalCost float64, recordedAt time.Time) error
	FetchSamples(tool models.Tool, from, to time.Time) []models.Sample
	FetchDailyRollups(sinceDateKey string) []models.DailyRollup
	DailyTotal(dateKey string, tool models.Tool) (float64, bool)
	LatestSample(dateKey string, tool models.Tool) (models.Sample, bool)
	BackfillSampleDeltas() (int, error)
	NormalizeDailyRollupDates(tool models.Tool) (int, error)
	Vacuum() error
}

// Preferences supplies the user settings the service depends on.
type Preferences interface {
	Get() settings.Settings
	RecordMaintenance(at time.Time) error
}

// Event represents a usage service event.
type Event struct {
	Refresh     *RefreshResult
	Maintenance *MaintenanceResult
	Type        EventType
}

// EventType defines the type of usage event.
type EventType int

const (
	EventRefreshStarted EventType = iota
	EventRefreshFinished
	EventMaintenanceStarted
	EventMaintenanceFinished
)

// Service coordinates refreshes, maintenance and polling.
type Service struct {
	lastUpdated       time.Time
	store             Store
	fetcher           fetcher.Fetcher
	prefs             Preferences
	now               func() time.Time
	eventChan         chan Event
	stopChan          chan struct{}
	resetChan         chan time.Duration
	status            string
	maintenanceStatus string
	initialDelay      time.Duration
	mu                sync.RWMutex
	stopOnce          sync.Once
	startOnce         sync.Once
	refreshing        bool
	maintaining       bool
}

// New creates a usage service.
func New(store Store, f fetcher.Fetcher, prefs Preferences) *Service {
	return &Service{
		store:        store,
		fetcher:      f,
		prefs:        prefs,
		now:          time.Now,
		eventChan:    make(chan Event, 32),
		stopChan:     make(chan struct{}),
		resetChan:    make(chan time.Duration, 1),
		initialDelay: 5 * time.Second,
	}
}

// Events returns the event channel.
func (s *Service) Events() <-chan Event {
	return s.eventChan
}

// SetStatus replaces the status message shown to the user.
func (s *Service) SetStatus(msg string) {
	s.mu.Lock()
	s.status = msg
	s.mu.Unlock()
}

// Refresh runs one refresh cycle over every enabled tool. Tools are fetched
// one after another and a failing tool never stops the others. A cycle that
// starts while another is running is skipped.
func (s *Service) Refresh(ctx context.Context) RefreshResult {
	tools := s.prefs.Get().EnabledTools()
	if len(tools) == 0 {
		s.SetStatus(StatusNoTools)
		return RefreshResult{NoTools: true}
	}

	s.mu.Lock()
	if s.refreshing {
		s.mu.Unlock()
		return RefreshResult{Skipped: true}
	}
	s.refreshing = true
	s.status = ""
	s.mu.Unlock()

	result := RefreshResult{
		RunID:     uuid.NewString(),
		StartedAt: s.now(),
		Tools:     tools,
		TodayCost: make(map[models.Tool]float64, len(tools)),
	}
	s.sendEvent(Event{Type: EventRefreshStarted, Refresh: &RefreshResult{
		RunID:     result.RunID,
		StartedAt: result.StartedAt,
		Tools:     tools,
	}})

	todayKey := datekey.FromTime(result.StartedAt)
	for _, tool := range tools {
		cost, recorded, err := s.refreshTool(ctx, tool, todayKey)
		if err != nil {
			logger.Warn("refresh failed", "run_id", result.RunID, "tool", tool.String(), "error", err)
			result.Errors = append(result.Errors, ToolError{Tool: tool, Err: err})
			continue
		}
		if recorded {
			result.TodayCost[tool] = cost
		}
	}
	result.FinishedAt = s.now()

	s.mu.Lock()
	if len(result.Errors) > 0 {
		s.status = result.Status()
	} else {
		s.lastUpdated = result.FinishedAt
	}
	s.refreshing = false
	s.mu.Unlock()

	logger.Info("refresh finished", "run_id", result.RunID, "tools", len(tools),
		"errors", len(result.Errors), "duration", result.FinishedAt.Sub(result.StartedAt))
	finished := result
	s.sendEvent(Event{Type: EventRefreshFinished, Refresh: &finished})
	return result
}

// refreshTool stores the tool's daily totals and, when today is among them,
// a sample of today's running total.
func (s *Service) refreshTool(ctx context.Context, tool models.Tool, todayKey string) (float64, bool, error) {
	totals, err := s.fetcher.FetchDailyTotals(ctx, tool)
	if err != nil {
		return 0, false, err
	}
	if err := s.store.UpsertDailyTotals(tool, totals); err != nil {
		return 0, false, err
	}

	for _, total := range totals {
		if total.DateKey != todayKey {
			continue
		}
		if err := s.store.InsertSample(tool, total.Cost, s.now()); err != nil {
			return 0, false, err
		}
		return total.Cost, true, nil
	}
	return 0, false, nil
}

// RunMaintenance repairs stored deltas and date keys. Unless force is set it
// only runs in automatic mode, and then at most once per day.
func (s *Service) RunMaintenance(force bool) MaintenanceResult {
	prefs := s.prefs.Get()
	if !force {
		if prefs.MaintenanceMode != models.MaintenanceAutomatic {
			return MaintenanceResult{}
		}
		if !prefs.LastMaintenanceAt.IsZero() && s.now().Sub(prefs.LastMaintenanceAt) < maintenanceInterval {
			return MaintenanceResult{}
		}
	}

	s.mu.Lock()
	if s.maintaining {
		s.mu.Unlock()
		return MaintenanceResult{}
	}
	s.maintaining = true
	s.maintenanceStatus = ""
	s.mu.Unlock()

	s.sendEvent(Event{Type: EventMaintenanceStarted})

	result := MaintenanceResult{Ran: true}
	result.SamplesUpdated, result.Err = s.store.BackfillSampleDeltas()
	if result.Err == nil {
		result.RollupsNormalized, result.Err = s.store.NormalizeDailyRollupDates(models.ToolCodex)
	}
	result.FinishedAt = s.now()

	if result.Err != nil {
		logger.Error("maintenance failed", "error", result.Err)
	} else {
		if result.SamplesUpdated+result.RollupsNormalized > 0 {
			if err := s.store.Vacuum(); err != nil {
				logger.Warn("vacuum after maintenance failed", "error", err)
			}
		}
		if err := s.prefs.RecordMaintenance(result.FinishedAt); err != nil {
			logger.Warn("failed to record maintenance time", "error", err)
		}
	}

	s.mu.Lock()
	s.maintenanceStatus = result.Message()
	s.maintaining = false
	s.mu.Unlock()

	finished := result
	s.sendEvent(Event{Type: EventMaintenanceFinished, Maintenance: &finished})
	return result
}

// Start begins polling: a first refresh shortly after start, then one every
// refresh interval. Automatic maintenance is attempted once in the background.
func (s *Service) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		go s.RunMaintenance(false)
		go s.pollLoop(ctx)
	})
}

// Reschedule changes the polling interval.
func (s *Service) Reschedule(interval time.Duration) {
	select {
	case s.resetChan <- interval:
	default:
		// Replace a pending reschedule with the newer one.
		select {
		case <-s.resetChan:
		default:
		}
		select {
		case s.resetChan <- interval:
		default:
		}
	}
}

func (s *Service) pollLoop(ctx context.Context) {
	interval := s.prefs.Get().RefreshInterval()

	timer := time.NewTimer(s.initialDelay)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			s.Refresh(ctx)
			timer.Reset(interval)

		case next := <-s.resetChan:
			if next <= 0 || next == interval {
				continue
			}
			logger.Info("refresh interval changed", "interval", next)
			interval = next
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(interval)

		case <-ctx.Done():
			return

		case <-s.stopChan:
			return
		}
	}
}

// sendEvent sends an event to the event channel non-blocking.
func (s *Service) sendEvent(event Event) {
	select {
	case s.eventChan <- event:
	default:
		// Channel full, drop oldest
		select {
		case <-s.eventChan:
		default:
		}
		select {
		case s.eventChan <- event:
		default:
		}
	}
}

// Close stops polling.
func (s *Service) Close() error {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	return nil
}
