package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/wesm/vibepulse/internal/logger"
)

// Event represents a settings service event.
type Event struct {
	Error    error
	Settings Settings
	Type     EventType
}

// EventType defines the type of settings event.
type EventType int

const (
	EventLoaded EventType = iota
	EventChanged
	EventError
)

// Service owns the settings file and watches it for external edits.
type Service struct {
	current       Settings
	watcher       *fsnotify.Watcher
	eventChan     chan Event
	stopChan      chan struct{}
	debounceTimer *time.Timer
	filePath      string
	mu            sync.RWMutex
	closeOnce     sync.Once
}

// New loads settings from filePath, creating the file with defaults when it
// does not exist, and starts watching it.
func New(filePath string) (*Service, error) {
	s := &Service{
		current:   Default(),
		filePath:  filePath,
		eventChan: make(chan Event, 16),
		stopChan:  make(chan struct{}),
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create settings directory: %w", err)
	}

	if err := s.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load settings: %w", err)
		}
		if err := s.save(s.current); err != nil {
			return nil, fmt.Errorf("failed to create settings file: %w", err)
		}
	}

	if err := s.startWatcher(); err != nil {
		return nil, fmt.Errorf("failed to start file watcher: %w", err)
	}

	s.sendEvent(Event{Type: EventLoaded, Settings: s.Get()})
	return s, nil
}

// Events returns the event channel for subscribing to settings changes.
func (s *Service) Events() <-chan Event {
	return s.eventChan
}

// Path returns the settings file location.
func (s *Service) Path() string {
	return s.filePath
}

// Get returns a copy of the current settings.
func (s *Service) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update applies fn to the current settings and persists the result.
func (s *Service) Update(fn func(*Settings)) error {
	s.mu.Lock()
	next := s.current
	fn(&next)
	next = next.normalized()
	if err := s.save(next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.current = next
	s.mu.Unlock()

	s.sendEvent(Event{Type: EventChanged, Settings: next})
	return nil
}

// RecordMaintenance stores the time of the last successful maintenance run.
func (s *Service) RecordMaintenance(at time.Time) error {
	return s.Update(func(cfg *Settings) {
		cfg.LastMaintenanceAt = at
	})
}

func (s *Service) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	parsed, err := Decode(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.current = parsed
	s.mu.Unlock()
	return nil
}

func (s *Service) save(cfg Settings) error {
	data, err := Encode(cfg)
	if err != nil {
		return err
	}
	return writeFile(s.filePath, data)
}

// startWatcher starts the file system watcher.
func (s *Service) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	s.watcher = watcher

	// Watch the directory: editors and writeFile replace the file by rename.
	if err := watcher.Add(filepath.Dir(s.filePath)); err != nil {
		if closeErr := watcher.Close(); closeErr != nil {
			logger.Error("failed to close watcher", "error", closeErr)
		}
		return err
	}

	go s.watchLoop()
	return nil
}

// watchLoop handles file system events with debouncing.
func (s *Service) watchLoop() {
	const debounceInterval = 100 * time.Millisecond

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}

			if filepath.Base(event.Name) != filepath.Base(s.filePath) {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				s.mu.Lock()
				if s.debounceTimer != nil {
					s.debounceTimer.Stop()
				}
				s.debounceTimer = time.AfterFunc(debounceInterval, s.handleFileChange)
				s.mu.Unlock()
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.sendEvent(Event{Type: EventError, Error: err})

		case <-s.stopChan:
			return
		}
	}
}

// handleFileChange reloads settings after the file changed on disk. Writes
// that leave the settings unchanged, including our own saves, are ignored.
func (s *Service) handleFileChange() {
	before := s.Get()

	if err := s.load(); err != nil {
		logger.Warn("failed to reload settings", "path", s.filePath, "error", err)
		s.sendEvent(Event{Type: EventError, Error: err})
		return
	}

	after := s.Get()
	if after.Equal(before) {
		return
	}

	logger.Info("settings reloaded", "path", s.filePath,
		"refresh_minutes", after.RefreshMinutes, "maintenance_mode", after.MaintenanceMode)
	s.sendEvent(Event{Type: EventChanged, Settings: after})
}

// sendEvent sends an event to the event channel non-blocking.
func (s *Service) sendEvent(event Event) {
	select {
	case s.eventChan <- event:
	default:
		// Channel full, drop oldest event
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

// Close stops the file watcher and cleans up resources.
func (s *Service) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stopChan)

		s.mu.Lock()
		if s.debounceTimer != nil {
			s.debounceTimer.Stop()
		}
		s.mu.Unlock()

		if s.watcher != nil {
			err = s.watcher.Close()
		}
	})
	return err
}
