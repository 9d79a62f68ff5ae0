package app

import (
	"testing"
	"time"

	"github.com/wesm/vibepulse/internal/services/usage"
)

func TestNotificationType_String(t *testing.T) {
	tests := []struct {
		want string
		nt   NotificationType
	}{
		{"success", NotificationSuccess},
		{"error", NotificationError},
		{"warning", NotificationWarning},
		{"info", NotificationInfo},
		{"unknown", NotificationType(99)},
	}
	for _, tt := range tests {
		if got := tt.nt.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestNotification_IsExpired(t *testing.T) {
	n := Notification{CreatedAt: time.Now().Add(-time.Minute), Duration: time.Second}
	if !n.IsExpired() {
		t.Error("notification past its duration should expire")
	}

	sticky := Notification{CreatedAt: time.Now().Add(-time.Hour)}
	if sticky.IsExpired() {
		t.Error("notification without duration never expires")
	}
}

func TestState_SetSnapshot(t *testing.T) {
	s := NewState()
	if s.Loaded() {
		t.Error("new state should not be loaded")
	}

	s.SetRefreshing(true)
	s.SetMaintaining(true)
	s.SetSnapshot(usage.Snapshot{Combined: 4.2, Maintaining: true})

	if !s.Loaded() {
		t.Error("state should be loaded")
	}
	if s.Refreshing() {
		t.Error("snapshot flags should replace local ones")
	}
	if !s.Maintaining() {
		t.Error("maintaining should follow the snapshot")
	}
	if got := s.Snapshot().Combined; got != 4.2 {
		t.Errorf("Combined = %v, want 4.2", got)
	}
}

func TestState_Notifications(t *testing.T) {
	s := NewState()

	first := s.AddNotification(NotificationInfo, "one", 0)
	second := s.AddNotification(NotificationError, "two", 0)
	if first == second {
		t.Fatal("notification IDs should be unique")
	}

	s.RemoveNotification(first)
	got := s.Notifications()
	if len(got) != 1 || got[0].Message != "two" {
		t.Errorf("Notifications() = %+v", got)
	}
}

func TestState_NotificationsCapped(t *testing.T) {
	s := NewState()
	for i := 0; i < maxNotifications+3; i++ {
		s.AddNotification(NotificationInfo, "n", 0)
	}
	if got := len(s.Notifications()); got != maxNotifications {
		t.Errorf("len = %d, want %d", got, maxNotifications)
	}
}

func TestState_ClearExpiredNotifications(t *testing.T) {
	s := NewState()
	s.AddNotification(NotificationInfo, "short", time.Nanosecond)
	s.AddNotification(NotificationInfo, "sticky", 0)

	time.Sleep(time.Millisecond)
	s.ClearExpiredNotifications()

	got := s.Notifications()
	if len(got) != 1 || got[0].Message != "sticky" {
		t.Errorf("Notifications() = %+v", got)
	}
}
