package app

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/wesm/vibepulse/internal/services"
)

func TestCommands_Tick(t *testing.T) {
	if cmd := tickCmd(time.Millisecond); cmd == nil {
		t.Error("tickCmd returned nil")
	}
	if cmd := defaultTickCmd(); cmd == nil {
		t.Error("defaultTickCmd returned nil")
	}
}

func TestCommands_Notifications(t *testing.T) {
	tests := []struct {
		name string
		fn   func(string) tea.Cmd
		want NotificationType
	}{
		{"Success", notifySuccessCmd, NotificationSuccess},
		{"Error", notifyErrorCmd, NotificationError},
		{"Warning", notifyWarningCmd, NotificationWarning},
		{"Info", notifyInfoCmd, NotificationInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.fn("msg")()

			addMsg, ok := msg.(AddNotificationMsg)
			if !ok {
				t.Fatalf("Expected AddNotificationMsg, got %T", msg)
			}
			if addMsg.Type != tt.want {
				t.Errorf("Type = %v, want %v", addMsg.Type, tt.want)
			}
			if addMsg.Message != "msg" {
				t.Errorf("Message = %q, want msg", addMsg.Message)
			}
			if addMsg.Duration <= 0 {
				t.Error("notifications should expire")
			}
		})
	}
}

func TestCommands_ClearNotification(t *testing.T) {
	msg := clearNotificationCmd("n1", time.Millisecond)()
	rm, ok := msg.(RemoveNotificationMsg)
	if !ok {
		t.Fatalf("Expected RemoveNotificationMsg, got %T", msg)
	}
	if rm.ID != "n1" {
		t.Errorf("ID = %q, want n1", rm.ID)
	}
}

func TestCommands_LoadSnapshot(t *testing.T) {
	b := &fakeBackend{snapshot: testSnapshot()}
	msg := loadSnapshotCmd(b)()
	loaded, ok := msg.(SnapshotLoadedMsg)
	if !ok {
		t.Fatalf("Expected SnapshotLoadedMsg, got %T", msg)
	}
	if loaded.Snapshot.Combined != 15.75 {
		t.Errorf("Combined = %v, want 15.75", loaded.Snapshot.Combined)
	}
}

func TestCommands_WaitForServiceEvent(t *testing.T) {
	ch := make(chan services.ServiceEvent, 1)
	ch <- services.MaintenanceStartedEvent{}

	msg := waitForServiceEventCmd(ch)()
	ev, ok := msg.(ServiceEventMsg)
	if !ok {
		t.Fatalf("Expected ServiceEventMsg, got %T", msg)
	}
	if _, ok := ev.Event.(services.MaintenanceStartedEvent); !ok {
		t.Errorf("Event = %T", ev.Event)
	}

	close(ch)
	if msg := waitForServiceEventCmd(ch)(); msg != nil {
		t.Errorf("closed channel should yield nil, got %T", msg)
	}
}

func TestCommands_Subscribe(t *testing.T) {
	msg := subscribeToServicesCmd(&fakeBackend{})()
	sub, ok := msg.(SubscriptionEventMsg)
	if !ok {
		t.Fatalf("Expected SubscriptionEventMsg, got %T", msg)
	}
	if sub.Channel == nil {
		t.Error("subscription channel should be set")
	}
}
