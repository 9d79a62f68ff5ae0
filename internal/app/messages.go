package app

import (
	"time"

	"github.com/wesm/vibepulse/internal/services"
	"github.com/wesm/vibepulse/internal/services/usage"
)

// TickMsg is sent periodically to expire notifications and age timestamps.
type TickMsg struct {
	Time time.Time
}

// SnapshotLoadedMsg carries freshly read dashboard data.
type SnapshotLoadedMsg struct {
	Snapshot usage.Snapshot
}

// RefreshDoneMsg is sent when a user-requested refresh completes.
type RefreshDoneMsg struct {
	Result usage.RefreshResult
}

// MaintenanceDoneMsg is sent when a user-requested maintenance run completes.
type MaintenanceDoneMsg struct {
	Result usage.MaintenanceResult
}

// AddNotificationMsg requests adding a new notification.
type AddNotificationMsg struct {
	Type     NotificationType
	Message  string
	Duration time.Duration
}

// RemoveNotificationMsg requests removal of a notification.
type RemoveNotificationMsg struct {
	ID string
}

// ServiceEventMsg wraps a service event from the service manager.
type ServiceEventMsg struct {
	Event services.ServiceEvent
}

// SubscriptionEventMsg is the callback wrapper for service subscription.
type SubscriptionEventMsg struct {
	Channel chan services.ServiceEvent
}
