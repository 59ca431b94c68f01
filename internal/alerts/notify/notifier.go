package notify

import (
	"context"

	alerts "vitalwatch-cloud/internal/alerts/domain"
)

// Notifier delivers an alert to an outbound channel. Implementations
// must not block the caller beyond their own request timeout and must
// swallow delivery failures; notification is best-effort by design.
type Notifier interface {
	Notify(ctx context.Context, alert alerts.Alert)
}

// MultiNotifier fans an alert out to several notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier constructs a MultiNotifier, skipping nil entries.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	multi := &MultiNotifier{}
	for _, n := range notifiers {
		if n != nil {
			multi.notifiers = append(multi.notifiers, n)
		}
	}
	return multi
}

// Notify delivers the alert to every registered notifier.
func (m *MultiNotifier) Notify(ctx context.Context, alert alerts.Alert) {
	if m == nil {
		return
	}
	for _, n := range m.notifiers {
		n.Notify(ctx, alert)
	}
}
