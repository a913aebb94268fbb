// Package alert raises a local notification when the bottle reports the
// low-hydration level.
package alert

import (
	"log/slog"
)

// Priority of a local notification.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Alert is a local notification request.
type Alert struct {
	Title    string
	Body     string
	Priority Priority
}

// Notifier delivers alerts. Notify is fire-and-forget and must not block.
type Notifier interface {
	Notify(a Alert)
}

// Defaults for the low-hydration alert.
const (
	DefaultThreshold = 20
	DefaultTitle     = "Time to drink"
	DefaultBody      = "Your bottle is running low. Take a sip and refill it."
)

// Trigger fires an alert each time a raw level reading equals Threshold.
// There is no range check or hysteresis: 19 and 21 never fire.
type Trigger struct {
	notifier  Notifier
	threshold int
	title     string
	body      string
}

// NewTrigger returns a trigger using the default threshold and text.
func NewTrigger(n Notifier) *Trigger {
	return &Trigger{
		notifier:  n,
		threshold: DefaultThreshold,
		title:     DefaultTitle,
		body:      DefaultBody,
	}
}

// WithThreshold returns a copy of t that fires on raw == threshold.
func (t *Trigger) WithThreshold(threshold int) *Trigger {
	cp := *t
	cp.threshold = threshold
	return &cp
}

// WithText returns a copy of t with a different title and body. Empty
// values keep the current text.
func (t *Trigger) WithText(title, body string) *Trigger {
	cp := *t
	if title != "" {
		cp.title = title
	}
	if body != "" {
		cp.body = body
	}
	return &cp
}

// Threshold returns the raw value that fires the alert.
func (t *Trigger) Threshold() int {
	return t.threshold
}

// ObserveLevel implements pairing.LevelObserver.
func (t *Trigger) ObserveLevel(raw int) {
	if raw != t.threshold {
		return
	}
	slog.Info("[ALERT] low hydration level", "raw", raw)
	t.notifier.Notify(Alert{Title: t.title, Body: t.body, Priority: PriorityHigh})
}

// LogNotifier writes alerts to the structured log. Used when no desktop
// notification service is reachable.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(a Alert) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("[ALERT] "+a.Title, "body", a.Body, "priority", a.Priority.String())
}
