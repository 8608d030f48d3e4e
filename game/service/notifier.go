package service

import (
	"github.com/wricardo/startlights/game/engine"
)

// EventNotifier publishes one session's lifecycle notifications.
type EventNotifier struct {
	sessionID string
	publisher EventPublisher
}

// NewEventNotifier creates a notifier for sessionID.
func NewEventNotifier(publisher EventPublisher, sessionID string) *EventNotifier {
	return &EventNotifier{sessionID: sessionID, publisher: publisher}
}

// NotifierFactory adapts a publisher to the per-session constructor the
// session runtime expects.
func NotifierFactory(publisher EventPublisher) func(sessionID string) engine.Notifier {
	return func(sessionID string) engine.Notifier {
		return NewEventNotifier(publisher, sessionID)
	}
}

func (n *EventNotifier) AttemptArmed(index int) {
	n.publish(EventAttemptArmed, map[string]interface{}{"attempt": index})
}

func (n *EventNotifier) StimulusOn(index, lit int) {
	n.publish(EventStimulusOn, map[string]interface{}{"attempt": index, "lit": lit})
}

func (n *EventNotifier) AttemptLive(index int) {
	n.publish(EventAttemptLive, map[string]interface{}{"attempt": index})
}

func (n *EventNotifier) AttemptResolved(index int, attempt engine.Attempt) {
	n.publish(EventAttemptResolved, map[string]interface{}{"attempt": index, "result": attempt})
}

func (n *EventNotifier) SessionComplete(summary *engine.Summary) {
	n.publish(EventSessionComplete, summary)
}

func (n *EventNotifier) publish(eventType string, data interface{}) {
	if n.publisher == nil {
		return
	}
	n.publisher.BroadcastEvent(n.sessionID, eventType, data)
}
