package orchestration

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// Observer receives progress and fault events while a run executes.
// Implementations must be safe for concurrent use; per-node steps emit
// events from multiple goroutines.
type Observer interface {
	// Printf emits an unstructured progress line.
	Printf(format string, v ...any)

	// Event emits a structured run event.
	Event(event Event)

	// Progress reports node completion counts within a per-node step.
	Progress(step string, current, total int)
}

// Event is one structured occurrence during a run. Scope is ScopeGlobal
// for cluster-wide steps or the node's name.
type Event struct {
	Type      EventType
	Scope     Scope
	Step      string
	Message   string
	Timestamp time.Time
}

// EventType classifies a run event.
type EventType string

const (
	// EventStepStarted indicates a step began for a scope.
	EventStepStarted EventType = "step.started"
	// EventStepCompleted indicates a step finished successfully for a scope.
	EventStepCompleted EventType = "step.completed"
	// EventStepSkipped indicates the registry short-circuited a step.
	EventStepSkipped EventType = "step.skipped"
	// EventStepFailed indicates a step body returned an error.
	EventStepFailed EventType = "step.failed"
	// EventNodeFaulted indicates a node was faulted and excluded from
	// further per-node steps.
	EventNodeFaulted EventType = "node.faulted"
	// EventNodeOnline indicates a node answered the reachability probe.
	EventNodeOnline EventType = "node.online"
)

// ConsoleObserver writes events through the standard log package.
type ConsoleObserver struct{}

// NewConsoleObserver creates a console-backed observer.
func NewConsoleObserver() *ConsoleObserver {
	return &ConsoleObserver{}
}

// Printf implements Observer.
func (o *ConsoleObserver) Printf(format string, v ...any) {
	log.Printf(format, v...)
}

// Event implements Observer.
func (o *ConsoleObserver) Event(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	log.Print(formatEvent(event))
}

// Progress implements Observer.
func (o *ConsoleObserver) Progress(step string, current, total int) {
	log.Printf("[%s] %d/%d nodes done", step, current, total)
}

func formatEvent(event Event) string {
	var b strings.Builder
	switch event.Type {
	case EventStepStarted:
		b.WriteString("▶ ")
	case EventStepCompleted:
		b.WriteString("✓ ")
	case EventStepSkipped:
		b.WriteString("- ")
	case EventStepFailed, EventNodeFaulted:
		b.WriteString("✗ ")
	default:
		b.WriteString("  ")
	}
	if event.Scope == ScopeGlobal {
		fmt.Fprintf(&b, "[%s]", event.Step)
	} else {
		fmt.Fprintf(&b, "[%s @ %s]", event.Step, event.Scope)
	}
	if event.Message != "" {
		b.WriteString(" ")
		b.WriteString(event.Message)
	}
	return b.String()
}

// RecordingObserver captures events in memory. Test helper.
type RecordingObserver struct {
	mu     sync.Mutex
	events []Event
	lines  []string
}

// NewRecordingObserver creates an observer that records everything it sees.
func NewRecordingObserver() *RecordingObserver {
	return &RecordingObserver{}
}

// Printf implements Observer.
func (o *RecordingObserver) Printf(format string, v ...any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lines = append(o.lines, fmt.Sprintf(format, v...))
}

// Event implements Observer.
func (o *RecordingObserver) Event(event Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
}

// Progress implements Observer.
func (o *RecordingObserver) Progress(string, int, int) {}

// Events returns a copy of the recorded events.
func (o *RecordingObserver) Events() []Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Event, len(o.events))
	copy(out, o.events)
	return out
}

// EventsOf returns recorded events of one type.
func (o *RecordingObserver) EventsOf(t EventType) []Event {
	var out []Event
	for _, e := range o.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
