package session

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EventKind is the type of a change-feed event.
type EventKind int

const (
	EventAdded EventKind = iota
	EventChanged
	EventRemoved
	EventMoved
	EventValue
)

var eventKindNames = map[EventKind]string{
	EventAdded:   "added",
	EventChanged: "changed",
	EventRemoved: "removed",
	EventMoved:   "moved",
	EventValue:   "value",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

func ParseEventKind(s string) (EventKind, error) {
	for kind, name := range eventKindNames {
		if name == s {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

func (k EventKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *EventKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	kind, err := ParseEventKind(s)
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// Event is one change-feed notification about a session record.
type Event struct {
	Kind    EventKind `json:"kind"`
	Session Session   `json:"session"`
}

// ObservedEvents selects the event kinds a subscription yields.
type ObservedEvents uint8

const (
	ObserveAdd ObservedEvents = 1 << iota
	ObserveRemove
	ObserveChange
	ObserveMove
	ObserveValue

	ObserveChildren = ObserveAdd | ObserveChange | ObserveRemove
	ObserveAll      = ObserveAdd | ObserveRemove | ObserveChange | ObserveMove | ObserveValue
)

var observedNames = []struct {
	bit  ObservedEvents
	name string
}{
	{ObserveAdd, "add"},
	{ObserveRemove, "remove"},
	{ObserveChange, "change"},
	{ObserveMove, "move"},
	{ObserveValue, "value"},
}

func (o ObservedEvents) Has(kind EventKind) bool {
	switch kind {
	case EventAdded:
		return o&ObserveAdd != 0
	case EventChanged:
		return o&ObserveChange != 0
	case EventRemoved:
		return o&ObserveRemove != 0
	case EventMoved:
		return o&ObserveMove != 0
	case EventValue:
		return o&ObserveValue != 0
	}
	return false
}

func (o ObservedEvents) String() string {
	var parts []string
	for _, n := range observedNames {
		if o&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, ",")
}

// ParseObservedEvents parses a comma separated list such as "add,change,remove".
// An empty string selects the child events.
func ParseObservedEvents(s string) (ObservedEvents, error) {
	if strings.TrimSpace(s) == "" {
		return ObserveChildren, nil
	}
	var out ObservedEvents
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		found := false
		for _, n := range observedNames {
			if n.name == part {
				out |= n.bit
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("%w: unknown event %q", ErrInvalidQuery, part)
		}
	}
	return out, nil
}

// QueryField is the record field a feed query filters on.
type QueryField string

const (
	ByHost       QueryField = "host"
	BySubscriber QueryField = "subscriber"
	ByIdentifier QueryField = "identifier"
)

// Query filters the records a subscription observes.
type Query struct {
	By    QueryField
	Value string
}

func HostedBy(user string) Query { return Query{By: ByHost, Value: user} }
func SubscribedBy(user string) Query { return Query{By: BySubscriber, Value: user} }
func WithIdentifier(id string) Query { return Query{By: ByIdentifier, Value: id} }
func (q Query) String() string { return string(q.By) + "=" + q.Value }

func (q Query) Validate() error {
	switch q.By {
	case ByHost, BySubscriber, ByIdentifier:
	default:
		return fmt.Errorf("%w: unknown field %q", ErrInvalidQuery, q.By)
	}
	if q.Value == "" {
		return fmt.Errorf("%w: empty value", ErrInvalidQuery)
	}
	return nil
}

func (q Query) Matches(s Session) bool {
	switch q.By {
	case ByHost:
		return s.HostUserIdentifier == q.Value
	case BySubscriber:
		return s.SubscriberUserIdentifier != "" && s.SubscriberUserIdentifier == q.Value
	case ByIdentifier:
		return s.Identifier == q.Value
	}
	return false
}

// eventsFor derives the events a query observes for one mutation.
// before is nil for a created record, after is nil for a deleted one.
func eventsFor(q Query, mask ObservedEvents, before, after *Session) []Event {
	wasIn := before != nil && q.Matches(*before)
	isIn := after != nil && q.Matches(*after)

	var out []Event
	emit := func(kind EventKind, s Session) {
		if mask.Has(kind) {
			out = append(out, Event{Kind: kind, Session: s.Clone()})
		}
	}

	switch {
	case !wasIn && isIn:
		emit(EventAdded, *after)
	case wasIn && isIn:
		emit(EventChanged, *after)
	case wasIn && !isIn:
		emit(EventRemoved, *before)
	}
	if isIn && q.By == ByIdentifier {
		emit(EventValue, *after)
	}
	return out
}

// initialEvents is what a new subscription receives for a record that already matches.
func initialEvents(q Query, mask ObservedEvents, s Session) []Event {
	return eventsFor(q, mask, nil, &s)
}
