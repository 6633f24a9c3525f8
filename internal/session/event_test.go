package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(events []Event) []EventKind {
	out := make([]EventKind, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Kind)
	}
	return out
}

func TestEventsFor(t *testing.T) {
	open := Session{Identifier: "s1", HostUserIdentifier: "alice"}
	joined := open
	joined.SubscriberUserIdentifier = "bob"

	tests := []struct {
		name   string
		query  Query
		mask   ObservedEvents
		before *Session
		after  *Session
		want   []EventKind
	}{
		{"created for host", HostedBy("alice"), ObserveChildren, nil, &open, []EventKind{EventAdded}},
		{"changed for host", HostedBy("alice"), ObserveChildren, &open, &joined, []EventKind{EventChanged}},
		{"deleted for host", HostedBy("alice"), ObserveChildren, &joined, nil, []EventKind{EventRemoved}},
		{"join adds for subscriber", SubscribedBy("bob"), ObserveChildren, &open, &joined, []EventKind{EventAdded}},
		{"unrelated user sees nothing", HostedBy("carol"), ObserveAll, &open, &joined, nil},
		{"mask filters changes", HostedBy("alice"), ObserveAdd | ObserveRemove, &open, &joined, nil},
		{"value for identifier", WithIdentifier("s1"), ObserveValue, &open, &joined, []EventKind{EventValue}},
		{"no value after delete", WithIdentifier("s1"), ObserveValue, &open, nil, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := kinds(eventsFor(tc.query, tc.mask, tc.before, tc.after))
			if tc.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRemovedCarriesPreviousRecord(t *testing.T) {
	before := Session{Identifier: "s1", HostUserIdentifier: "alice", SubscriberUserIdentifier: "bob"}
	events := eventsFor(SubscribedBy("bob"), ObserveChildren, &before, nil)
	require.Len(t, events, 1)
	assert.Equal(t, EventRemoved, events[0].Kind)
	assert.Equal(t, "bob", events[0].Session.SubscriberUserIdentifier)
}

func TestParseObservedEvents(t *testing.T) {
	got, err := ParseObservedEvents("add, change,remove")
	require.NoError(t, err)
	assert.Equal(t, ObserveChildren, got)
	assert.Equal(t, "add,remove,change", got.String())

	got, err = ParseObservedEvents("")
	require.NoError(t, err)
	assert.Equal(t, ObserveChildren, got)

	_, err = ParseObservedEvents("add,teleport")
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestQueryValidate(t *testing.T) {
	assert.NoError(t, HostedBy("alice").Validate())
	assert.ErrorIs(t, Query{By: "owner", Value: "x"}.Validate(), ErrInvalidQuery)
	assert.ErrorIs(t, SubscribedBy("").Validate(), ErrInvalidQuery)
}

func TestSubscriberQueryIgnoresOpenSessions(t *testing.T) {
	assert.False(t, SubscribedBy("").Matches(Session{Identifier: "s1", HostUserIdentifier: "alice"}))
}

func TestEventKindJSON(t *testing.T) {
	raw, err := EventChanged.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"changed"`, string(raw))

	var k EventKind
	require.NoError(t, k.UnmarshalJSON([]byte(`"removed"`)))
	assert.Equal(t, EventRemoved, k)
	assert.Error(t, k.UnmarshalJSON([]byte(`"exploded"`)))
}
