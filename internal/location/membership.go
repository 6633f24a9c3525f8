package location

import (
	"sort"

	"eta/internal/session"
)

// Role says which feed an event came from.
type Role int

const (
	RoleHost Role = iota
	RoleSubscriber
)

func (r Role) String() string {
	if r == RoleSubscriber {
		return "subscriber"
	}
	return "host"
}

// Membership mirrors the sessions the local user hosts and the sessions it
// is subscribed to. It is not safe for concurrent use; the controller loop
// owns it.
type Membership struct {
	hosting    map[string]session.Session
	subscribed map[string]session.Session
	onChange   func(active bool)
}

// NewMembership returns an empty tracker. onChange runs synchronously after
// every mutation with the current Active value.
func NewMembership(onChange func(active bool)) *Membership {
	return &Membership{
		hosting:    make(map[string]session.Session),
		subscribed: make(map[string]session.Session),
		onChange:   onChange,
	}
}

// Apply folds one feed event into the matching set and reports whether the set changed.
func (m *Membership) Apply(role Role, ev session.Event) bool {
	set := m.hosting
	if role == RoleSubscriber {
		set = m.subscribed
	}

	id := ev.Session.Identifier
	if id == "" {
		return false
	}

	switch ev.Kind {
	case session.EventAdded, session.EventChanged:
		delete(set, id)
		set[id] = ev.Session
	case session.EventRemoved:
		if _, ok := set[id]; !ok {
			return false
		}
		delete(set, id)
	default:
		return false
	}

	if m.onChange != nil {
		m.onChange(m.Active())
	}
	return true
}

func (m *Membership) Hosting() []session.Session {
	return sorted(m.hosting, nil)
}

func (m *Membership) Subscribed() []session.Session {
	return sorted(m.subscribed, nil)
}

func (m *Membership) AuthorizedSubscriptions() []session.Session {
	return sorted(m.subscribed, session.Session.IsAuthorized)
}

// Targets is every session a fix must be written to: all hosted sessions
// and the authorized subscriptions, ordered by identifier.
func (m *Membership) Targets() []session.Session {
	out := append(m.Hosting(), m.AuthorizedSubscriptions()...)
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out
}

// Active reports whether any session needs this device's location.
func (m *Membership) Active() bool {
	if len(m.hosting) > 0 {
		return true
	}
	for _, s := range m.subscribed {
		if s.IsAuthorized() {
			return true
		}
	}
	return false
}

// Reset clears both sets without notifying.
func (m *Membership) Reset() {
	clear(m.hosting)
	clear(m.subscribed)
}

func sorted(set map[string]session.Session, keep func(session.Session) bool) []session.Session {
	out := make([]session.Session, 0, len(set))
	for _, s := range set {
		if keep == nil || keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out
}
