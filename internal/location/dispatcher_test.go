package location

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"eta/internal/session"
)

func TestDispatchFansOutToHostedAndAuthorizedSessions(t *testing.T) {
	m := NewMembership(nil)
	m.Apply(RoleHost, ev(session.EventAdded, hosted("h1")))
	m.Apply(RoleHost, ev(session.EventAdded, hosted("h2")))
	m.Apply(RoleSubscriber, ev(session.EventAdded, subscribed("s1", true)))
	m.Apply(RoleSubscriber, ev(session.EventAdded, subscribed("s2", false)))
	m.Apply(RoleSubscriber, ev(session.EventAdded, subscribed("s3", false)))

	tokens := &fakeTokens{token: "tok"}
	writer := &fakeWriter{}
	d := NewDispatcher("alice", tokens, writer, zerolog.Nop())

	d.Dispatch(fix(1), m.Targets())
	d.Wait()

	assert.Equal(t, []string{"h1", "h2", "s1"}, writer.sessionIDs())
	assert.Equal(t, 1, tokens.count())
	for _, w := range writer.writes {
		assert.Equal(t, "tok", w.token)
		assert.Equal(t, "alice", w.userID)
		assert.Equal(t, fix(1), w.loc)
	}
}

func TestDispatchAuthorizationFailureWritesNothing(t *testing.T) {
	tokens := &fakeTokens{err: errors.New("token service down")}
	writer := &fakeWriter{}
	d := NewDispatcher("alice", tokens, writer, zerolog.Nop())

	d.Dispatch(fix(1), []session.Session{hosted("h1"), hosted("h2")})
	d.Wait()

	assert.Equal(t, 0, writer.count())
	assert.Equal(t, 1, tokens.count())
}

func TestDispatchWriteFailureDoesNotCancelSiblings(t *testing.T) {
	tokens := &fakeTokens{token: "tok"}
	writer := &fakeWriter{fail: map[string]error{"h1": errors.New("boom")}}
	d := NewDispatcher("alice", tokens, writer, zerolog.Nop())

	d.Dispatch(fix(1), []session.Session{hosted("h1"), hosted("h2"), hosted("h3")})
	d.Wait()
	assert.Equal(t, 3, writer.count())

	d.Dispatch(fix(2), []session.Session{hosted("h2")})
	d.Wait()
	assert.Equal(t, 4, writer.count())
}

func TestDispatchWithoutTargetsSkipsAuthorization(t *testing.T) {
	tokens := &fakeTokens{token: "tok"}
	d := NewDispatcher("alice", tokens, &fakeWriter{}, zerolog.Nop())

	d.Dispatch(fix(1), nil)
	d.Wait()
	assert.Equal(t, 0, tokens.count())
}

func TestDispatchAfterCloseIssuesNoWrites(t *testing.T) {
	tokens := &fakeTokens{token: "tok", gate: make(chan struct{})}
	writer := &fakeWriter{}
	d := NewDispatcher("alice", tokens, writer, zerolog.Nop())

	d.Dispatch(fix(1), []session.Session{hosted("h1")})
	d.Close()
	close(tokens.gate)
	d.Wait()

	d.Dispatch(fix(2), []session.Session{hosted("h1")})
	d.Wait()

	assert.Equal(t, 0, writer.count())
}
