// Package pending hands session identifiers from deep links to whoever joins them.
package pending

import (
	"sync"

	"github.com/rs/zerolog"

	"eta/internal/constants"
)

// Controller buffers the most recent identifier added while nobody is
// listening and replays it once to the next subscriber. Identifiers added
// while subscribers exist are broadcast to all of them.
type Controller struct {
	mu     sync.Mutex
	slot   string
	subs   map[int]chan string
	nextID int
	log    zerolog.Logger
}

func NewController(log zerolog.Logger) *Controller {
	return &Controller{
		subs: make(map[int]chan string),
		log:  log.With().Str("component", "pending-sessions").Logger(),
	}
}

// Add publishes a pending session identifier.
func (c *Controller) Add(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.subs) == 0 {
		c.slot = id
		return
	}
	for key, ch := range c.subs {
		select {
		case ch <- id:
		default:
			c.log.Warn().Str("session_id", id).Int("subscriber", key).Msg("pending session dropped, subscriber is not keeping up")
		}
	}
}

// Pop takes the buffered identifier, if any.
func (c *Controller) Pop() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.popLocked()
}

func (c *Controller) popLocked() (string, bool) {
	id := c.slot
	c.slot = ""
	return id, id != ""
}

// Subscribe returns a channel of identifiers. The first subscriber receives
// the buffered identifier immediately. cancel closes the channel.
func (c *Controller) Subscribe() (<-chan string, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan string, constants.PendingBufferSize)
	if id, ok := c.popLocked(); ok {
		ch <- id
	}

	key := c.nextID
	c.nextID++
	c.subs[key] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.subs, key)
			close(ch)
		})
	}
	return ch, cancel
}
