package location

import (
	"github.com/rs/zerolog"

	"eta/internal/constants"
	"eta/internal/metrics"
)

// GateState is the tracking state of the device.
type GateState int

const (
	Idle GateState = iota
	Tracking
)

func (s GateState) String() string {
	if s == Tracking {
		return "tracking"
	}
	return "idle"
}

// Gate starts and stops location acquisition as membership changes. It only
// touches the provider when its decision flips. A denied request is not
// repeated until the provider reports a different permission.
type Gate struct {
	provider Provider
	state    GateState
	denied   bool
	log      zerolog.Logger
}

func NewGate(provider Provider, log zerolog.Logger) *Gate {
	return &Gate{
		provider: provider,
		log:      log.With().Str("component", "permission-gate").Logger(),
	}
}

func (g *Gate) State() GateState {
	return g.state
}

// Evaluate moves the gate to Tracking when active and to Idle otherwise, and
// reports whether the device is tracking afterwards.
func (g *Gate) Evaluate(active bool) bool {
	switch {
	case active && g.state == Idle:
		g.start()
	case !active && g.state == Tracking:
		g.stop()
	}
	return g.state == Tracking
}

// Stop forces the gate to Idle.
func (g *Gate) Stop() {
	if g.state == Tracking {
		g.stop()
	}
}

func (g *Gate) start() {
	permission := g.provider.Permission()
	if g.denied && permission == PermissionDenied {
		g.log.Debug().Msg("location permission still denied, not asking again")
		return
	}
	g.denied = false
	if permission != PermissionGranted {
		permission = g.provider.RequestPermission()
	}
	if permission != PermissionGranted {
		g.denied = permission == PermissionDenied
		g.log.Warn().Str("permission", permission.String()).Msg("location permission not granted, tracking stays off")
		return
	}

	g.provider.SetDesiredAccuracy(Accuracy(constants.DesiredAccuracy))
	g.provider.SetBackgroundUpdates(true)
	g.provider.StartUpdates()
	g.transition(Tracking)
}

func (g *Gate) stop() {
	g.provider.StopUpdates()
	g.transition(Idle)
}

func (g *Gate) transition(to GateState) {
	from := g.state
	g.state = to
	metrics.RecordGateTransition(from.String(), to.String())
	g.log.Info().Str("from", from.String()).Str("to", to.String()).Msg("location tracking state changed")
}
