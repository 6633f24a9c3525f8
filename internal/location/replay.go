package location

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"eta/internal/constants"
	"eta/internal/session"
)

// ReplayProvider plays back fixes read from text lines of the form
// "lat,lon" or "lat,lon,unix-seconds". It stands in for the device
// location service in the headless client.
type ReplayProvider struct {
	clock    clock.Clock
	interval time.Duration
	out      chan session.Location
	log      zerolog.Logger

	mu         sync.Mutex
	scanner    *bufio.Scanner
	line       int
	permission Permission
	accuracy   Accuracy
	background bool
	stop       chan struct{}
	wg         sync.WaitGroup
}

func NewReplayProvider(r io.Reader, interval time.Duration, c clock.Clock, log zerolog.Logger) *ReplayProvider {
	if c == nil {
		c = clock.New()
	}
	if interval <= 0 {
		interval = constants.ReplayInterval
	}
	return &ReplayProvider{
		clock:    c,
		interval: interval,
		out:      make(chan session.Location, constants.ProviderFixesBuffer),
		scanner:  bufio.NewScanner(r),
		log:      log.With().Str("component", "replay-provider").Logger(),
	}
}

func (p *ReplayProvider) Permission() Permission {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.permission
}

// RequestPermission always grants unless the permission was denied with Deny.
func (p *ReplayProvider) RequestPermission() Permission {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.permission == PermissionNotDetermined {
		p.permission = PermissionGranted
	}
	return p.permission
}

// Deny makes the provider refuse location permission.
func (p *ReplayProvider) Deny() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.permission = PermissionDenied
}

func (p *ReplayProvider) SetDesiredAccuracy(a Accuracy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accuracy = a
}

func (p *ReplayProvider) SetBackgroundUpdates(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.background = enabled
}

func (p *ReplayProvider) StartUpdates() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		return
	}
	p.stop = make(chan struct{})
	p.wg.Add(1)
	go p.play(p.stop)
	p.log.Debug().Float64("accuracy_m", float64(p.accuracy)).Bool("background", p.background).Msg("replay started")
}

func (p *ReplayProvider) StopUpdates() {
	p.mu.Lock()
	stop := p.stop
	p.stop = nil
	p.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	p.wg.Wait()
	p.log.Debug().Msg("replay stopped")
}

func (p *ReplayProvider) Fixes() <-chan session.Location {
	return p.out
}

func (p *ReplayProvider) play(stop <-chan struct{}) {
	defer p.wg.Done()

	ticker := p.clock.Ticker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		loc, ok := p.next()
		if !ok {
			return
		}
		select {
		case p.out <- loc:
		case <-stop:
			return
		}
	}
}

// next returns the next parsable fix, skipping blank, comment and malformed lines.
func (p *ReplayProvider) next() (session.Location, bool) {
	for p.scanner.Scan() {
		p.line++
		text := strings.TrimSpace(p.scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		loc, err := ParseFix(text, p.clock.Now())
		if err != nil {
			p.log.Warn().Err(err).Int("line", p.line).Msg("skipping malformed fix")
			continue
		}
		return loc, true
	}
	if err := p.scanner.Err(); err != nil {
		p.log.Error().Err(err).Msg("reading fixes")
	} else {
		p.log.Info().Int("lines", p.line).Msg("end of fixes")
	}
	return session.Location{}, false
}

// ParseFix parses "lat,lon[,unix-seconds]". now is used when no timestamp is given.
func ParseFix(text string, now time.Time) (session.Location, error) {
	fields := strings.Split(text, ",")
	if len(fields) < 2 || len(fields) > 3 {
		return session.Location{}, fmt.Errorf("expected lat,lon[,unix], got %q", text)
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
	if err != nil {
		return session.Location{}, fmt.Errorf("latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil {
		return session.Location{}, fmt.Errorf("longitude: %w", err)
	}

	loc := session.Location{Coordinate: session.Coordinate{Latitude: lat, Longitude: lon}, Date: now.UTC()}
	if !loc.Coordinate.Valid() {
		return session.Location{}, fmt.Errorf("coordinate out of range: %v,%v", lat, lon)
	}
	if len(fields) == 3 {
		sec, err := strconv.ParseInt(strings.TrimSpace(fields[2]), 10, 64)
		if err != nil {
			return session.Location{}, fmt.Errorf("timestamp: %w", err)
		}
		loc.Date = time.Unix(sec, 0).UTC()
	}
	return loc, nil
}
