package location

import (
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFix(t *testing.T) {
	now := time.Date(2021, 3, 15, 10, 0, 0, 0, time.UTC)

	loc, err := ParseFix("51.5007, -0.1246", now)
	require.NoError(t, err)
	assert.InDelta(t, 51.5007, loc.Coordinate.Latitude, 1e-9)
	assert.InDelta(t, -0.1246, loc.Coordinate.Longitude, 1e-9)
	assert.Equal(t, now, loc.Date)

	loc, err = ParseFix("51.5,-0.12,1615802400", now)
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1615802400, 0).UTC(), loc.Date)

	for _, bad := range []string{"51.5", "a,b", "91,0", "1,2,3,4", "1,2,later"} {
		_, err := ParseFix(bad, now)
		assert.Error(t, err, bad)
	}
}

func TestReplayProviderPlaysFixesWhileStarted(t *testing.T) {
	input := strings.Join([]string{
		"# route",
		"51.50,-0.12",
		"",
		"not a fix",
		"51.51,-0.13",
	}, "\n")
	mock := clock.NewMock()
	p := NewReplayProvider(strings.NewReader(input), time.Second, mock, zerolog.Nop())

	assert.Equal(t, PermissionNotDetermined, p.Permission())
	assert.Equal(t, PermissionGranted, p.RequestPermission())

	p.StartUpdates()
	defer p.StopUpdates()

	var got []float64
	require.Eventually(t, func() bool {
		mock.Add(time.Second)
		select {
		case loc := <-p.Fixes():
			got = append(got, loc.Coordinate.Latitude)
		default:
		}
		return len(got) == 2
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []float64{51.50, 51.51}, got)
}

func TestReplayProviderStopHaltsPlayback(t *testing.T) {
	mock := clock.NewMock()
	p := NewReplayProvider(strings.NewReader("1,1\n2,2\n"), time.Second, mock, zerolog.Nop())

	p.StopUpdates()
	p.StartUpdates()
	p.StartUpdates()
	p.StopUpdates()

	mock.Add(5 * time.Second)
	select {
	case loc := <-p.Fixes():
		t.Fatalf("unexpected fix %v", loc)
	default:
	}
}

func TestReplayProviderDeny(t *testing.T) {
	p := NewReplayProvider(strings.NewReader(""), time.Second, clock.NewMock(), zerolog.Nop())
	p.Deny()
	assert.Equal(t, PermissionDenied, p.RequestPermission())
}
