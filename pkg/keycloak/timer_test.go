package keycloak

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/todo/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestExpiryTimerFollowsAdapterClock(t *testing.T) {
	t.Parallel()

	wall := time.Now()

	tests := []struct {
		name  string
		clock time.Time
		fires bool
	}{
		{"clock past exp fires now", wall.Add(2 * time.Hour), true},
		{"clock before exp waits", wall.Add(-2 * time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := NewAdapter(AdapterOptions{Logger: slogx.Discard()})
			t.Cleanup(func() { _ = a.Close() })
			a.now = func() time.Time { return tt.clock }

			fired := make(chan struct{}, 1)
			a.OnTokenExpired(func() { fired <- struct{}{} })

			// An hour left by the wall clock.
			a.set(sessionRecord{AccessToken: "tok", ExpiresAt: wall.Add(time.Hour)}, nil)

			select {
			case <-fired:
				require.True(t, tt.fires, "timer fired early")
			case <-time.After(200 * time.Millisecond):
				require.False(t, tt.fires, "timer did not fire")
			}
		})
	}
}
