package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"limelight/internal/models"
	"limelight/internal/observability"
)

// ManifestProbe checks whether a manifest is playable again.
type ManifestProbe interface {
	Probe(ctx context.Context, manifestRef string) error
}

// ProbeFunc adapts a function to the ManifestProbe interface.
type ProbeFunc func(ctx context.Context, manifestRef string) error

func (f ProbeFunc) Probe(ctx context.Context, manifestRef string) error {
	return f(ctx, manifestRef)
}

// EndRequester invokes the host-facing end action once the retry budget is gone.
type EndRequester interface {
	RequestEnd(ctx context.Context, roomID uint) error
}

// EndRequesterFunc adapts a function to the EndRequester interface.
type EndRequesterFunc func(ctx context.Context, roomID uint) error

func (f EndRequesterFunc) RequestEnd(ctx context.Context, roomID uint) error {
	return f(ctx, roomID)
}

// Player is the media surface the controller drives. After a successful
// resume it is moved to the live edge rather than the paused position.
type Player interface {
	SeekLiveEdge()
}

// Controller is an explicit per-session reconnect handle. It owns the retry
// state; there is no shared module-level connection object.
type Controller struct {
	roomID      uint
	manifestRef string
	probe       ManifestProbe
	ender       EndRequester
	player      Player
	delay       time.Duration

	mu    sync.Mutex
	state RetryState
}

// NewController creates a Controller for one room's playback session. player
// may be nil for headless consumers.
func NewController(roomID uint, manifestRef string, probe ManifestProbe, ender EndRequester, player Player, maxAttempts int, delay time.Duration) *Controller {
	return &Controller{
		roomID:      roomID,
		manifestRef: manifestRef,
		probe:       probe,
		ender:       ender,
		player:      player,
		delay:       delay,
		state:       NewRetryState(maxAttempts),
	}
}

// State returns a copy of the current retry state.
func (c *Controller) State() RetryState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// HandleFatalError runs the bounded reconnect loop after a fatal media error.
// It returns nil once playback resumed, or UpstreamSignalLost after the
// budget is exhausted and the end action was requested.
func (c *Controller) HandleFatalError(ctx context.Context, cause error) error {
	for {
		c.mu.Lock()
		next, decision := c.state.OnFailure(cause)
		c.state = next
		c.mu.Unlock()

		if decision == DecisionGiveUp {
			slog.Warn("playback retry budget exhausted, requesting end",
				"room_id", c.roomID, "attempts", next.Attempts, "error", cause)
			observability.PlaybackAutoEnds.Inc()
			if err := c.ender.RequestEnd(ctx, c.roomID); err != nil {
				slog.Error("auto-end request failed", "room_id", c.roomID, "error", err)
			}
			return models.NewUpstreamSignalLostError("upstream signal lost after reconnect attempts")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.delay):
		}

		if err := c.probe.Probe(ctx, c.manifestRef); err != nil {
			cause = err
			continue
		}

		c.Resume()
		return nil
	}
}

// Resume marks playback recovered: the retry budget resets and the player is
// seeked to the live edge instead of the paused position.
func (c *Controller) Resume() {
	c.mu.Lock()
	c.state = c.state.OnRecovered()
	c.mu.Unlock()

	if c.player != nil {
		c.player.SeekLiveEdge()
	}
}
