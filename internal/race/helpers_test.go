package race

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"racetrack/internal/course"
)

// recorder is an endpoint that keeps every frame it is sent.
type recorder struct {
	mu     sync.Mutex
	frames []map[string]any
	fail   bool
}

func (r *recorder) Send(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("endpoint closed")
	}
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		return err
	}
	r.frames = append(r.frames, frame)
	return nil
}

func (r *recorder) ofType(typ string) []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []map[string]any
	for _, f := range r.frames {
		if f["type"] == typ {
			out = append(out, f)
		}
	}
	return out
}

func (r *recorder) count(typ string) int { return len(r.ofType(typ)) }

func (r *recorder) last(typ string) map[string]any {
	frames := r.ofType(typ)
	if len(frames) == 0 {
		return nil
	}
	return frames[len(frames)-1]
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.frames))
	for _, f := range r.frames {
		out = append(out, f["type"].(string))
	}
	return out
}

func (r *recorder) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = nil
}

func testOptions(clock clockwork.Clock) Options {
	return Options{
		Generator:     course.NewHedges(2000, 200),
		Clock:         clock,
		SpectatorID:   DefaultSpectatorID,
		CountdownFrom: 3,
		CountdownStep: time.Second,
	}
}

func newTestSession(t *testing.T) (*Session, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	s := NewSession("ABC123", testOptions(clock))
	t.Cleanup(s.Close)
	return s, clock
}

// join seats each id on a fresh recorder and returns the recorders by id.
func join(s *Session, ids ...string) map[string]*recorder {
	seats := make(map[string]*recorder, len(ids))
	for _, id := range ids {
		rec := &recorder{}
		s.AddParticipant(id, rec, json.RawMessage(`{"name":"`+id+`"}`))
		seats[id] = rec
	}
	return seats
}

// advanceUntil moves the fake clock one step and waits for watch to hold
// want frames of typ.
func advanceUntil(t *testing.T, clock *clockwork.FakeClock, watch *recorder, typ string, want int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return watch.count(typ) >= want }, 2*time.Second, 5*time.Millisecond)
}

// startRace drives s from the lobby into Racing with every seated
// competitor ready.
func startRace(t *testing.T, s *Session, clock *clockwork.FakeClock, watch *recorder) {
	t.Helper()
	require.NoError(t, s.EnableReady())
	for _, id := range s.ParticipantIDs() {
		require.NoError(t, s.MarkReady(id))
	}
	require.Equal(t, StateCountdown, s.State())

	advanceUntil(t, clock, watch, "countdown", 2)
	advanceUntil(t, clock, watch, "countdown", 3)
	advanceUntil(t, clock, watch, "race-start", 1)
	require.Equal(t, StateRacing, s.State())
}
