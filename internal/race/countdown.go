package race

import (
	"context"

	"github.com/jonboulle/clockwork"

	"racetrack/internal/fanout"
	"racetrack/internal/protocol"
)

// countdown is the handle of a running countdown. A session holds at most
// one; ticks carrying a different generation are ignored.
type countdown struct {
	generation uint64
	cancel     context.CancelFunc
}

// CountdownActive reports whether a countdown is pending.
func (s *Session) CountdownActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countdown != nil
}

// startCountdownLocked cancels any pending countdown, broadcasts the first
// count and schedules the rest. The race starts one step after the last
// count.
func (s *Session) startCountdownLocked() {
	s.stopCountdownLocked()

	s.generation++
	ctx, cancel := context.WithCancel(context.Background())
	s.countdown = &countdown{generation: s.generation, cancel: cancel}

	ticker := s.opts.Clock.NewTicker(s.opts.CountdownStep)
	s.logger.Info().Int("from", s.opts.CountdownFrom).Dur("step", s.opts.CountdownStep).Msg("countdown started")
	s.broadcastLocked(protocol.NewCountdown(s.opts.CountdownFrom), fanout.Everyone)

	go s.runCountdown(ctx, s.generation, ticker)
}

func (s *Session) stopCountdownLocked() {
	if s.countdown == nil {
		return
	}
	s.countdown.cancel()
	s.countdown = nil
	s.logger.Debug().Msg("countdown cancelled")
}

func (s *Session) runCountdown(ctx context.Context, generation uint64, ticker clockwork.Ticker) {
	defer ticker.Stop()

	for remaining := s.opts.CountdownFrom - 1; ; remaining-- {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}
		if done := s.tick(generation, remaining); done {
			return
		}
	}
}

// tick applies one countdown step. It reports whether the countdown is over,
// either because the race started or because this generation was replaced.
func (s *Session) tick(generation uint64, remaining int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.countdown == nil || s.countdown.generation != generation || s.state != StateCountdown {
		return true
	}
	if remaining > 0 {
		s.broadcastLocked(protocol.NewCountdown(remaining), fanout.Everyone)
		return false
	}

	s.countdown.cancel()
	s.countdown = nil
	s.startRaceLocked()
	return true
}
