package timing

import (
	"context"
	"log"
	"time"

	"kasupel-server/internal/models"
)

// StartedGameLister loads every game that is currently in progress.
type StartedGameLister interface {
	StartedGames(ctx context.Context) ([]*models.Game, error)
}

// TimeoutPoster routes a timeout assertion to a game's command dispatcher.
type TimeoutPoster interface {
	PostTimeout(gameID int64)
}

// Sweeper periodically walks all started games and posts a timeout
// assertion for any whose side to move has exhausted their clock. This is
// what ends a game when the losing client goes silent and the winner never
// sends a timeout event.
type Sweeper struct {
	games    StartedGameLister
	poster   TimeoutPoster
	interval time.Duration
	stop     chan struct{}
}

// NewSweeper creates a sweeper. An interval of zero defaults to one second.
func NewSweeper(games StartedGameLister, poster TimeoutPoster, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Second
	}
	return &Sweeper{
		games:    games,
		poster:   poster,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start runs the sweep loop in the background until Stop is called.
func (s *Sweeper) Start() {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stop:
				return
			}
		}
	}()
	log.Printf("Timeout sweep: started (interval %s)", s.interval)
}

// Stop halts the sweep loop.
func (s *Sweeper) Stop() {
	close(s.stop)
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	games, err := s.games.StartedGames(ctx)
	if err != nil {
		log.Printf("Timeout sweep: listing started games failed: %v", err)
		return
	}
	now := time.Now()
	for _, g := range games {
		if g.LastTurn == nil {
			continue
		}
		remaining := Deduct(g.TimeFor(g.CurrentTurn), Elapsed(*g.LastTurn, now))
		if TimedOut(remaining) {
			s.poster.PostTimeout(g.ID)
		}
	}
}
