// Package idle cycles the character through its idle clips between requests.
package idle

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/normanking/cortexanim/internal/mixer"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Player is the part of the animation controller the scheduler drives.
type Player interface {
	Play(name string, loop mixer.LoopMode, repetitions int, onFinished func())
	CurrentName() (string, bool)
}

type Config struct {
	Interval time.Duration
	Jitter   time.Duration
	Cooldown time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval: 12 * time.Second,
		Jitter:   4 * time.Second,
		Cooldown: 3 * time.Second,
	}
}

// Scheduler is frame driven: Update advances its timers.
type Scheduler struct {
	mu sync.Mutex

	player Player
	names  []string
	cfg    Config
	rng    *rand.Rand
	log    zerolog.Logger

	current  string
	armed    bool
	until    float64
	cooldown float64

	onChange func(name string)
}

// New builds a scheduler over the given idle clip names. Empty and repeated
// names are dropped. The seed makes idle choice reproducible.
func New(player Player, names []string, cfg Config, seed uint64, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		player: player,
		names:  lo.Uniq(lo.Compact(names)),
		cfg:    cfg,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		log:    log.With().Str("component", "idle").Logger(),
	}
}

// OnChange registers a function called with each idle clip started.
func (s *Scheduler) OnChange(fn func(name string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// ReturnToIdle starts a random idle clip, never the one just played when
// there is a choice, and arms the next change.
func (s *Scheduler) ReturnToIdle() {
	s.mu.Lock()
	if len(s.names) == 0 {
		s.mu.Unlock()
		s.log.Debug().Msg("No idle clips")
		return
	}
	name := s.pick()
	s.current = name
	s.arm()
	fn := s.onChange
	s.mu.Unlock()

	s.player.Play(name, mixer.LoopRepeat, 0, nil)
	s.log.Debug().Str("clip", name).Msg("Idle started")
	if fn != nil {
		fn(name)
	}
}

// Suspend stops cycling while another clip plays and starts the cooldown.
func (s *Scheduler) Suspend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = false
	s.cooldown = s.cfg.Cooldown.Seconds()
}

func (s *Scheduler) Update(dt float64) {
	if dt <= 0 {
		return
	}

	s.mu.Lock()
	if s.cooldown > 0 {
		s.cooldown -= dt
	}
	if !s.armed {
		s.mu.Unlock()
		return
	}
	s.until -= dt
	if s.until > 0 {
		s.mu.Unlock()
		return
	}
	if s.cooldown > 0 {
		// Due, but a request ended moments ago; try again after the cooldown.
		s.until = s.cooldown
		s.mu.Unlock()
		return
	}
	expected := s.current
	s.armed = false
	s.mu.Unlock()

	// Something else took over since this timer was armed.
	if cur, ok := s.player.CurrentName(); !ok || cur != expected {
		s.log.Debug().Str("expected", expected).Str("current", cur).Msg("Stale idle timer dropped")
		return
	}
	s.ReturnToIdle()
}

// Current is the idle clip last started, or empty.
func (s *Scheduler) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Scheduler) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.names...)
}

func (s *Scheduler) pick() string {
	candidates := lo.Without(s.names, s.current)
	if len(candidates) == 0 {
		return s.names[0]
	}
	return candidates[s.rng.IntN(len(candidates))]
}

func (s *Scheduler) arm() {
	if s.cfg.Interval <= 0 {
		s.armed = false
		return
	}
	wait := s.cfg.Interval
	if s.cfg.Jitter > 0 {
		wait += time.Duration(s.rng.Int64N(int64(2*s.cfg.Jitter))) - s.cfg.Jitter
	}
	if wait <= 0 {
		wait = s.cfg.Interval
	}
	s.armed = true
	s.until = wait.Seconds()
}
