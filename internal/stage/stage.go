// Package stage owns one character on screen: its skeleton, the animation
// controller bound to it, the request dispatcher and the idle scheduler.
package stage

import (
	"errors"
	"sync"
	"time"

	"github.com/normanking/cortexanim/internal/animation"
	"github.com/normanking/cortexanim/internal/bus"
	"github.com/normanking/cortexanim/internal/dispatch"
	"github.com/normanking/cortexanim/internal/idle"
	"github.com/normanking/cortexanim/internal/mixer"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

var (
	// ErrNotLoaded is returned when requests arrive before Load.
	ErrNotLoaded = errors.New("stage: no character loaded")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("stage: closed")
)

type Options struct {
	Animation   animation.Options
	Idle        idle.Config
	DefaultHold time.Duration
	Seed        uint64
}

func DefaultOptions() Options {
	return Options{
		Animation:   animation.DefaultOptions(),
		Idle:        idle.DefaultConfig(),
		DefaultHold: 5 * time.Second,
		Seed:        uint64(time.Now().UnixNano()),
	}
}

// Character is what Load needs to put a character on stage.
type Character struct {
	Skeleton  *mixer.Skeleton
	Clips     []animation.ClipEntry
	IdleNames []string
}

type Stage struct {
	mu sync.RWMutex

	opts Options
	bus  *bus.EventBus
	log  zerolog.Logger

	skeleton   *mixer.Skeleton
	controller *animation.Controller
	dispatcher *dispatch.Dispatcher
	idle       *idle.Scheduler
	closed     bool
}

// New creates an empty stage. events may be nil.
func New(opts Options, events *bus.EventBus, log zerolog.Logger) *Stage {
	return &Stage{
		opts: opts,
		bus:  events,
		log:  log.With().Str("component", "stage").Logger(),
	}
}

// Load replaces the character on stage. The previous controller is disposed
// first so its skeleton is free to bind again. On error the stage is empty.
func (s *Stage) Load(ch Character) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	hadCharacter := s.controller != nil
	s.teardownLocked()

	opts := s.opts.Animation
	if opts.Logger == nil {
		opts.Logger = &s.log
	}
	ctrl, err := animation.New(ch.Skeleton, ch.Clips, opts)
	if err != nil {
		s.mu.Unlock()
		if hadCharacter {
			s.publish(bus.EventStageDisposed, nil)
		}
		return err
	}

	idles, unknown := lo.FilterReject(ch.IdleNames, func(name string, _ int) bool { return ctrl.Has(name) })
	if len(unknown) > 0 {
		s.log.Warn().Strs("clips", unknown).Msg("Idle clips not loaded, skipping")
	}

	player := publishingPlayer{Controller: ctrl, stage: s}
	sched := idle.New(player, idles, s.opts.Idle, s.opts.Seed, s.log)
	sched.OnChange(func(name string) {
		s.publish(bus.EventAnimationIdle, map[string]any{"clip": name})
	})

	disp := dispatch.New(player, sched, dispatch.NewResolver(ctrl.Names()), s.log)
	disp.DefaultHold = s.opts.DefaultHold
	disp.OnResult(s.onResult)

	s.skeleton = ch.Skeleton
	s.controller = ctrl
	s.idle = sched
	s.dispatcher = disp
	s.mu.Unlock()

	s.log.Info().
		Int("clips", len(ch.Clips)).
		Int("idles", len(sched.Names())).
		Int("joints", ch.Skeleton.Len()).
		Msg("Character loaded")
	s.publish(bus.EventStageLoaded, map[string]any{"clips": len(ch.Clips)})

	sched.ReturnToIdle()
	return nil
}

// Tick advances one frame: requests first, then idle cycling, then the pose.
func (s *Stage) Tick(dt float64) {
	s.mu.RLock()
	disp, sched, ctrl := s.dispatcher, s.idle, s.controller
	s.mu.RUnlock()

	if ctrl == nil {
		return
	}
	disp.Update(dt)
	sched.Update(dt)
	ctrl.Update(dt)
}

// Submit queues an animation request for the next Tick and returns its ID.
func (s *Stage) Submit(cmd dispatch.Command) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", ErrClosed
	}
	if s.dispatcher == nil {
		return "", ErrNotLoaded
	}
	return s.dispatcher.Submit(cmd), nil
}

// Current reports the clip driving the skeleton.
func (s *Stage) Current() (string, bool) {
	s.mu.RLock()
	ctrl := s.controller
	s.mu.RUnlock()

	if ctrl == nil {
		return "", false
	}
	return ctrl.CurrentName()
}

// Names lists the clips of the loaded character.
func (s *Stage) Names() []string {
	s.mu.RLock()
	ctrl := s.controller
	s.mu.RUnlock()

	if ctrl == nil {
		return nil
	}
	return ctrl.Names()
}

// Skeleton is the posed skeleton of the loaded character, or nil.
func (s *Stage) Skeleton() *mixer.Skeleton {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.skeleton
}

// Close disposes the character. Later calls do nothing.
func (s *Stage) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	had := s.controller != nil
	s.teardownLocked()
	s.mu.Unlock()

	if had {
		s.publish(bus.EventStageDisposed, nil)
	}
	s.log.Info().Msg("Stage closed")
	return nil
}

func (s *Stage) teardownLocked() {
	if s.controller != nil {
		s.controller.Dispose()
	}
	s.controller = nil
	s.dispatcher = nil
	s.idle = nil
	s.skeleton = nil
}

func (s *Stage) onResult(r dispatch.Result) {
	data := map[string]any{
		"id":          r.Command.ID,
		"type":        string(r.Command.Type),
		"description": r.Command.Description,
	}
	switch {
	case r.Err != nil:
		data["error"] = r.Err.Error()
		s.publish(bus.EventAnimationUnresolved, data)
	case r.Clip != "":
		data["clip"] = r.Clip
		s.publish(bus.EventAnimationStarted, data)
	}
}

func (s *Stage) publish(t bus.EventType, data map[string]any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Event{Type: t, Data: data})
}

// publishingPlayer reports one-shot completions on the bus before running
// the caller's callback.
type publishingPlayer struct {
	*animation.Controller
	stage *Stage
}

func (p publishingPlayer) PlayOnce(name string, onFinished func()) {
	p.Controller.PlayOnce(name, func() {
		p.stage.publish(bus.EventAnimationFinished, map[string]any{"clip": name})
		if onFinished != nil {
			onFinished()
		}
	})
}
