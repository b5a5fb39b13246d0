// Package animation owns the named clips of one character and decides which
// clip drives the skeleton: cross-faded loops, one-shots with completion
// callbacks, and a tolerant no-op policy for stale or unknown requests.
package animation

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/normanking/cortexanim/internal/mixer"
	"github.com/rs/zerolog"
)

var (
	// ErrNoClips is returned when a controller is built without clips.
	ErrNoClips = errors.New("animation: no clips")
	// ErrNoSkeleton is returned when the skeleton or mixer is nil.
	ErrNoSkeleton = errors.New("animation: no skeleton")
	// ErrDuplicateClip is returned when two clips share a name.
	ErrDuplicateClip = errors.New("animation: duplicate clip name")
	// ErrNilClip is returned when an entry carries no clip data.
	ErrNilClip = errors.New("animation: clip entry has no clip")
	// ErrSharedClip is returned when two entries point at the same clip
	// data. A Mixer keeps one action per clip, so each name needs its own.
	ErrSharedClip = errors.New("animation: clip data shared by two names")
)

// ClipEntry describes one loaded animation.
type ClipEntry struct {
	Name     string
	Clip     *mixer.Clip
	Duration float64 // seconds, informational
	Path     string
}

// Options tunes blending. The zero value is an instant cut without clamping;
// start from DefaultOptions.
type Options struct {
	CrossFade     time.Duration
	ClampOnFinish bool
	Logger        *zerolog.Logger
}

// DefaultOptions returns a 400ms cross-fade that holds the last frame of
// finished one-shots.
func DefaultOptions() Options {
	return Options{
		CrossFade:     400 * time.Millisecond,
		ClampOnFinish: true,
	}
}

// Action is the per-clip playback handle a Mixer hands out.
type Action interface {
	Reset()
	SetLoop(mode mixer.LoopMode, repetitions int)
	SetClampWhenFinished(clamp bool)
	FadeIn(seconds float64)
	FadeOut(seconds float64)
	Play()
	EffectiveWeight() float32
}

// Mixer is the playback primitive a Controller drives.
type Mixer interface {
	ClipAction(clip *mixer.Clip) Action
	Update(dt float64)
	StopAllAction()
	OnFinished(fn func(Action))
}

type pendingCallback struct {
	action Action
	name   string
	fn     func()
}

// Controller plays named clips on one skeleton. All methods are safe to call
// after Dispose; they do nothing. Completion callbacks run without the
// controller lock held and may call back into the controller.
type Controller struct {
	mu sync.Mutex

	mixer   Mixer
	release func()
	log     zerolog.Logger

	crossFade float64
	clamp     bool

	actions map[string]Action
	entries map[string]ClipEntry

	current     Action
	currentName string
	pending  *pendingCallback
	ready    []func()
	disposed bool
}

// New builds a controller bound to root. The skeleton is held exclusively
// until Dispose.
func New(root *mixer.Skeleton, clips []ClipEntry, opts Options) (*Controller, error) {
	if root == nil {
		return nil, ErrNoSkeleton
	}
	if err := validate(clips); err != nil {
		return nil, err
	}
	if err := root.Acquire(); err != nil {
		return nil, fmt.Errorf("animation: %w", err)
	}
	c, err := NewWithMixer(mixerAdapter{mixer.New(root)}, clips, opts)
	if err != nil {
		root.Release()
		return nil, err
	}
	c.release = root.Release
	return c, nil
}

// NewWithMixer builds a controller over any Mixer implementation.
func NewWithMixer(m Mixer, clips []ClipEntry, opts Options) (*Controller, error) {
	if m == nil {
		return nil, ErrNoSkeleton
	}
	if err := validate(clips); err != nil {
		return nil, err
	}

	c := &Controller{
		mixer:     m,
		log:       zerolog.Nop(),
		crossFade: opts.CrossFade.Seconds(),
		clamp:     opts.ClampOnFinish,
		actions:   make(map[string]Action, len(clips)),
		entries:   make(map[string]ClipEntry, len(clips)),
	}
	if opts.Logger != nil {
		c.log = opts.Logger.With().Str("component", "animation").Logger()
	}
	if c.crossFade < 0 {
		c.crossFade = 0
	}

	for _, e := range clips {
		a := m.ClipAction(e.Clip)
		a.SetClampWhenFinished(c.clamp)
		c.actions[e.Name] = a
		c.entries[e.Name] = e
	}

	m.OnFinished(c.onFinished)

	c.log.Debug().Int("clips", len(clips)).Float64("cross_fade", c.crossFade).Msg("Controller ready")
	return c, nil
}

func validate(clips []ClipEntry) error {
	if len(clips) == 0 {
		return ErrNoClips
	}
	seen := make(map[string]struct{}, len(clips))
	owners := make(map[*mixer.Clip]string, len(clips))
	for _, e := range clips {
		if e.Clip == nil {
			return fmt.Errorf("%w: %q", ErrNilClip, e.Name)
		}
		if _, ok := seen[e.Name]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateClip, e.Name)
		}
		if owner, ok := owners[e.Clip]; ok {
			return fmt.Errorf("%w: %q and %q", ErrSharedClip, owner, e.Name)
		}
		seen[e.Name] = struct{}{}
		owners[e.Clip] = e.Name
	}
	return nil
}

// onFinished runs inside mixer.Update, so c.mu is already held.
func (c *Controller) onFinished(a Action) {
	p := c.pending
	if p == nil || p.action != a {
		return
	}
	c.pending = nil
	if p.fn != nil {
		c.ready = append(c.ready, p.fn)
	}
	c.log.Debug().Str("clip", p.name).Msg("One-shot finished")
}

// Play starts name with the given loop mode. repetitions <= 0 means
// unbounded. Any unfired callback from an earlier call is dropped. Unknown
// names are ignored.
func (c *Controller) Play(name string, loop mixer.LoopMode, repetitions int, onFinished func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return
	}
	next, ok := c.actions[name]
	if !ok {
		c.log.Debug().Str("clip", name).Msg("Unknown clip, ignoring play")
		return
	}

	next.Reset()
	next.SetLoop(loop, repetitions)
	next.SetClampWhenFinished(c.clamp)

	switch {
	case c.current == nil:
		next.FadeIn(c.crossFade)
		next.Play()
	case c.current == next:
		// Restart in place; an in-flight fade keeps ramping.
		next.Play()
	default:
		c.current.FadeOut(c.crossFade)
		next.FadeIn(c.crossFade)
		next.Play()
	}

	c.current = next
	c.currentName = name
	c.pending = nil
	if onFinished != nil {
		c.pending = &pendingCallback{action: next, name: name, fn: onFinished}
	}

	c.log.Debug().Str("clip", name).Stringer("loop", loop).Msg("Playing")
}

// PlayOnce plays name a single time and calls onFinished when it ends,
// unless another Play or PlayOnce supersedes it first.
func (c *Controller) PlayOnce(name string, onFinished func()) {
	c.Play(name, mixer.LoopOnce, 1, onFinished)
}

// Stop halts all playback at once and drops any pending callback.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return
	}
	c.mixer.StopAllAction()
	c.current = nil
	c.currentName = ""
	c.pending = nil
	c.ready = nil
}

// Update advances playback by dt seconds. Completion callbacks for one-shots
// that ended during this step run before Update returns.
func (c *Controller) Update(dt float64) {
	c.mu.Lock()
	if c.disposed || !(dt > 0) || math.IsInf(dt, 0) {
		c.mu.Unlock()
		return
	}
	c.mixer.Update(dt)
	ready := c.ready
	c.ready = nil
	c.mu.Unlock()

	for _, fn := range ready {
		fn()
	}
}

// Dispose stops everything and releases the skeleton. Idempotent.
func (c *Controller) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return
	}
	c.mixer.StopAllAction()
	c.actions = nil
	c.entries = nil
	c.current = nil
	c.currentName = ""
	c.pending = nil
	c.ready = nil
	c.disposed = true
	if c.release != nil {
		c.release()
		c.release = nil
	}
	c.log.Debug().Msg("Controller disposed")
}

// CurrentName returns the clip driving the skeleton.
func (c *Controller) CurrentName() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return "", false
	}
	return c.currentName, true
}

// HasPending reports whether a completion callback is waiting.
func (c *Controller) HasPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

// Weight returns the effective blend weight of name as of the last update.
func (c *Controller) Weight(name string) float32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	a, ok := c.actions[name]
	if !ok {
		return 0
	}
	return a.EffectiveWeight()
}

// Has reports whether name is registered.
func (c *Controller) Has(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.actions[name]
	return ok
}

// Duration returns the clip length of name in seconds.
func (c *Controller) Duration(name string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[name]
	return e.Duration, ok
}

// Names returns the registered clip names, sorted.
func (c *Controller) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, len(c.actions))
	for n := range c.actions {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Disposed reports whether Dispose has run.
func (c *Controller) Disposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}

// mixerAdapter exposes *mixer.Mixer through the Mixer interface.
type mixerAdapter struct {
	m *mixer.Mixer
}

func (a mixerAdapter) ClipAction(clip *mixer.Clip) Action { return a.m.ClipAction(clip) }
func (a mixerAdapter) Update(dt float64) { a.m.Update(dt) }
func (a mixerAdapter) StopAllAction() { a.m.StopAllAction() }

func (a mixerAdapter) OnFinished(fn func(Action)) {
	a.m.OnFinished(func(ev mixer.FinishedEvent) { fn(ev.Action) })
}
