package mixer

import "math"

// LoopMode controls what an action does when its clock reaches the clip end.
type LoopMode int

const (
	// LoopRepeat wraps back to the start, optionally a finite number of times.
	LoopRepeat LoopMode = iota
	// LoopOnce plays a single pass and then finishes.
	LoopOnce
)

func (l LoopMode) String() string {
	if l == LoopOnce {
		return "once"
	}
	return "repeat"
}

type weightFade struct {
	start     float64
	duration  float64
	from, to  float32
	stopOnEnd bool
}

// Action is the live instance of a clip bound to a mixer's skeleton.
type Action struct {
	mixer    *Mixer
	clip     *Clip
	bindings []*Joint

	time      float64
	timeScale float64
	weight    float32
	effective float32

	loop        LoopMode
	repetitions int
	loopCount   int
	clamp       bool

	enabled bool
	paused  bool
	active  bool

	fade *weightFade
}

func newAction(m *Mixer, clip *Clip) *Action {
	a := &Action{
		mixer:     m,
		clip:      clip,
		timeScale: 1,
		weight:    1,
		loop:      LoopRepeat,
		loopCount: -1,
		enabled:   true,
	}
	a.bindings = make([]*Joint, len(clip.Tracks))
	for i := range clip.Tracks {
		a.bindings[i] = m.root.Joint(clip.Tracks[i].Joint)
	}
	return a
}

// Clip returns the clip this action plays.
func (a *Action) Clip() *Clip { return a.clip }

// Time is the local clock in seconds.
func (a *Action) Time() float64 { return a.time }

// LoopCount is the number of completed loops, or -1 before the first update.
func (a *Action) LoopCount() int { return a.loopCount }

// Paused reports whether the clock is held, e.g. a clamped finished one-shot.
func (a *Action) Paused() bool { return a.paused }

// Enabled reports whether the action contributes to the pose.
func (a *Action) Enabled() bool { return a.enabled }

// EffectiveWeight is the blend weight computed on the last update.
func (a *Action) EffectiveWeight() float32 { return a.effective }

// Fading reports whether a weight fade is in flight.
func (a *Action) Fading() bool { return a.fade != nil }

// IsRunning reports whether the action is scheduled and advancing.
func (a *Action) IsRunning() bool {
	return a.active && a.enabled && !a.paused && a.timeScale != 0
}

// Reset rewinds the clock and loop state and re-enables the action. A weight
// fade in flight keeps running.
func (a *Action) Reset() {
	a.paused = false
	a.enabled = true
	a.time = 0
	a.loopCount = -1
}

// SetLoop sets the loop mode. repetitions <= 0 means unbounded.
func (a *Action) SetLoop(mode LoopMode, repetitions int) {
	a.loop = mode
	a.repetitions = repetitions
}

// SetClampWhenFinished holds the last frame when a one-shot finishes.
func (a *Action) SetClampWhenFinished(clamp bool) {
	a.clamp = clamp
}

// SetTimeScale changes playback speed.
func (a *Action) SetTimeScale(scale float64) {
	a.timeScale = scale
}

// Play schedules the action in its mixer.
func (a *Action) Play() {
	a.mixer.activate(a)
}

// Stop unschedules the action, drops any fade and rewinds it.
func (a *Action) Stop() {
	a.mixer.deactivate(a)
	a.fade = nil
	a.effective = 0
	a.Reset()
}

// FadeIn ramps the weight from 0 to 1 over seconds.
func (a *Action) FadeIn(seconds float64) {
	a.scheduleFade(seconds, 0, 1, false)
}

// FadeOut ramps the weight from 1 to 0 over seconds and then stops the action.
func (a *Action) FadeOut(seconds float64) {
	a.scheduleFade(seconds, 1, 0, true)
}

// StopFading cancels a fade in flight, leaving the base weight.
func (a *Action) StopFading() {
	a.fade = nil
}

func (a *Action) scheduleFade(seconds float64, from, to float32, stopOnEnd bool) {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	a.fade = &weightFade{
		start:     a.mixer.time,
		duration:  seconds,
		from:      from,
		to:        to,
		stopOnEnd: stopOnEnd,
	}
	// Seed the effective weight so readers see the fade origin before the
	// next update.
	a.effective = a.weight * from
}

// update advances weight and clock. It reports whether the action should be
// unscheduled because a fade-out completed.
func (a *Action) update(now, dt float64) (stop bool) {
	if !a.enabled {
		a.effective = 0
		return false
	}

	w := a.weight
	if f := a.fade; f != nil {
		progress := 1.0
		if f.duration > 0 {
			progress = (now - f.start) / f.duration
		}
		if progress >= 1 {
			w *= f.to
			a.fade = nil
			if f.stopOnEnd {
				a.effective = 0
				return true
			}
		} else {
			w *= f.from + (f.to-f.from)*float32(progress)
		}
	}
	a.effective = w

	if !a.paused {
		a.advance(dt * a.timeScale)
	}
	return false
}

func (a *Action) advance(dt float64) {
	if dt == 0 {
		return
	}
	dur := a.clip.Duration
	if a.loopCount == -1 {
		a.loopCount = 0
	}
	a.time += dt

	if a.loop == LoopOnce {
		if a.time >= dur {
			a.time = dur
			a.finish()
		} else if a.time < 0 {
			a.time = 0
			a.finish()
		}
		return
	}

	if dur <= 0 {
		a.time = 0
		return
	}
	if a.time < dur && a.time >= 0 {
		return
	}
	loops := math.Floor(a.time / dur)
	a.time -= dur * loops
	a.loopCount += int(math.Abs(loops))
	if a.repetitions > 0 && a.loopCount >= a.repetitions {
		if dt > 0 {
			a.time = dur
		} else {
			a.time = 0
		}
		a.finish()
	}
}

func (a *Action) finish() {
	if a.clamp {
		a.paused = true
	} else {
		a.enabled = false
	}
	a.mixer.queueFinished(a)
}
