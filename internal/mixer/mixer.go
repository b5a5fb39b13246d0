package mixer

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// FinishedEvent reports that an action reached the end of its playback.
type FinishedEvent struct {
	Action *Action
	Clip   *Clip
}

// FinishedListener receives finished events after the pose has been applied.
type FinishedListener func(FinishedEvent)

type accum struct {
	translation mgl32.Vec3
	scale       mgl32.Vec3
	rotation    mgl32.Quat
	tWeight     float32
	sWeight     float32
	rWeight     float32
}

// Mixer owns the actions of one skeleton and writes their blended pose.
// A Mixer is not safe for concurrent use; its owner serializes calls.
type Mixer struct {
	root *Skeleton
	time float64

	actions map[*Clip]*Action
	active  []*Action

	finished  []FinishedEvent
	listeners []FinishedListener

	accums map[*Joint]*accum
}

// New creates a mixer bound to root.
func New(root *Skeleton) *Mixer {
	return &Mixer{
		root:    root,
		actions: make(map[*Clip]*Action),
		accums:  make(map[*Joint]*accum),
	}
}

// Root returns the bound skeleton.
func (m *Mixer) Root() *Skeleton { return m.root }

// Time is the accumulated mixer time in seconds.
func (m *Mixer) Time() float64 { return m.time }

// ClipAction returns the action for clip, creating it on first use.
func (m *Mixer) ClipAction(clip *Clip) *Action {
	if a, ok := m.actions[clip]; ok {
		return a
	}
	a := newAction(m, clip)
	m.actions[clip] = a
	return a
}

// OnFinished registers a listener for finished events.
func (m *Mixer) OnFinished(l FinishedListener) {
	m.listeners = append(m.listeners, l)
}

// ActiveCount is the number of scheduled actions.
func (m *Mixer) ActiveCount() int { return len(m.active) }

func (m *Mixer) activate(a *Action) {
	if a.active {
		return
	}
	a.active = true
	m.active = append(m.active, a)
}

func (m *Mixer) deactivate(a *Action) {
	if !a.active {
		return
	}
	a.active = false
	for i, x := range m.active {
		if x == a {
			m.active = append(m.active[:i], m.active[i+1:]...)
			break
		}
	}
}

func (m *Mixer) queueFinished(a *Action) {
	m.finished = append(m.finished, FinishedEvent{Action: a, Clip: a.clip})
}

// StopAllAction unschedules every action and restores the rest pose.
func (m *Mixer) StopAllAction() {
	for len(m.active) > 0 {
		m.active[len(m.active)-1].Stop()
	}
	m.finished = m.finished[:0]
	m.root.ResetPose()
}

// Update advances time by dt seconds, writes the blended pose and then
// dispatches finished events. Non-positive or NaN dt is ignored.
func (m *Mixer) Update(dt float64) {
	if !(dt > 0) || math.IsInf(dt, 0) {
		return
	}
	m.time += dt

	var stopped []*Action
	for _, a := range m.active {
		if a.update(m.time, dt) {
			stopped = append(stopped, a)
		}
	}
	for _, a := range stopped {
		a.Stop()
	}

	m.applyPose()

	if len(m.finished) == 0 {
		return
	}
	events := m.finished
	m.finished = nil
	for _, ev := range events {
		for _, l := range m.listeners {
			l(ev)
		}
	}
}

func (m *Mixer) applyPose() {
	for _, acc := range m.accums {
		*acc = accum{}
	}

	for _, a := range m.active {
		w := a.effective
		if w <= 0 {
			continue
		}
		at := float32(a.time)
		for i := range a.clip.Tracks {
			j := a.bindings[i]
			if j == nil {
				continue
			}
			acc := m.accums[j]
			if acc == nil {
				acc = &accum{}
				m.accums[j] = acc
			}
			tr := &a.clip.Tracks[i]
			switch tr.Path {
			case PathTranslation:
				acc.translation = acc.translation.Add(tr.SampleVector(at).Mul(w))
				acc.tWeight += w
			case PathScale:
				acc.scale = acc.scale.Add(tr.SampleVector(at).Mul(w))
				acc.sWeight += w
			case PathRotation:
				q := tr.SampleRotation(at)
				// Keep all contributions in the same hemisphere.
				if acc.rWeight > 0 && acc.rotation.Dot(q) < 0 {
					q = q.Scale(-1)
				}
				acc.rotation = acc.rotation.Add(q.Scale(w))
				acc.rWeight += w
			}
		}
	}

	for j, acc := range m.accums {
		j.Pose = blendWithRest(j.Rest, acc)
	}
}

func blendWithRest(rest Transform, acc *accum) Transform {
	out := rest

	if acc.tWeight > 0 {
		if acc.tWeight < 1 {
			out.Translation = acc.translation.Add(rest.Translation.Mul(1 - acc.tWeight))
		} else {
			out.Translation = acc.translation.Mul(1 / acc.tWeight)
		}
	}
	if acc.sWeight > 0 {
		if acc.sWeight < 1 {
			out.Scale = acc.scale.Add(rest.Scale.Mul(1 - acc.sWeight))
		} else {
			out.Scale = acc.scale.Mul(1 / acc.sWeight)
		}
	}
	if acc.rWeight > 0 {
		q := acc.rotation
		if acc.rWeight < 1 {
			r := rest.Rotation
			if q.Dot(r) < 0 {
				r = r.Scale(-1)
			}
			q = q.Add(r.Scale(1 - acc.rWeight))
		}
		if q.Len() > 0 {
			out.Rotation = q.Normalize()
		}
	}
	return out
}
