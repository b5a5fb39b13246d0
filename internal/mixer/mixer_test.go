package mixer

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func slideClip(name, joint string, duration float32, to mgl32.Vec3) *Clip {
	return NewClip(name, float64(duration), []Track{{
		Joint:   joint,
		Path:    PathTranslation,
		Times:   []float32{0, duration},
		Vectors: []mgl32.Vec3{{0, 0, 0}, to},
	}})
}

func newRig(t *testing.T) *Skeleton {
	t.Helper()
	sk := NewSkeleton()
	sk.AddJoint("hips", IdentityTransform())
	sk.AddJoint("head", IdentityTransform())
	return sk
}

func TestTrack_SampleVector(t *testing.T) {
	tr := Track{
		Path:    PathTranslation,
		Times:   []float32{0, 1, 2},
		Vectors: []mgl32.Vec3{{0, 0, 0}, {2, 0, 0}, {2, 4, 0}},
	}

	tests := []struct {
		name string
		at   float32
		want mgl32.Vec3
	}{
		{"before first key", -1, mgl32.Vec3{0, 0, 0}},
		{"midpoint", 0.5, mgl32.Vec3{1, 0, 0}},
		{"on key", 1, mgl32.Vec3{2, 0, 0}},
		{"second span", 1.25, mgl32.Vec3{2, 1, 0}},
		{"after last key", 5, mgl32.Vec3{2, 4, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tr.SampleVector(tt.at)
			assert.True(t, got.ApproxEqualThreshold(tt.want, 1e-5), "got %v want %v", got, tt.want)
		})
	}
}

func TestTrack_StepInterpolation(t *testing.T) {
	tr := Track{
		Path:          PathScale,
		Interpolation: InterpStep,
		Times:         []float32{0, 1},
		Vectors:       []mgl32.Vec3{{1, 1, 1}, {3, 3, 3}},
	}
	assert.Equal(t, mgl32.Vec3{1, 1, 1}, tr.SampleVector(0.9))
	assert.Equal(t, mgl32.Vec3{3, 3, 3}, tr.SampleVector(1))
}

func TestTrack_SampleRotation(t *testing.T) {
	quarter := mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{0, 1, 0})
	tr := Track{
		Path:      PathRotation,
		Times:     []float32{0, 1},
		Rotations: []mgl32.Quat{mgl32.QuatIdent(), quarter},
	}
	half := mgl32.QuatRotate(mgl32.DegToRad(45), mgl32.Vec3{0, 1, 0})
	assert.True(t, tr.SampleRotation(0.5).ApproxEqualThreshold(half, 1e-4))
}

func TestNewClip_DerivesDuration(t *testing.T) {
	c := NewClip("wave", -1, []Track{
		{Path: PathTranslation, Times: []float32{0, 1.5}, Vectors: make([]mgl32.Vec3, 2)},
		{Path: PathRotation, Times: []float32{0, 2.25}, Rotations: []mgl32.Quat{mgl32.QuatIdent(), mgl32.QuatIdent()}},
	})
	assert.InDelta(t, 2.25, c.Duration, 1e-6)
}

func TestAction_OnceFinishesExactlyOnceAndClamps(t *testing.T) {
	sk := newRig(t)
	m := New(sk)
	clip := slideClip("wave", "hips", 1, mgl32.Vec3{4, 0, 0})

	var events []FinishedEvent
	m.OnFinished(func(ev FinishedEvent) { events = append(events, ev) })

	a := m.ClipAction(clip)
	a.SetLoop(LoopOnce, 1)
	a.SetClampWhenFinished(true)
	a.Play()

	for i := 0; i < 30; i++ {
		m.Update(0.1)
	}

	require.Len(t, events, 1)
	assert.Same(t, a, events[0].Action)
	assert.True(t, a.Paused())
	assert.InDelta(t, 1.0, a.Time(), 1e-9)
	assert.InDelta(t, 4.0, sk.Joint("hips").Pose.Translation.X(), 1e-4)
}

func TestAction_OnceWithoutClampDisables(t *testing.T) {
	sk := newRig(t)
	m := New(sk)
	a := m.ClipAction(slideClip("wave", "hips", 0.5, mgl32.Vec3{4, 0, 0}))
	a.SetLoop(LoopOnce, 1)
	a.Play()

	m.Update(1)
	assert.False(t, a.Enabled())

	m.Update(0.1)
	assert.Zero(t, a.EffectiveWeight())
	assert.Equal(t, mgl32.Vec3{}, sk.Joint("hips").Pose.Translation)
}

func TestAction_RepeatWrapsAndFiniteRepetitionsFinish(t *testing.T) {
	m := New(newRig(t))
	finished := 0
	m.OnFinished(func(FinishedEvent) { finished++ })

	loop := m.ClipAction(slideClip("idle", "hips", 1, mgl32.Vec3{1, 0, 0}))
	loop.Play()
	m.Update(2.5)
	assert.InDelta(t, 0.5, loop.Time(), 1e-9)
	assert.Equal(t, 2, loop.LoopCount())
	assert.Zero(t, finished)

	twice := m.ClipAction(slideClip("nod", "head", 1, mgl32.Vec3{0, 1, 0}))
	twice.SetLoop(LoopRepeat, 2)
	twice.Play()
	m.Update(1.2)
	assert.Zero(t, finished)
	m.Update(1.2)
	assert.Equal(t, 1, finished)
}

func TestAction_CrossFadeWeights(t *testing.T) {
	m := New(newRig(t))
	idle := m.ClipAction(slideClip("idle", "hips", 2, mgl32.Vec3{1, 0, 0}))
	dance := m.ClipAction(slideClip("dance", "hips", 2, mgl32.Vec3{0, 1, 0}))

	idle.Play()
	m.Update(0.1)

	idle.FadeOut(0.4)
	dance.FadeIn(0.4)
	dance.Play()

	m.Update(0.2)
	assert.InDelta(t, 0.5, idle.EffectiveWeight(), 1e-5)
	assert.InDelta(t, 0.5, dance.EffectiveWeight(), 1e-5)

	m.Update(0.25)
	assert.False(t, idle.IsRunning())
	assert.Zero(t, idle.EffectiveWeight())
	assert.InDelta(t, 1.0, dance.EffectiveWeight(), 1e-6)
	assert.Equal(t, 1, m.ActiveCount())
}

func TestAction_ResetKeepsFade(t *testing.T) {
	m := New(newRig(t))
	a := m.ClipAction(slideClip("idle", "hips", 2, mgl32.Vec3{1, 0, 0}))
	a.FadeIn(1)
	a.Play()
	m.Update(0.5)

	a.Reset()
	assert.True(t, a.Fading())
	assert.Zero(t, a.Time())

	m.Update(0.25)
	assert.InDelta(t, 0.75, a.EffectiveWeight(), 1e-5)
}

func TestMixer_BlendFillsFromRest(t *testing.T) {
	sk := newRig(t)
	sk.AddJoint("hips", Transform{Translation: mgl32.Vec3{0, 2, 0}, Rotation: mgl32.QuatIdent(), Scale: mgl32.Vec3{1, 1, 1}})
	m := New(sk)

	hold := NewClip("hold", 1, []Track{{
		Joint:   "hips",
		Path:    PathTranslation,
		Times:   []float32{0},
		Vectors: []mgl32.Vec3{{4, 2, 0}},
	}})
	a := m.ClipAction(hold)
	a.FadeIn(1)
	a.Play()
	m.Update(0.25)

	got := sk.Joint("hips").Pose.Translation
	assert.InDelta(t, 1.0, got.X(), 1e-5)
	assert.InDelta(t, 2.0, got.Y(), 1e-5)
}

func TestMixer_StopAllActionRestoresRest(t *testing.T) {
	sk := newRig(t)
	m := New(sk)
	a := m.ClipAction(slideClip("walk", "hips", 1, mgl32.Vec3{3, 0, 0}))
	a.Play()
	m.Update(0.5)
	require.NotEqual(t, mgl32.Vec3{}, sk.Joint("hips").Pose.Translation)

	m.StopAllAction()
	assert.Zero(t, m.ActiveCount())
	assert.Equal(t, mgl32.Vec3{}, sk.Joint("hips").Pose.Translation)
}

func TestMixer_ListenerMayStartActions(t *testing.T) {
	m := New(newRig(t))
	once := m.ClipAction(slideClip("wave", "hips", 0.2, mgl32.Vec3{1, 0, 0}))
	next := m.ClipAction(slideClip("idle", "hips", 1, mgl32.Vec3{0, 0, 1}))
	once.SetLoop(LoopOnce, 1)

	m.OnFinished(func(ev FinishedEvent) {
		if ev.Action == once {
			next.Play()
		}
	})
	once.Play()
	m.Update(0.3)

	assert.True(t, next.IsRunning())
}

func TestMixer_IgnoresNonPositiveDelta(t *testing.T) {
	m := New(newRig(t))
	m.Update(0)
	m.Update(-1)
	assert.Zero(t, m.Time())
}

func TestSkeleton_AcquireIsExclusive(t *testing.T) {
	sk := NewSkeleton()
	require.NoError(t, sk.Acquire())
	assert.ErrorIs(t, sk.Acquire(), ErrSkeletonInUse)
	sk.Release()
	assert.NoError(t, sk.Acquire())
}

func TestMixer_UnboundTracksAreIgnored(t *testing.T) {
	sk := newRig(t)
	m := New(sk)
	a := m.ClipAction(slideClip("tail", "tail", 1, mgl32.Vec3{1, 1, 1}))
	a.Play()
	assert.NotPanics(t, func() { m.Update(0.5) })
	assert.Nil(t, sk.Joint("tail"))
}
