package stage

import (
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/normanking/cortexanim/internal/animation"
	"github.com/normanking/cortexanim/internal/bus"
	"github.com/normanking/cortexanim/internal/dispatch"
	"github.com/normanking/cortexanim/internal/idle"
	"github.com/normanking/cortexanim/internal/mixer"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func slide(name string, seconds float32) animation.ClipEntry {
	clip := mixer.NewClip(name, float64(seconds), []mixer.Track{{
		Joint:   "hips",
		Path:    mixer.PathTranslation,
		Times:   []float32{0, seconds},
		Vectors: []mgl32.Vec3{{0, 0, 0}, {1, 0, 0}},
	}})
	return animation.ClipEntry{Name: name, Clip: clip, Duration: clip.Duration}
}

func character() Character {
	sk := mixer.NewSkeleton()
	sk.AddJoint("hips", mixer.IdentityTransform())
	return Character{
		Skeleton: sk,
		Clips: []animation.ClipEntry{
			slide("Idle M a", 2),
			slide("Idle M b", 2),
			slide("Expression M wave", 1),
			slide("Dance M spin", 3),
		},
		IdleNames: []string{"Idle M a", "Idle M b"},
	}
}

type recorder struct {
	mu     sync.Mutex
	events []bus.Event
}

func (r *recorder) handle(e bus.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) count(t bus.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func newStage() (*Stage, *recorder) {
	events := bus.NewEventBus()
	rec := &recorder{}
	events.SubscribeAll(rec.handle)

	opts := DefaultOptions()
	opts.Idle = idle.Config{}
	opts.Seed = 1
	return New(opts, events, zerolog.Nop()), rec
}

func run(s *Stage, seconds float64) {
	const step = 1.0 / 60
	for t := 0.0; t < seconds; t += step {
		s.Tick(step)
	}
}

func isIdle(name string) bool {
	return name == "Idle M a" || name == "Idle M b"
}

func TestSubmitBeforeLoad(t *testing.T) {
	s, _ := newStage()
	_, err := s.Submit(dispatch.Command{Type: dispatch.PlayOnce, Description: "wave"})
	assert.ErrorIs(t, err, ErrNotLoaded)

	_, ok := s.Current()
	assert.False(t, ok)
	s.Tick(0.016)
}

func TestLoad_StartsIdle(t *testing.T) {
	s, rec := newStage()
	require.NoError(t, s.Load(character()))

	name, ok := s.Current()
	require.True(t, ok)
	assert.True(t, isIdle(name))
	assert.Len(t, s.Names(), 4)
	assert.NotNil(t, s.Skeleton())

	require.Eventually(t, func() bool {
		return rec.count(bus.EventStageLoaded) == 1 && rec.count(bus.EventAnimationIdle) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestLoad_IdleNamesFilteredAndCycling(t *testing.T) {
	s, rec := newStage()
	s.opts.Idle = idle.Config{Interval: time.Second}

	ch := character()
	ch.IdleNames = []string{"Idle M a", "Idle M a", "ghost", "Idle M b"}
	require.NoError(t, s.Load(ch))
	assert.Equal(t, []string{"Idle M a", "Idle M b"}, s.idle.Names())

	for i := 0; i < 10; i++ {
		run(s, 1.1)
		name, ok := s.Current()
		require.True(t, ok)
		assert.True(t, isIdle(name), name)
		assert.True(t, s.idle.Armed())
	}
	require.Eventually(t, func() bool {
		return rec.count(bus.EventAnimationIdle) >= 10
	}, time.Second, 5*time.Millisecond)
}

func TestOneShotReturnsToIdle(t *testing.T) {
	s, rec := newStage()
	require.NoError(t, s.Load(character()))

	id, err := s.Submit(dispatch.Command{Type: dispatch.Emphasis, Description: "wave"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	s.Tick(1.0 / 60)
	name, _ := s.Current()
	assert.Equal(t, "Expression M wave", name)

	run(s, 1.5)
	name, _ = s.Current()
	assert.True(t, isIdle(name), "current %q", name)

	require.Eventually(t, func() bool {
		return rec.count(bus.EventAnimationStarted) == 1 &&
			rec.count(bus.EventAnimationFinished) == 1 &&
			rec.count(bus.EventAnimationIdle) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestLoopHoldsThenReturnsToIdle(t *testing.T) {
	s, _ := newStage()
	require.NoError(t, s.Load(character()))

	_, err := s.Submit(dispatch.Command{Type: dispatch.StartLoop, Description: "Dance M spin", Hold: time.Second})
	require.NoError(t, err)

	run(s, 0.5)
	name, _ := s.Current()
	assert.Equal(t, "Dance M spin", name)

	run(s, 0.7)
	name, _ = s.Current()
	assert.True(t, isIdle(name), "current %q", name)
}

func TestUnresolvedRequestKeepsCurrent(t *testing.T) {
	s, rec := newStage()
	require.NoError(t, s.Load(character()))
	before, _ := s.Current()

	_, err := s.Submit(dispatch.Command{Type: dispatch.PlayOnce, Description: "xyzzy"})
	require.NoError(t, err)
	s.Tick(1.0 / 60)

	after, _ := s.Current()
	assert.Equal(t, before, after)
	require.Eventually(t, func() bool {
		return rec.count(bus.EventAnimationUnresolved) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestLoad_SwapsCharacter(t *testing.T) {
	s, rec := newStage()
	first := character()
	require.NoError(t, s.Load(first))

	// Reloading onto the same skeleton works because the old controller
	// releases it first.
	require.NoError(t, s.Load(first))
	second := character()
	require.NoError(t, s.Load(second))
	assert.Same(t, second.Skeleton, s.Skeleton())

	require.NoError(t, first.Skeleton.Acquire())
	first.Skeleton.Release()

	require.Eventually(t, func() bool {
		return rec.count(bus.EventStageLoaded) == 3
	}, time.Second, 5*time.Millisecond)
}

func TestLoad_FailureLeavesStageEmpty(t *testing.T) {
	s, _ := newStage()
	require.NoError(t, s.Load(character()))

	err := s.Load(Character{Skeleton: mixer.NewSkeleton()})
	assert.ErrorIs(t, err, animation.ErrNoClips)

	_, ok := s.Current()
	assert.False(t, ok)
	_, err = s.Submit(dispatch.Command{Type: dispatch.ReturnIdle})
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestClose(t *testing.T) {
	s, rec := newStage()
	ch := character()
	require.NoError(t, s.Load(ch))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Submit(dispatch.Command{Type: dispatch.ReturnIdle})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Load(ch), ErrClosed)
	s.Tick(0.016)

	require.NoError(t, ch.Skeleton.Acquire())
	require.Eventually(t, func() bool {
		return rec.count(bus.EventStageDisposed) == 1
	}, time.Second, 5*time.Millisecond)
}
