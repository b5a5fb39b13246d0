package dispatch

import (
	"sync"
	"testing"
	"time"

	"github.com/normanking/cortexanim/internal/mixer"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var library = []string{
	"Dance M M_Dances_001",
	"Expression M M_Talking_Variations_003",
	"Idle F F_Standing_Idle_001",
}

type call struct {
	name string
	loop mixer.LoopMode
	cb   func()
}

type fakePlayer struct {
	calls []call
}

func (p *fakePlayer) Play(name string, loop mixer.LoopMode, _ int, cb func()) {
	p.calls = append(p.calls, call{name, loop, cb})
}

func (p *fakePlayer) PlayOnce(name string, cb func()) {
	p.calls = append(p.calls, call{name, mixer.LoopOnce, cb})
}

type fakeIdle struct {
	returns  int
	suspends int
}

func (i *fakeIdle) ReturnToIdle() { i.returns++ }
func (i *fakeIdle) Suspend()      { i.suspends++ }

func newDispatcher() (*Dispatcher, *fakePlayer, *fakeIdle) {
	p := &fakePlayer{}
	i := &fakeIdle{}
	return New(p, i, NewResolver(library), zerolog.Nop()), p, i
}

func TestResolve(t *testing.T) {
	r := NewResolver(library)

	tests := []struct {
		in   string
		want string
	}{
		{"Dance M M_Dances_001", "Dance M M_Dances_001"},
		{"  idle f f_standing_idle_001 ", "Idle F F_Standing_Idle_001"},
		{"talking", "Expression M M_Talking_Variations_003"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := r.Resolve(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := r.Resolve("xyzzy")
	assert.ErrorIs(t, err, ErrUnresolved)
	_, err = r.Resolve("   ")
	assert.ErrorIs(t, err, ErrUnresolved)
}

func TestParseCommandType(t *testing.T) {
	ct, ok := ParseCommandType(" Play_Once ")
	assert.True(t, ok)
	assert.Equal(t, PlayOnce, ct)

	_, ok = ParseCommandType("jump")
	assert.False(t, ok)
}

func TestSubmit_AssignsIDAndDefersToUpdate(t *testing.T) {
	d, p, _ := newDispatcher()

	id := d.Submit(Command{Type: PlayOnce, Description: "talking"})
	assert.NotEmpty(t, id)
	assert.Equal(t, "given", d.Submit(Command{ID: "given", Type: ReturnIdle}))
	assert.Equal(t, 2, d.Pending())
	assert.Empty(t, p.calls)

	d.Update(0.016)
	assert.Zero(t, d.Pending())
	require.Len(t, p.calls, 1)
}

func TestPlayOnce_ReturnsToIdleOnCompletion(t *testing.T) {
	d, p, idle := newDispatcher()

	var results []Result
	d.OnResult(func(r Result) { results = append(results, r) })

	d.Submit(Command{Type: Emphasis, Description: "talking"})
	d.Update(0.016)

	require.Len(t, p.calls, 1)
	assert.Equal(t, "Expression M M_Talking_Variations_003", p.calls[0].name)
	assert.Equal(t, mixer.LoopOnce, p.calls[0].loop)
	assert.Equal(t, 1, idle.suspends)
	assert.Zero(t, idle.returns)

	require.NotNil(t, p.calls[0].cb)
	p.calls[0].cb()
	assert.Equal(t, 1, idle.returns)

	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, "Expression M M_Talking_Variations_003", results[0].Clip)
}

func TestStartLoop_HoldReturnsToIdle(t *testing.T) {
	d, p, idle := newDispatcher()
	d.DefaultHold = 5 * time.Second

	d.Submit(Command{Type: StartLoop, Description: "Dance M M_Dances_001", Hold: time.Second})
	d.Update(0.5)
	require.Len(t, p.calls, 1)
	assert.Equal(t, mixer.LoopRepeat, p.calls[0].loop)
	assert.Nil(t, p.calls[0].cb)
	assert.True(t, d.ReturnArmed())

	d.Update(0.6)
	assert.Equal(t, 1, idle.returns)
	assert.False(t, d.ReturnArmed())

	d.Update(10)
	assert.Equal(t, 1, idle.returns)
}

func TestStartLoop_DefaultAndIndefiniteHold(t *testing.T) {
	d, _, idle := newDispatcher()
	d.DefaultHold = 2 * time.Second

	d.Submit(Command{Type: StartLoop, Description: "dances"})
	d.Update(1.9)
	assert.Zero(t, idle.returns)
	d.Update(0.2)
	assert.Equal(t, 1, idle.returns)

	d.Submit(Command{Type: StartLoop, Description: "dances", Hold: -1})
	d.Update(100)
	assert.Equal(t, 1, idle.returns)
	assert.False(t, d.ReturnArmed())
}

func TestNewCommandCancelsHold(t *testing.T) {
	d, p, idle := newDispatcher()

	d.Submit(Command{Type: StartLoop, Description: "dances", Hold: time.Second})
	d.Update(0.1)
	d.Submit(Command{Type: PlayOnce, Description: "talking"})
	d.Update(2)

	assert.Len(t, p.calls, 2)
	assert.Zero(t, idle.returns)
	assert.Equal(t, 2, idle.suspends)
}

func TestStopLoopAndReturnIdle(t *testing.T) {
	d, p, idle := newDispatcher()

	d.Submit(Command{Type: StartLoop, Description: "dances", Hold: time.Minute})
	d.Submit(Command{Type: StopLoop})
	d.Update(0.016)
	assert.Equal(t, 1, idle.returns)
	assert.False(t, d.ReturnArmed())

	d.Submit(Command{Type: ReturnIdle})
	d.Update(0.016)
	assert.Equal(t, 2, idle.returns)
	assert.Len(t, p.calls, 1)
}

func TestUnresolvedAndUnknownAreNoOps(t *testing.T) {
	d, p, idle := newDispatcher()

	var results []Result
	d.OnResult(func(r Result) { results = append(results, r) })

	d.Submit(Command{Type: StartLoop, Description: "dances", Hold: time.Second})
	d.Submit(Command{Type: PlayOnce, Description: "xyzzy"})
	d.Submit(Command{Type: "jump", Description: "dances"})
	d.Update(0.1)

	require.Len(t, results, 3)
	assert.ErrorIs(t, results[1].Err, ErrUnresolved)
	assert.ErrorIs(t, results[2].Err, ErrUnknownCommand)

	// The loop's hold keeps running.
	assert.Len(t, p.calls, 1)
	assert.Equal(t, 1, idle.suspends)
	assert.True(t, d.ReturnArmed())
}

func TestSubmit_Concurrent(t *testing.T) {
	d, p, _ := newDispatcher()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Submit(Command{Type: PlayOnce, Description: "talking"})
		}()
	}
	wg.Wait()

	d.Update(0.016)
	assert.Len(t, p.calls, 50)
}

func TestSubmit_WhileFrameLoopRuns(t *testing.T) {
	d, p, _ := newDispatcher()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NotEmpty(t, d.Submit(Command{Type: StartLoop, Description: "dances", Hold: time.Second}))
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
		}
		d.Update(0.016)
		_ = d.ReturnArmed()
	}
	d.Update(0.016)

	assert.Len(t, p.calls, 20)
	assert.Zero(t, d.Pending())
	assert.True(t, d.ReturnArmed())
}
