// Package dispatch turns animation requests from the dialogue layer into
// controller calls. Requests may arrive from any goroutine; they run on the
// frame loop in Update.
package dispatch

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/normanking/cortexanim/internal/mixer"
	"github.com/rs/zerolog"
)

// ErrUnknownCommand is reported for command types the dispatcher does not handle.
var ErrUnknownCommand = errors.New("dispatch: unknown command type")

// CommandType is the kind of request sent by the dialogue layer.
type CommandType string

const (
	StartLoop  CommandType = "start_loop"
	PlayOnce   CommandType = "play_once"
	Emphasis   CommandType = "emphasis"
	StopLoop   CommandType = "stop_loop"
	ReturnIdle CommandType = "return_idle"
)

// ParseCommandType accepts the wire names of command types.
func ParseCommandType(s string) (CommandType, bool) {
	switch t := CommandType(strings.ToLower(strings.TrimSpace(s))); t {
	case StartLoop, PlayOnce, Emphasis, StopLoop, ReturnIdle:
		return t, true
	}
	return "", false
}

// Command is one animation request.
type Command struct {
	ID          string
	Type        CommandType
	Description string
	// Hold bounds a start_loop. Zero uses the dispatcher default; negative
	// loops until another request arrives.
	Hold time.Duration
}

// Result reports how a command was handled.
type Result struct {
	Command Command
	Clip    string
	Err     error
}

// Player is the part of the animation controller the dispatcher drives.
type Player interface {
	Play(name string, loop mixer.LoopMode, repetitions int, onFinished func())
	PlayOnce(name string, onFinished func())
}

// Idler is the idle scheduler.
type Idler interface {
	ReturnToIdle()
	Suspend()
}

// Dispatcher queues requests from any goroutine and runs them on the frame
// loop. mu guards the queue only; every other field belongs to the frame loop.
type Dispatcher struct {
	mu    sync.Mutex
	queue []Command

	player   Player
	idle     Idler
	resolver *Resolver
	log      zerolog.Logger

	// DefaultHold applies to start_loop commands without a hold.
	DefaultHold time.Duration

	returnArmed bool
	returnIn    float64

	onResult func(Result)
}

func New(player Player, idle Idler, resolver *Resolver, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		player:   player,
		idle:     idle,
		resolver: resolver,
		log:      log.With().Str("component", "dispatch").Logger(),
	}
}

// OnResult registers a function called on the frame loop after each command.
func (d *Dispatcher) OnResult(fn func(Result)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onResult = fn
}

// Submit queues a command and returns its ID. Safe from any goroutine.
func (d *Dispatcher) Submit(cmd Command) string {
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	d.mu.Lock()
	d.queue = append(d.queue, cmd)
	d.mu.Unlock()
	return cmd.ID
}

// Pending is the number of queued commands.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Update runs queued commands in order, then advances the return-to-idle
// timer. Call it from the frame loop only.
func (d *Dispatcher) Update(dt float64) {
	d.mu.Lock()
	queue := d.queue
	d.queue = nil
	onResult := d.onResult
	d.mu.Unlock()

	for _, cmd := range queue {
		res := d.run(cmd)
		if onResult != nil {
			onResult(res)
		}
	}

	if !d.returnArmed || dt <= 0 {
		return
	}
	d.returnIn -= dt
	if d.returnIn <= 0 {
		d.returnArmed = false
		d.log.Debug().Msg("Hold elapsed, returning to idle")
		d.idle.ReturnToIdle()
	}
}

func (d *Dispatcher) run(cmd Command) Result {
	res := Result{Command: cmd}
	log := d.log.With().Str("id", cmd.ID).Str("type", string(cmd.Type)).Logger()

	switch cmd.Type {
	case StopLoop, ReturnIdle:
		d.cancelReturn()
		d.idle.ReturnToIdle()
		log.Debug().Msg("Returned to idle")
		return res

	case StartLoop, PlayOnce, Emphasis:
		name, err := d.resolver.Resolve(cmd.Description)
		if err != nil {
			res.Err = fmt.Errorf("%w: %q", err, cmd.Description)
			log.Warn().Str("description", cmd.Description).Msg("Animation not found")
			return res
		}
		res.Clip = name

		d.cancelReturn()
		d.idle.Suspend()

		if cmd.Type == StartLoop {
			d.player.Play(name, mixer.LoopRepeat, 0, nil)
			hold := cmd.Hold
			if hold == 0 {
				hold = d.DefaultHold
			}
			if hold > 0 {
				d.returnArmed = true
				d.returnIn = hold.Seconds()
			}
		} else {
			d.player.PlayOnce(name, d.idle.ReturnToIdle)
		}
		log.Info().Str("clip", name).Msg("Animation started")
		return res

	default:
		res.Err = fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
		log.Warn().Msg("Unknown command type")
		return res
	}
}

func (d *Dispatcher) cancelReturn() {
	d.returnArmed = false
	d.returnIn = 0
}

// ReturnArmed reports whether a hold timer is running. Like Update, call it
// from the frame loop only.
func (d *Dispatcher) ReturnArmed() bool {
	return d.returnArmed
}
