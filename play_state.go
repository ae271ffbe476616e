package avplay

import (
	"context"
	"errors"
	"sync"

	"github.com/looplab/fsm"
)

// PlayState is the playback state of a [Decoder]: [Stopped], [Playing],
// [Paused] or [Finished].
type PlayState uint8

// Returns a string representation of the play state
// ("Stopped", "Playing", "Paused", "Finished", "Unknown").
func (s PlayState) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Playing:
		return "Playing"
	case Paused:
		return "Paused"
	case Finished:
		return "Finished"
	default:
		return "Unknown"
	}
}

const (
	Stopped PlayState = iota
	Playing
	Paused
	Finished
)

// fsm state names
const (
	stateStopped  = "stopped"
	statePlaying  = "playing"
	statePaused   = "paused"
	stateFinished = "finished"
)

// fsm event names
const (
	eventPlay   = "play"
	eventPause  = "pause"
	eventResume = "resume"
	eventStop   = "stop"
	eventFinish = "finish"
)

var stateByName = map[string]PlayState{
	stateStopped:  Stopped,
	statePlaying:  Playing,
	statePaused:   Paused,
	stateFinished: Finished,
}

// playStateMachine wraps looplab/fsm with the allowed transitions. Every
// successful transition is handed to onChange; it's mutated from the command
// API, the read loop and the video decode goroutine.
type playStateMachine struct {
	mutex    sync.Mutex
	machine  *fsm.FSM
	onChange func(PlayState)
}

func newPlayStateMachine(onChange func(PlayState)) *playStateMachine {
	m := &playStateMachine{onChange: onChange}
	m.machine = fsm.NewFSM(
		stateStopped,
		fsm.Events{
			{Name: eventPlay, Src: []string{stateStopped, stateFinished}, Dst: statePlaying},
			{Name: eventPause, Src: []string{statePlaying}, Dst: statePaused},
			{Name: eventResume, Src: []string{statePaused}, Dst: statePlaying},
			{Name: eventStop, Src: []string{statePlaying, statePaused, stateFinished}, Dst: stateStopped},
			{Name: eventFinish, Src: []string{statePlaying, statePaused}, Dst: stateFinished},
		},
		nil,
	)
	return m
}

// Current returns the current state.
func (m *playStateMachine) Current() PlayState {
	return stateByName[m.machine.Current()]
}

// fire applies event and broadcasts the new state. It returns false if the
// event isn't allowed from the current state.
func (m *playStateMachine) fire(event string) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.noLockFire(event)
}

// preconditions: m.mutex is locked
func (m *playStateMachine) noLockFire(event string) bool {
	err := m.machine.Event(context.Background(), event)
	if err != nil {
		var noTransition fsm.NoTransitionError
		if !errors.As(err, &noTransition) {
			pkgLogger.Printf("play state: %s from %s rejected: %v", event, m.machine.Current(), err)
		}
		return false
	}
	if m.onChange != nil {
		m.onChange(m.Current())
	}
	return true
}

func (m *playStateMachine) play() bool   { return m.fire(eventPlay) }
func (m *playStateMachine) pause() bool  { return m.fire(eventPause) }
func (m *playStateMachine) resume() bool { return m.fire(eventResume) }
func (m *playStateMachine) finish() bool { return m.fire(eventFinish) }

// stop moves to Stopped. When already stopped, Stopped is broadcast again
// so that observers waiting on a failed or repeated stop still see it.
func (m *playStateMachine) stop() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.Current() != Stopped {
		m.noLockFire(eventStop)
		return
	}
	if m.onChange != nil {
		m.onChange(Stopped)
	}
}
