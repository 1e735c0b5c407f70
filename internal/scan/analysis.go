// Package scan sequences one capture-and-classify cycle at a time.
//
// An Analysis moves idle -> analyzing -> complete|error and back to idle on
// an explicit reset. Only one classification can be in flight because Begin
// is refused outside the idle state.
package scan

import (
	"errors"
	"fmt"
	"sync"

	"github.com/raine/ecosort-bot/internal/waste"
)

// Status is the stage of the current cycle.
type Status int

const (
	StatusIdle Status = iota
	StatusAnalyzing
	StatusComplete
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusAnalyzing:
		return "analyzing"
	case StatusComplete:
		return "complete"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

var (
	// ErrBusy is returned when an image is submitted while another is being analyzed.
	ErrBusy = errors.New("an item is already being analyzed")
	// ErrInvalidTransition is returned for transitions the state machine does not allow.
	ErrInvalidTransition = errors.New("invalid analysis state transition")
)

// State is a snapshot of an Analysis.
type State struct {
	Status Status
	Image  *waste.EncodedImage // set while analyzing and in complete/error after a submission
	Result *waste.Result       // set only when complete
	Error  string              // set only in error
}

// Analysis holds the state of the current cycle.
type Analysis struct {
	mu    sync.Mutex
	state State
}

// NewAnalysis returns an Analysis in the idle state.
func NewAnalysis() *Analysis {
	return &Analysis{}
}

// State returns a copy of the current state.
func (a *Analysis) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Status returns the current status.
func (a *Analysis) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Status
}

// Begin moves idle -> analyzing with the submitted image.
func (a *Analysis) Begin(img waste.EncodedImage) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch a.state.Status {
	case StatusIdle:
	case StatusAnalyzing:
		return ErrBusy
	default:
		return fmt.Errorf("%w: cannot submit an image while %s", ErrInvalidTransition, a.state.Status)
	}
	a.state = State{Status: StatusAnalyzing, Image: &img}
	return nil
}

// Complete moves analyzing -> complete.
func (a *Analysis) Complete(res waste.Result) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.Status != StatusAnalyzing {
		return fmt.Errorf("%w: cannot complete while %s", ErrInvalidTransition, a.state.Status)
	}
	a.state = State{Status: StatusComplete, Image: a.state.Image, Result: &res}
	return nil
}

// Fail moves analyzing -> error, keeping the attempted image for display.
func (a *Analysis) Fail(message string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.Status != StatusAnalyzing {
		return fmt.Errorf("%w: cannot fail while %s", ErrInvalidTransition, a.state.Status)
	}
	a.state = State{Status: StatusError, Image: a.state.Image, Error: message}
	return nil
}

// FailCapture moves idle -> error when the capture surface could not produce
// an image. No classification is attempted.
func (a *Analysis) FailCapture(message string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.Status != StatusIdle {
		return fmt.Errorf("%w: cannot report a capture error while %s", ErrInvalidTransition, a.state.Status)
	}
	a.state = State{Status: StatusError, Error: message}
	return nil
}

// Reset returns to idle and drops the image, result and error. Resetting an
// idle analysis is a no-op. A running classification cannot be abandoned, so
// Reset fails with ErrBusy while analyzing.
func (a *Analysis) Reset() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.Status == StatusAnalyzing {
		return ErrBusy
	}
	a.state = State{}
	return nil
}
