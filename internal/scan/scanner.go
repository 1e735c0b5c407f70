package scan

import (
	"context"
	"time"

	"github.com/raine/ecosort-bot/internal/llm"
	"github.com/raine/ecosort-bot/internal/waste"
	"github.com/rs/zerolog/log"
)

// Outcome describes a finished cycle.
type Outcome struct {
	Status   Status
	Result   *waste.Result
	Err      error
	Duration time.Duration
}

// Observer is notified after each classification attempt.
type Observer func(Outcome)

// Scanner runs classification cycles against one Analysis.
type Scanner struct {
	classifier llm.Classifier
	analysis   *Analysis
	observer   Observer
}

// NewScanner creates a Scanner with a fresh idle Analysis.
func NewScanner(classifier llm.Classifier) *Scanner {
	return &Scanner{classifier: classifier, analysis: NewAnalysis()}
}

// WithObserver sets a hook called after each classification attempt.
func (s *Scanner) WithObserver(o Observer) *Scanner {
	s.observer = o
	return s
}

// Analysis returns the state machine driven by this scanner.
func (s *Scanner) Analysis() *Analysis {
	return s.analysis
}

// State returns the current analysis state.
func (s *Scanner) State() State {
	return s.analysis.State()
}

// Scan submits img and blocks until the classification resolves. The
// returned state is complete or error. ErrBusy (or ErrInvalidTransition when
// a result is still displayed) is returned without contacting the
// classifier.
func (s *Scanner) Scan(ctx context.Context, img waste.EncodedImage) (State, error) {
	done, err := s.Start(ctx, img)
	if err != nil {
		return s.analysis.State(), err
	}
	return <-done, nil
}

// Start moves the analysis to analyzing and classifies img in the
// background. The returned channel receives the final state exactly once.
func (s *Scanner) Start(ctx context.Context, img waste.EncodedImage) (<-chan State, error) {
	if err := s.analysis.Begin(img); err != nil {
		return nil, err
	}
	done := make(chan State, 1)
	go func() {
		done <- s.run(ctx, img)
	}()
	return done, nil
}

func (s *Scanner) run(ctx context.Context, img waste.EncodedImage) State {
	start := time.Now()
	res, err := s.classifier.Classify(ctx, img)
	if err == nil && res == nil {
		err = &llm.Error{Kind: llm.ErrMalformedResponse}
	}
	outcome := Outcome{Duration: time.Since(start)}

	if err != nil {
		msg := llm.UserMessage(err)
		log.Warn().Err(err).Str("message", msg).Msg("analysis failed")
		if ferr := s.analysis.Fail(msg); ferr != nil {
			log.Error().Err(ferr).Msg("failed to record analysis error")
		}
		outcome.Status = StatusError
		outcome.Err = err
	} else {
		if cerr := s.analysis.Complete(*res); cerr != nil {
			log.Error().Err(cerr).Msg("failed to record analysis result")
		}
		outcome.Status = StatusComplete
		outcome.Result = res
	}

	if s.observer != nil {
		s.observer(outcome)
	}
	return s.analysis.State()
}

// CaptureFailed records a capture-surface failure without classifying.
func (s *Scanner) CaptureFailed(message string) (State, error) {
	if err := s.analysis.FailCapture(message); err != nil {
		return s.analysis.State(), err
	}
	return s.analysis.State(), nil
}

// Reset returns the analysis to idle.
func (s *Scanner) Reset() error {
	return s.analysis.Reset()
}
