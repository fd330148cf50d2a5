// Package recorder implements sinks for the scalar summaries produced
// by an agent while it learns.
package recorder

import (
	"errors"
	"fmt"
	"sort"
)

// Summary tags recorded by the SAC agent after each update
const (
	ActorLoss    = "LOSS/actor_loss"
	CriticLoss   = "LOSS/critic_loss"
	Entropy      = "LOSS/entropy"
	LearningRate = "LEARNING_RATE/lr"
	Q1Loss       = "LOSS/q1_loss"
	Q2Loss       = "LOSS/q2_loss"
	ValueLoss    = "LOSS/value_loss"
	AlphaLoss    = "LOSS/alpha_loss"
	Alpha        = "PARAM/alpha"
)

// Summary is a bundle of scalar values keyed by tag
type Summary map[string]float64

// Tags returns the tags of the summary in sorted order
func (s Summary) Tags() []string {
	tags := make([]string, 0, len(s))
	for tag := range s {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Clone returns a copy of the summary
func (s Summary) Clone() Summary {
	clone := make(Summary, len(s))
	for tag, value := range s {
		clone[tag] = value
	}
	return clone
}

// Recorder records summaries at a given step
type Recorder interface {
	Record(step int, s Summary) error
	Close() error
}

// Nop is a Recorder which discards all summaries
type Nop struct{}

// Record discards the summary
func (Nop) Record(int, Summary) error { return nil }

// Close does nothing
func (Nop) Close() error { return nil }

// Multi is a Recorder which records each summary to multiple
// Recorders
type Multi []Recorder

// NewMulti returns a new Multi recorder. Nil recorders are skipped.
func NewMulti(recorders ...Recorder) Multi {
	m := make(Multi, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			m = append(m, r)
		}
	}
	return m
}

// Record records s with each recorder. All recorders are attempted
// even if some return errors.
func (m Multi) Record(step int, s Summary) error {
	var errs []error
	for i, r := range m {
		if err := r.Record(step, s); err != nil {
			errs = append(errs, fmt.Errorf("recorder %v: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes each recorder
func (m Multi) Close() error {
	var errs []error
	for i, r := range m {
		if err := r.Close(); err != nil {
			errs = append(errs, fmt.Errorf("recorder %v: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
