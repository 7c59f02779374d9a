package core

import "time"

// ModmapAction is the per-key substitution a modmap entry applies before
// keymap resolution ever sees the key.
type ModmapAction interface {
	isModmapAction()
}

// KeySubstitution is a straight key-for-key substitution.
type KeySubstitution struct {
	Key Key
}

// MultiPurposeKey resolves a tap-vs-hold: a short press emits Alone, a
// press held past AloneTimeout (or interrupted by another key) emits Held.
type MultiPurposeKey struct {
	Held         Key
	Alone        Key
	AloneTimeout time.Duration
}

// PressReleaseKey hooks extra keymap actions onto a key's press and
// release, then still emits the original (key, value) event.
type PressReleaseKey struct {
	Press   []KeymapAction
	Release []KeymapAction
}

func (KeySubstitution) isModmapAction() {}
func (MultiPurposeKey) isModmapAction() {}
func (PressReleaseKey) isModmapAction() {}

// multiPurposeKeyState is the live FSM instance for one pressed multi-purpose key.
type multiPurposeKeyState struct {
	held  Key
	alone Key
	// aloneTimeoutAt is non-nil while the first press is still delayed.
	aloneTimeoutAt *time.Time
}

func newMultiPurposeKeyState(held, alone Key, timeout time.Duration, now time.Time) *multiPurposeKeyState {
	at := now.Add(timeout)
	return &multiPurposeKeyState{held: held, alone: alone, aloneTimeoutAt: &at}
}

// repeat handles a REPEAT value arriving while this state is live.
func (s *multiPurposeKeyState) repeat(now time.Time) []KeyEvent {
	if s.aloneTimeoutAt != nil {
		if now.Before(*s.aloneTimeoutAt) {
			return nil // still delay the press
		}
		s.aloneTimeoutAt = nil // timeout elapsed
		return []KeyEvent{{Key: s.held, Value: Press}}
	}
	return []KeyEvent{{Key: s.held, Value: Repeat}}
}

// release handles a RELEASE value arriving while this state is live. The
// state is consumed by this call.
func (s *multiPurposeKeyState) release(now time.Time) []KeyEvent {
	if s.aloneTimeoutAt != nil {
		if now.Before(*s.aloneTimeoutAt) {
			return []KeyEvent{{Key: s.alone, Value: Press}, {Key: s.alone, Value: Release}}
		}
		return []KeyEvent{{Key: s.held, Value: Press}, {Key: s.held, Value: Release}}
	}
	return []KeyEvent{{Key: s.held, Value: Release}}
}

// forceHeld forces a still-delayed press into the held state, used when
// another key is pressed while this one is pending.
func (s *multiPurposeKeyState) forceHeld() []KeyEvent {
	if s.aloneTimeoutAt != nil {
		s.aloneTimeoutAt = nil
		return []KeyEvent{{Key: s.held, Value: Press}}
	}
	return nil
}
