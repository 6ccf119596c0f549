package models

import (
	"errors"
	"fmt"
)

// TxState is the verification progress of one Transaction.
type TxState string

const (
	// StateAwaitingPayment has no row: the receiving address was quoted but nothing arrived yet.
	StateAwaitingPayment TxState = "awaiting_payment"
	StatePaymentReceived TxState = "payment_received"
	// StateConfirmed means the payment is final and a code is issued but not delivered.
	StateConfirmed    TxState = "confirmed"
	StateAwaitingCode TxState = "awaiting_code"
	StateVerified     TxState = "verified"
	StateFailed       TxState = "failed"
)

func (s TxState) Terminal() bool {
	return s == StateVerified || s == StateFailed
}

// CodePending reports whether a verification code may be submitted.
func (s TxState) CodePending() bool {
	return s == StateConfirmed || s == StateAwaitingCode
}

type EventKind int

const (
	EventPaymentStable EventKind = iota + 1
	EventEmailSent
	EventResendRequested
	EventCodeMatched
	EventCodeMismatched
)

func (k EventKind) String() string {
	switch k {
	case EventPaymentStable:
		return "payment_stable"
	case EventEmailSent:
		return "email_sent"
	case EventResendRequested:
		return "resend_requested"
	case EventCodeMatched:
		return "code_matched"
	case EventCodeMismatched:
		return "code_mismatched"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event drives Next. Attempts is the counter after the mismatch was counted.
type Event struct {
	Kind        EventKind
	Attempts    int
	MaxAttempts int
}

type Effect int

const (
	EffectIssueCode Effect = iota + 1
	EffectSendEmail
	EffectPromptCode
	EffectPromptRetry
	EffectPublishAttestation
	EffectAttributeRewards
	EffectReportFailure
)

var (
	ErrTerminalState     = errors.New("transaction is in a terminal state")
	ErrInvalidTransition = errors.New("invalid state transition")
)

// Next is the whole state machine. It is pure: callers persist the returned
// state together with the row changes and then run the effects.
func Next(state TxState, ev Event) (TxState, []Effect, error) {
	if state.Terminal() {
		return state, nil, ErrTerminalState
	}

	switch ev.Kind {
	case EventPaymentStable:
		if state == StatePaymentReceived {
			return StateConfirmed, []Effect{EffectIssueCode, EffectSendEmail}, nil
		}
	case EventEmailSent:
		if state.CodePending() {
			return StateAwaitingCode, []Effect{EffectPromptCode}, nil
		}
	case EventResendRequested:
		if state.CodePending() {
			return StateConfirmed, []Effect{EffectSendEmail}, nil
		}
	case EventCodeMatched:
		if state.CodePending() {
			return StateVerified, []Effect{EffectPublishAttestation, EffectAttributeRewards}, nil
		}
	case EventCodeMismatched:
		if state.CodePending() {
			if ev.MaxAttempts > 0 && ev.Attempts >= ev.MaxAttempts {
				return StateFailed, []Effect{EffectReportFailure}, nil
			}
			return state, []Effect{EffectPromptRetry}, nil
		}
	}

	return state, nil, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev.Kind, state)
}
