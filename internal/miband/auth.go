package miband

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// AuthState is the connection and authentication progress of a band.
type AuthState int

const (
	Disconnected AuthState = iota
	Discovering
	InfoFetched
	UserSent
	AwaitingConfirmation
	Authenticated
	Failed
	TimedOut
)

var authStateNames = [...]string{
	"disconnected", "discovering", "info_fetched", "user_sent",
	"awaiting_confirmation", "authenticated", "failed", "timed_out",
}

func (s AuthState) String() string {
	if int(s) < len(authStateNames) {
		return authStateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Notification payloads sent on the notification characteristic.
const (
	NotifySuccess   byte = 0x05
	NotifyFailed    byte = 0x06
	NotifyTimeout   byte = 0x09
	NotifyConfirmed byte = 0x0a
	NotifyAwaiting  byte = 0x13
)

// maxAuthFailures bounds how often a FAILED answer is retried.
const maxAuthFailures = 5

// ErrAuthTimeout is returned when the band (or the local deadline) gives up
// waiting for the user to confirm the pairing on the band.
var ErrAuthTimeout = errors.New("authentication timed out")

// ProtocolError reports a notification sequence the handshake cannot continue from.
type ProtocolError struct {
	State   AuthState
	Payload []byte
	Msg     string
}

func (e *ProtocolError) Error() string {
	if len(e.Payload) > 0 {
		return fmt.Sprintf("protocol error in state %s: %s (payload % x)", e.State, e.Msg, e.Payload)
	}
	return fmt.Sprintf("protocol error in state %s: %s", e.State, e.Msg)
}

// handshake drives the user-record exchange over an already open notification stream.
type handshake struct {
	// send writes the user record with the given auth flag.
	send     func(ctx context.Context, authFlag byte) error
	setState func(AuthState)
	logger   *logrus.Entry
}

func (h *handshake) resend(ctx context.Context, authFlag byte) error {
	if err := h.send(ctx, authFlag); err != nil {
		h.setState(Failed)
		return fmt.Errorf("send user record: %w", err)
	}
	h.setState(UserSent)
	h.setState(AwaitingConfirmation)
	return nil
}

func (h *handshake) run(ctx context.Context, notes <-chan []byte) error {
	if err := h.resend(ctx, 0); err != nil {
		return err
	}

	failures := 0
	for {
		select {
		case <-ctx.Done():
			h.setState(TimedOut)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: no confirmation before the local deadline", ErrAuthTimeout)
			}
			return ctx.Err()

		case n, ok := <-notes:
			if !ok {
				h.setState(Failed)
				return &ProtocolError{State: AwaitingConfirmation, Msg: "notification stream ended before a terminal notification"}
			}
			if len(n) == 0 {
				continue
			}

			switch n[0] {
			case NotifyAwaiting:
				h.logger.Info("Waiting for confirmation on the band")
			case NotifyConfirmed, NotifySuccess:
				h.setState(Authenticated)
				return nil
			case NotifyFailed:
				failures++
				if failures > maxAuthFailures {
					h.setState(Failed)
					return &ProtocolError{State: AwaitingConfirmation, Payload: n, Msg: fmt.Sprintf("rejected %d times", failures)}
				}
				h.logger.WithField("attempt", failures).Warn("Band rejected user record, retrying with auth flag set")
				if err := h.resend(ctx, 1); err != nil {
					return err
				}
			case NotifyTimeout:
				h.setState(TimedOut)
				return ErrAuthTimeout
			default:
				h.logger.WithField("payload", fmt.Sprintf("% x", n)).Debug("Ignoring notification outside the auth vocabulary")
			}
		}
	}
}
