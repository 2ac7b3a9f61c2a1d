package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedMessageType = errors.New(`unsupported message type`)
	ErrUnsupportedProtocol    = errors.New(`unsupported protocol`)
	ErrProtocolNotBound       = errors.New(`action does not belong to the bound protocol`)
	ErrNoMatchingKey          = errors.New(`no recipient key of the envelope is held locally`)
	ErrAuthenticationFailed   = errors.New(`authentication of the envelope failed`)
	ErrMalformedEnvelope      = errors.New(`malformed envelope`)
	ErrInvalidConnectionState = errors.New(`invalid connection state`)
	ErrTimeout                = errors.New(`timed out waiting for message`)
	ErrWallet                 = errors.New(`wallet error`)
	ErrRecordNotFound         = errors.New(`record not found`)
	ErrInvitationConsumed     = errors.New(`invitation has already been used`)
	ErrUnknownInvitation      = errors.New(`unknown invitation`)
	ErrValidation             = errors.New(`message validation failed`)
	ErrExchangeClosed         = errors.New(`exchange closed`)
	ErrProblemReported        = errors.New(`other party reported a problem`)
)

// TransportError is returned when the remote endpoint could not be reached
// or did not accept the message
type TransportError struct {
	Endpoint string
	Status   int
	Body     string
	Err      error
}

func (t *TransportError) Error() string {
	if t.Err != nil {
		return fmt.Sprintf(`transport to %s failed - %v`, t.Endpoint, t.Err)
	}
	return fmt.Sprintf(`transport to %s failed with status %d - %s`, t.Endpoint, t.Status, t.Body)
}

func (t *TransportError) Unwrap() error {
	return t.Err
}
