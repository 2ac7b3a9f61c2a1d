package connection

import (
	"fmt"

	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/models"
)

// transitions lists the states reachable from each non-terminal state.
// Abandoned and error are reachable from all of them.
var transitions = map[models.ConnectionState][]models.ConnectionState{
	models.ConnInvitation: {models.ConnRequest},
	models.ConnRequest:    {models.ConnResponse},
	models.ConnResponse:   {models.ConnActive},
}

func CanTransition(from, to models.ConnectionState) bool {
	if from.Terminal() {
		return false
	}

	if to == models.ConnAbandoned || to == models.ConnError {
		return true
	}

	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the connection to the given state if allowed
func Transition(c *models.Connection, to models.ConnectionState) error {
	if !CanTransition(c.State, to) {
		return fmt.Errorf(`connection %s cannot move from %s to %s - %w`, c.ID, c.State, to, domain.ErrInvalidConnectionState)
	}
	c.State = to
	return nil
}
