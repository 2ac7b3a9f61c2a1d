package models

import "time"

type ConnectionState string

const (
	ConnInvitation ConnectionState = `invitation`
	ConnRequest    ConnectionState = `request`
	ConnResponse   ConnectionState = `response`
	ConnActive     ConnectionState = `active`
	ConnAbandoned  ConnectionState = `abandoned`
	ConnError      ConnectionState = `error`
)

func (s ConnectionState) Terminal() bool {
	return s == ConnActive || s == ConnAbandoned || s == ConnError
}

type Role string

const (
	RoleInviter Role = `inviter`
	RoleInvitee Role = `invitee`
)

type Connection struct {
	ID               string          `json:"id"`
	State            ConnectionState `json:"state"`
	Role             Role            `json:"role"`
	MyDid            string          `json:"my_did"`
	TheirDid         string          `json:"their_did,omitempty"`
	MyVerkey         string          `json:"my_verkey"`
	TheirVerkey      string          `json:"their_verkey,omitempty"`
	InvitationKey    string          `json:"invitation_key"`
	InvitationID     string          `json:"invitation_id"`
	ThreadID         string          `json:"thread_id"`
	TheirLabel       string          `json:"their_label,omitempty"`
	TheirEndpoint    string          `json:"their_endpoint,omitempty"`
	TheirRoutingKeys []string        `json:"their_routing_keys,omitempty"`
	Alias            string          `json:"alias,omitempty"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type InvitationState string

const (
	InvCreated  InvitationState = `created`
	InvReceived InvitationState = `received`
	InvUsed     InvitationState = `used`
)

type Invitation struct {
	ID              string          `json:"id"`
	Label           string          `json:"label"`
	InvitationKey   string          `json:"invitation_key"`
	RecipientKeys   []string        `json:"recipient_keys"`
	ServiceEndpoint string          `json:"service_endpoint"`
	RoutingKeys     []string        `json:"routing_keys,omitempty"`
	Goal            string          `json:"goal,omitempty"`
	GoalCode        string          `json:"goal_code,omitempty"`
	MultiUse        bool            `json:"multi_use"`
	State           InvitationState `json:"state"`
	// thread ids of the requests which used this invitation
	UsedBy    []string  `json:"used_by,omitempty"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Event struct {
	Topic    string      `json:"topic"`
	WalletID string      `json:"wallet_id"`
	Payload  interface{} `json:"payload"`
}
