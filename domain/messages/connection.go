package messages

// Invitation reference: https://github.com/hyperledger/aries-rfcs/tree/main/features/0434-outofband#messages
type Invitation struct {
	Id                 string    `json:"@id" validate:"required"`
	Type               string    `json:"@type" validate:"required"`
	Label              string    `json:"label,omitempty"`
	GoalCode           string    `json:"goal_code,omitempty"`
	Goal               string    `json:"goal,omitempty"`
	Accept             []string  `json:"accept,omitempty"`
	HandshakeProtocols []string  `json:"handshake_protocols,omitempty"`
	Services           []Service `json:"services" validate:"required,min=1,dive"`
}

type DIDDocument struct {
	Context            []string             `json:"@context"`
	Id                 string               `json:"id"`
	VerificationMethod []VerificationMethod `json:"verificationMethod"`
	Authentication     []string             `json:"authentication,omitempty"`
	Service            []Service            `json:"service"`
}

type VerificationMethod struct {
	Id              string `json:"id"`
	Type            string `json:"type"`
	Controller      string `json:"controller,omitempty"`
	PublicKeyBase58 string `json:"publicKeyBase58"`
}

type Service struct {
	Id              string   `json:"id"`
	Type            string   `json:"type"`
	RecipientKeys   []string `json:"recipientKeys" validate:"required,min=1"`
	RoutingKeys     []string `json:"routingKeys,omitempty"`
	ServiceEndpoint string   `json:"serviceEndpoint" validate:"required"`
	Accept          []string `json:"accept,omitempty"`
	Priority        int      `json:"priority,omitempty"`
}

// ConnReq reference: https://github.com/hyperledger/aries-rfcs/tree/main/features/0023-did-exchange#request-message-example
type ConnReq struct {
	Id     string `json:"@id" validate:"required"`
	Type   string `json:"@type" validate:"required"`
	Thread Thread `json:"~thread"`
	Label  string `json:"label,omitempty"`
	// should contain the id of the corresponding invitation (https://github.com/hyperledger/aries-rfcs/tree/main/features/0023-did-exchange#request-message-attributes)
	GoalCode     string     `json:"goal_code,omitempty"`
	Goal         string     `json:"goal,omitempty"`
	DID          string     `json:"did" validate:"required"`
	DIDDocAttach Attachment `json:"did_doc~attach"`
}

// ConnRes reference: https://github.com/hyperledger/aries-rfcs/tree/main/features/0023-did-exchange#response-message-example
type ConnRes struct {
	Id     string `json:"@id" validate:"required"`
	Type   string `json:"@type" validate:"required"`
	// must be a reference to the request message (https://github.com/hyperledger/aries-rfcs/tree/main/features/0023-did-exchange#response-message-attributes)
	Thread       Thread     `json:"~thread"`
	DID          string     `json:"did" validate:"required"`
	DIDDocAttach Attachment `json:"did_doc~attach"`
}

type ConnComplete struct {
	Id     string `json:"@id" validate:"required"`
	Type   string `json:"@type" validate:"required"`
	Thread Thread `json:"~thread"`
}
