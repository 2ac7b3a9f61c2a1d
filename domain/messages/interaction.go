package messages

// Ping reference: https://github.com/hyperledger/aries-rfcs/tree/main/features/0048-trust-ping
type Ping struct {
	Id                string  `json:"@id" validate:"required"`
	Type              string  `json:"@type" validate:"required"`
	Comment           string  `json:"comment,omitempty"`
	ResponseRequested bool    `json:"response_requested"`
	Thread            *Thread `json:"~thread,omitempty"`
}

type PingResponse struct {
	Id      string `json:"@id" validate:"required"`
	Type    string `json:"@type" validate:"required"`
	Comment string `json:"comment,omitempty"`
	Thread  Thread `json:"~thread"`
}

// BasicMessage reference: https://github.com/hyperledger/aries-rfcs/tree/main/features/0095-basic-message
type BasicMessage struct {
	Id       string `json:"@id" validate:"required"`
	Type     string `json:"@type" validate:"required"`
	SentTime string `json:"sent_time"`
	Content  string `json:"content" validate:"required"`
}

type QueryFeature struct {
	Type    string `json:"@type" validate:"required"`
	Id      string `json:"@id" validate:"required"`
	Query   string `json:"query"`
	Comment string `json:"comment,omitempty"`
}

type Feature struct {
	Id    string   `json:"pid"`
	Roles []string `json:"roles,omitempty"`
}

type DiscloseFeature struct {
	Type      string    `json:"@type" validate:"required"`
	Id        string    `json:"@id" validate:"required"`
	Thread    Thread    `json:"~thread"`
	Protocols []Feature `json:"protocols"`
}
