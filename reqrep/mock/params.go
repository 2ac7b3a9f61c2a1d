package mock

import "github.com/YasiruR/didcomm-engine/domain/messages"

const (
	InvEndpoint         = `/invitation`
	ConnectEndpoint     = `/accept`
	ConnectionsEndpoint = `/connections`
	PingEndpoint        = `/ping`
	MessageEndpoint     = `/message`
	QueryEndpoint       = `/query`
	CredentialEndpoint  = `/credential`
	ProofEndpoint       = `/proof`
	KillEndpoint        = `/kill`
)

type reqConnection struct {
	ConnectionID string `json:"connection_id" validate:"required"`
}

type reqMessage struct {
	ConnectionID string `json:"connection_id" validate:"required"`
	Content      string `json:"content" validate:"required"`
}

type reqQuery struct {
	ConnectionID string `json:"connection_id" validate:"required"`
	Query        string `json:"query"`
}

type reqCredential struct {
	ConnectionID string               `json:"connection_id" validate:"required"`
	Attributes   []messages.Attribute `json:"attributes" validate:"required,min=1,dive"`
}

type reqProof struct {
	ConnectionID string   `json:"connection_id" validate:"required"`
	Attributes   []string `json:"attributes" validate:"required,min=1,dive,required"`
}

type resPing struct {
	LatencyMs float64 `json:"latency_ms"`
}

type resProof struct {
	Revealed map[string]string `json:"revealed"`
}

type resError struct {
	Error string `json:"error"`
}
