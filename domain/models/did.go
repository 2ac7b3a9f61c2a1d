package models

import "crypto/ed25519"

type DIDMethod string

const (
	MethodPeer DIDMethod = `peer`
	MethodKey  DIDMethod = `key`
)

// Did is immutable once created. KeyRef is empty for dids of other parties.
type Did struct {
	URI         string    `json:"uri"`
	Method      DIDMethod `json:"method"`
	Verkey      string    `json:"verkey"`
	KeyRef      string    `json:"key_ref,omitempty"`
	Endpoint    string    `json:"endpoint,omitempty"`
	RoutingKeys []string  `json:"routing_keys,omitempty"`
}

func (d Did) Local() bool {
	return d.KeyRef != ``
}

// KeyPair is an Ed25519 key pair referenced by its base58 encoded verkey
type KeyPair struct {
	Verkey  string
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

type Service struct {
	Id          string
	Type        string
	Endpoint    string
	Verkey      string
	RoutingKeys []string
}
