package services

import (
	"github.com/YasiruR/didcomm-engine/domain/messages"
	"github.com/YasiruR/didcomm-engine/domain/models"
)

/* dependencies */

type Packer interface {
	// Pack uses authcrypt when sender is set and anoncrypt otherwise
	Pack(msg []byte, sender *models.KeyPair, recVerkeys ...string) (messages.AuthCryptMsg, error)
	Unpack(data []byte, ks KeyStore) (models.Unpacked, error)
}

// Encryptor is the primitive provider behind the packer. All keys are
// curve25519 keys.
type Encryptor interface {
	Box(payload, nonce, peerPubKey, mySecKey []byte) (encMsg []byte, err error)
	BoxOpen(cipher, nonce, peerPubKey, mySecKey []byte) (msg []byte, err error)
	SealBox(payload, peerPubKey []byte) (encMsg []byte, err error)
	SealBoxOpen(cipher, peerPubKey, mySecKey []byte) (msg []byte, err error)
	EncryptDetached(msg, aad, nonce, key []byte) (cipher, mac []byte, err error)
	DecryptDetached(cipher, mac, aad, nonce, key []byte) (msg []byte, err error)
}

type KeyStore interface {
	Has(verkey string) bool
	KeyPair(verkey string) (models.KeyPair, error)
}

type KeyManager interface {
	KeyStore
	CreateKey() (models.KeyPair, error)
	ImportSeed(seed []byte) (models.KeyPair, error)
	DeleteKey(verkey string)
	Verkeys() []string
}

type DIDUtils interface {
	CreateDIDDoc(svcs []models.Service) messages.DIDDocument
	CreatePeerDID(doc messages.DIDDocument) (did string, err error)
	// ValidatePeerDID checks the did format and that it was derived from the doc
	ValidatePeerDID(did string, doc messages.DIDDocument) error
	Store(doc messages.DIDDocument)
	Resolve(did string) (messages.DIDDocument, error)
}
