package did

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/messages"
	"github.com/YasiruR/didcomm-engine/domain/models"
	"github.com/bluele/gcache"
	"github.com/btcsuite/btcutil/base58"
	"github.com/multiformats/go-multibase"
)

const (
	prefixPeer = `did:peer:1`
	prefixKey  = `did:key:`
	keyType    = `Ed25519VerificationKey2018`
	keyRef     = `#key-1`
)

// multicodec prefix of an ed25519 public key
var ed25519Codec = []byte{0xed, 0x01}

type Handler struct {
	docs gcache.Cache
}

func NewHandler(cacheSize int) *Handler {
	return &Handler{docs: gcache.New(cacheSize).LRU().Build()}
}

// CreateDIDDoc creates the stored variant of a did doc which does not
// contain the did itself
func (h *Handler) CreateDIDDoc(svcs []models.Service) messages.DIDDocument {
	doc := messages.DIDDocument{Context: []string{`https://w3id.org/did/v1`}}
	for i, svc := range svcs {
		if i == 0 {
			doc.VerificationMethod = append(doc.VerificationMethod, messages.VerificationMethod{
				Id:              keyRef,
				Type:            keyType,
				PublicKeyBase58: svc.Verkey,
			})
			doc.Authentication = []string{keyRef}
		}

		recKey := svc.Verkey
		if k, err := DIDKey(svc.Verkey); err == nil {
			recKey = k
		}

		doc.Service = append(doc.Service, messages.Service{
			Id:              svc.Id,
			Type:            svc.Type,
			RecipientKeys:   []string{recKey},
			RoutingKeys:     svc.RoutingKeys,
			ServiceEndpoint: svc.Endpoint,
			Priority:        i,
		})
	}

	return doc
}

// CreatePeerDID follows numalgo 1: did:peer:1z<base58(sha256(stored variant))>
func (h *Handler) CreatePeerDID(doc messages.DIDDocument) (did string, err error) {
	basis, err := numericBasis(doc)
	if err != nil {
		return ``, err
	}

	enc, err := multibase.Encode(multibase.Base58BTC, basis)
	if err != nil {
		return ``, fmt.Errorf(`multibase encoding failed - %v`, err)
	}

	return prefixPeer + enc, nil
}

func (h *Handler) ValidatePeerDID(did string, doc messages.DIDDocument) error {
	if !strings.HasPrefix(did, prefixPeer+`z`) {
		return fmt.Errorf(`did type is not peer: %s - %w`, did, domain.ErrValidation)
	}

	_, basis, err := multibase.Decode(strings.TrimPrefix(did, prefixPeer))
	if err != nil {
		return fmt.Errorf(`decoding numeric basis of %s failed - %v: %w`, did, err, domain.ErrValidation)
	}

	expected, err := numericBasis(doc)
	if err != nil {
		return err
	}

	if string(basis) != string(expected) {
		return fmt.Errorf(`did %s was not derived from the attached doc - %w`, did, domain.ErrValidation)
	}

	return nil
}

func (h *Handler) Store(doc messages.DIDDocument) {
	if doc.Id == `` {
		return
	}
	_ = h.docs.Set(doc.Id, doc)
}

func (h *Handler) Resolve(did string) (messages.DIDDocument, error) {
	if strings.HasPrefix(did, prefixKey) {
		verkey, err := VerkeyFromDIDKey(did)
		if err != nil {
			return messages.DIDDocument{}, err
		}
		doc := h.CreateDIDDoc([]models.Service{{Verkey: verkey}})
		doc.Service = nil
		doc.Id = did
		return doc, nil
	}

	val, err := h.docs.Get(did)
	if err != nil {
		return messages.DIDDocument{}, fmt.Errorf(`resolving %s failed - %w`, did, domain.ErrRecordNotFound)
	}
	return val.(messages.DIDDocument), nil
}

func numericBasis(doc messages.DIDDocument) ([]byte, error) {
	// hashing the stored variant, hence the did is omitted
	doc.Id = ``
	byts, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf(`marshalling did doc failed - %v`, err)
	}

	hash := sha256.Sum256(byts)
	return hash[:], nil
}

// DIDKey encodes a base58 verkey as did:key
func DIDKey(verkey string) (string, error) {
	pub := base58.Decode(verkey)
	if len(pub) != 32 {
		return ``, fmt.Errorf(`invalid verkey %s`, verkey)
	}

	enc, err := multibase.Encode(multibase.Base58BTC, append(append([]byte{}, ed25519Codec...), pub...))
	if err != nil {
		return ``, fmt.Errorf(`multibase encoding failed - %v`, err)
	}
	return prefixKey + enc, nil
}

// VerkeyFromDIDKey returns the base58 verkey of a did:key
func VerkeyFromDIDKey(did string) (string, error) {
	if !strings.HasPrefix(did, prefixKey) {
		return ``, fmt.Errorf(`%s is not a did:key - %w`, did, domain.ErrValidation)
	}

	// did:key may carry a fragment
	id := strings.TrimPrefix(did, prefixKey)
	if i := strings.Index(id, `#`); i >= 0 {
		id = id[:i]
	}

	_, data, err := multibase.Decode(id)
	if err != nil {
		return ``, fmt.Errorf(`decoding %s failed - %v: %w`, did, err, domain.ErrValidation)
	}

	if len(data) != 34 || data[0] != ed25519Codec[0] || data[1] != ed25519Codec[1] {
		return ``, fmt.Errorf(`%s is not an ed25519 did:key - %w`, did, domain.ErrValidation)
	}

	return base58.Encode(data[2:]), nil
}

// Verkey accepts either a did:key or a raw base58 verkey
func Verkey(key string) (string, error) {
	if strings.HasPrefix(key, prefixKey) {
		return VerkeyFromDIDKey(key)
	}

	if len(base58.Decode(key)) != 32 {
		return ``, fmt.Errorf(`invalid verkey %s - %w`, key, domain.ErrValidation)
	}
	return key, nil
}

// DocVerkey returns the verkey of the first recipient key of the doc
func DocVerkey(doc messages.DIDDocument) (verkey, endpoint string, routingKeys []string, err error) {
	for _, s := range doc.Service {
		if len(s.RecipientKeys) == 0 {
			continue
		}

		verkey, err = Verkey(s.RecipientKeys[0])
		if err != nil {
			return ``, ``, nil, err
		}

		for _, rk := range s.RoutingKeys {
			k, err := Verkey(rk)
			if err != nil {
				return ``, ``, nil, err
			}
			routingKeys = append(routingKeys, k)
		}
		return verkey, s.ServiceEndpoint, routingKeys, nil
	}

	if len(doc.VerificationMethod) > 0 {
		return doc.VerificationMethod[0].PublicKeyBase58, ``, nil, nil
	}

	return ``, ``, nil, fmt.Errorf(`did doc does not contain a recipient key - %w`, domain.ErrValidation)
}
