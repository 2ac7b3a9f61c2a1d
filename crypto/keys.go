package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sort"
	"sync"

	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/models"
	"github.com/btcsuite/btcutil/base58"
)

// KeyManager stores ed25519 key pairs indexed by base58 encoded verkeys
type KeyManager struct {
	keyStore *sync.Map // key: verkey
}

func NewKeyManager() *KeyManager {
	return &KeyManager{keyStore: &sync.Map{}}
}

func (k *KeyManager) CreateKey() (models.KeyPair, error) {
	pub, prv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return models.KeyPair{}, fmt.Errorf(`generating ed25519 keys failed - %v`, err)
	}

	kp := models.KeyPair{Verkey: base58.Encode(pub), Public: pub, Private: prv}
	k.keyStore.Store(kp.Verkey, kp)
	return kp, nil
}

// ImportSeed restores a key pair from its 32 byte seed
func (k *KeyManager) ImportSeed(seed []byte) (models.KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return models.KeyPair{}, fmt.Errorf(`invalid seed length %d - %w`, len(seed), domain.ErrWallet)
	}

	prv := ed25519.NewKeyFromSeed(seed)
	pub := prv.Public().(ed25519.PublicKey)
	kp := models.KeyPair{Verkey: base58.Encode(pub), Public: pub, Private: prv}
	k.keyStore.Store(kp.Verkey, kp)
	return kp, nil
}

func (k *KeyManager) Has(verkey string) bool {
	_, ok := k.keyStore.Load(verkey)
	return ok
}

func (k *KeyManager) KeyPair(verkey string) (models.KeyPair, error) {
	val, ok := k.keyStore.Load(verkey)
	if !ok {
		return models.KeyPair{}, fmt.Errorf(`no key pair found for verkey %s - %w`, verkey, domain.ErrNoMatchingKey)
	}
	return val.(models.KeyPair), nil
}

func (k *KeyManager) DeleteKey(verkey string) {
	k.keyStore.Delete(verkey)
}

func (k *KeyManager) Verkeys() []string {
	var keys []string
	k.keyStore.Range(func(key, _ any) bool {
		keys = append(keys, key.(string))
		return true
	})
	sort.Strings(keys)
	return keys
}
