package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/nacl/box"
)

const (
	nonceSize = 24
)

// Encryptor implements the primitives with golang.org/x/crypto and is
// interoperable with the libsodium backend
type Encryptor struct{}

func NewEncryptor() *Encryptor {
	return &Encryptor{}
}

func (e *Encryptor) Box(payload, nonce, peerPubKey, mySecKey []byte) (encMsg []byte, err error) {
	tmpPubKey, tmpSecKey, tmpNonce, err := e.boxParams(nonce, peerPubKey, mySecKey)
	if err != nil {
		return nil, err
	}

	return box.Seal(nil, payload, tmpNonce, tmpPubKey, tmpSecKey), nil
}

func (e *Encryptor) BoxOpen(cipher, nonce, peerPubKey, mySecKey []byte) (msg []byte, err error) {
	tmpPubKey, tmpSecKey, tmpNonce, err := e.boxParams(nonce, peerPubKey, mySecKey)
	if err != nil {
		return nil, err
	}

	msg, ok := box.Open(nil, cipher, tmpNonce, tmpPubKey, tmpSecKey)
	if !ok {
		return nil, fmt.Errorf(`opening crypto box failed`)
	}
	return msg, nil
}

func (e *Encryptor) SealBox(payload, peerPubKey []byte) (encMsg []byte, err error) {
	if len(peerPubKey) != curve25519KeySize {
		return nil, fmt.Errorf(`invalid public key length %d`, len(peerPubKey))
	}

	var tmpPubKey [curve25519KeySize]byte
	copy(tmpPubKey[:], peerPubKey)

	encMsg, err = box.SealAnonymous(nil, payload, &tmpPubKey, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf(`sealing box failed - %v`, err)
	}
	return encMsg, nil
}

func (e *Encryptor) SealBoxOpen(cipher, peerPubKey, mySecKey []byte) (msg []byte, err error) {
	if len(peerPubKey) != curve25519KeySize || len(mySecKey) != curve25519KeySize {
		return nil, fmt.Errorf(`invalid key length`)
	}

	var tmpPubKey, tmpSecKey [curve25519KeySize]byte
	copy(tmpPubKey[:], peerPubKey)
	copy(tmpSecKey[:], mySecKey)

	msg, ok := box.OpenAnonymous(nil, cipher, &tmpPubKey, &tmpSecKey)
	if !ok {
		return nil, fmt.Errorf(`opening sealed box failed`)
	}
	return msg, nil
}

func (e *Encryptor) EncryptDetached(msg, aad, nonce, key []byte) (cipher, mac []byte, err error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, nil, fmt.Errorf(`initializing chacha20poly1305 failed - %v`, err)
	}

	if len(nonce) != aead.NonceSize() {
		return nil, nil, fmt.Errorf(`invalid nonce length %d`, len(nonce))
	}

	sealed := aead.Seal(nil, nonce, msg, aad)
	tagIndex := len(sealed) - aead.Overhead()
	return sealed[:tagIndex], sealed[tagIndex:], nil
}

func (e *Encryptor) DecryptDetached(cipher, mac, aad, nonce, key []byte) (msg []byte, err error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf(`initializing chacha20poly1305 failed - %v`, err)
	}

	if len(nonce) != aead.NonceSize() || len(mac) != aead.Overhead() {
		return nil, fmt.Errorf(`invalid nonce or tag length`)
	}

	sealed := make([]byte, 0, len(cipher)+len(mac))
	sealed = append(sealed, cipher...)
	sealed = append(sealed, mac...)

	msg, err = aead.Open(nil, nonce, sealed, aad)
	if err != nil {
		return nil, fmt.Errorf(`decrypting payload failed - %v`, err)
	}
	return msg, nil
}

func (e *Encryptor) boxParams(nonce, peerPubKey, mySecKey []byte) (pub, sec *[curve25519KeySize]byte, n *[nonceSize]byte, err error) {
	if len(nonce) != nonceSize {
		return nil, nil, nil, fmt.Errorf(`invalid nonce length %d`, len(nonce))
	}

	if len(peerPubKey) != curve25519KeySize || len(mySecKey) != curve25519KeySize {
		return nil, nil, nil, fmt.Errorf(`invalid key length`)
	}

	var (
		tmpPubKey [curve25519KeySize]byte
		tmpSecKey [curve25519KeySize]byte
		tmpNonce  [nonceSize]byte
	)

	copy(tmpPubKey[:], peerPubKey)
	copy(tmpSecKey[:], mySecKey)
	copy(tmpNonce[:], nonce)

	return &tmpPubKey, &tmpSecKey, &tmpNonce, nil
}
