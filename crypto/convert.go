package crypto

import (
	"crypto/ed25519"
	"fmt"

	"github.com/agl/ed25519/extra25519"
	"github.com/btcsuite/btcutil/base58"
)

const (
	curve25519KeySize = 32
)

// PublicKeyToCurve25519 converts an ed25519 verification key into the
// curve25519 key used by crypto box
func PublicKeyToCurve25519(pub []byte) ([]byte, error) {
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf(`invalid ed25519 public key length %d`, len(pub))
	}

	var in, out [curve25519KeySize]byte
	copy(in[:], pub)
	if !extra25519.PublicKeyToCurve25519(&out, &in) {
		return nil, fmt.Errorf(`converting ed25519 public key to curve25519 failed`)
	}

	return out[:], nil
}

func PrivateKeyToCurve25519(prv ed25519.PrivateKey) ([]byte, error) {
	if len(prv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf(`invalid ed25519 private key length %d`, len(prv))
	}

	var in [ed25519.PrivateKeySize]byte
	var out [curve25519KeySize]byte
	copy(in[:], prv)
	extra25519.PrivateKeyToCurve25519(&out, &in)

	return out[:], nil
}

// VerkeyToCurve25519 decodes a base58 verkey and converts it
func VerkeyToCurve25519(verkey string) ([]byte, error) {
	pub := base58.Decode(verkey)
	if len(pub) == 0 {
		return nil, fmt.Errorf(`decoding verkey %s failed`, verkey)
	}
	return PublicKeyToCurve25519(pub)
}
