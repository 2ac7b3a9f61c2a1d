package crypto

import (
	"crypto/ed25519"
	"testing"

	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/stretchr/testify/require"
)

func TestKeyManager(t *testing.T) {
	r := require.New(t)
	km := NewKeyManager()

	kp, err := km.CreateKey()
	r.NoError(err)
	r.True(km.Has(kp.Verkey))
	r.Equal([]string{kp.Verkey}, km.Verkeys())

	got, err := km.KeyPair(kp.Verkey)
	r.NoError(err)
	r.Equal(kp.Private, got.Private)

	km.DeleteKey(kp.Verkey)
	r.False(km.Has(kp.Verkey))
	_, err = km.KeyPair(kp.Verkey)
	r.ErrorIs(err, domain.ErrNoMatchingKey)
}

func TestKeyManager_ImportSeed(t *testing.T) {
	r := require.New(t)
	km := NewKeyManager()

	kp, err := km.CreateKey()
	r.NoError(err)

	restored := NewKeyManager()
	got, err := restored.ImportSeed(kp.Private.Seed())
	r.NoError(err)
	r.Equal(kp.Verkey, got.Verkey)

	_, err = restored.ImportSeed([]byte(`short`))
	r.ErrorIs(err, domain.ErrWallet)
}

func TestCurveConversion(t *testing.T) {
	r := require.New(t)
	km := NewKeyManager()
	kp, err := km.CreateKey()
	r.NoError(err)

	pub, err := PublicKeyToCurve25519(kp.Public)
	r.NoError(err)
	r.Len(pub, curve25519KeySize)

	prv, err := PrivateKeyToCurve25519(kp.Private)
	r.NoError(err)
	r.Len(prv, curve25519KeySize)

	_, err = PublicKeyToCurve25519(make([]byte, ed25519.PublicKeySize-1))
	r.Error(err)

	// a box sealed with converted keys opens on the other side
	other, err := km.CreateKey()
	r.NoError(err)
	otherPub, err := PublicKeyToCurve25519(other.Public)
	r.NoError(err)
	otherPrv, err := PrivateKeyToCurve25519(other.Private)
	r.NoError(err)

	enc := NewEncryptor()
	nonce := make([]byte, nonceSize)
	c, err := enc.Box([]byte(`msg`), nonce, otherPub, prv)
	r.NoError(err)
	m, err := enc.BoxOpen(c, nonce, pub, otherPrv)
	r.NoError(err)
	r.Equal(`msg`, string(m))
}
