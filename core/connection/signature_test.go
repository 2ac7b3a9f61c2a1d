package connection

import (
	"encoding/base64"
	"testing"

	"github.com/YasiruR/didcomm-engine/crypto"
	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/messages"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerifyAttachment(t *testing.T) {
	r := require.New(t)
	km := crypto.NewKeyManager()
	signer, err := km.CreateKey()
	r.NoError(err)
	other, err := km.CreateKey()
	r.NoError(err)

	att, err := docAttachment(messages.DIDDocument{Id: `did:peer:1zabc`})
	r.NoError(err)
	r.NoError(Sign(&att, signer))
	r.NotNil(att.Data.JWS)

	r.NoError(Verify(att, signer.Verkey))
	r.ErrorIs(Verify(att, other.Verkey), domain.ErrAuthenticationFailed)

	doc, err := attachedDoc(att)
	r.NoError(err)
	r.Equal(`did:peer:1zabc`, doc.Id)

	tampered := att
	tampered.Data.Base64 = base64.URLEncoding.EncodeToString([]byte(`{"id":"did:peer:1zother"}`))
	r.ErrorIs(Verify(tampered, signer.Verkey), domain.ErrAuthenticationFailed)

	unsigned := att
	unsigned.Data.JWS = nil
	r.ErrorIs(Verify(unsigned, signer.Verkey), domain.ErrAuthenticationFailed)
}
