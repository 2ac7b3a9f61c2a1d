package connection

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/YasiruR/didcomm-engine/core/did"
	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/messages"
	"github.com/YasiruR/didcomm-engine/domain/models"
	"github.com/btcsuite/btcutil/base58"
	"github.com/google/uuid"
)

const algEdDSA = `EdDSA`

type jwsHeader struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
}

// docAttachment embeds a did doc as a base64url attachment
func docAttachment(doc messages.DIDDocument) (messages.Attachment, error) {
	byts, err := json.Marshal(doc)
	if err != nil {
		return messages.Attachment{}, fmt.Errorf(`marshalling did doc failed - %v`, err)
	}

	return messages.Attachment{
		Id:       uuid.New().String(),
		MimeType: messages.MimeTypeJSON,
		Data:     messages.AttachData{Base64: base64.URLEncoding.EncodeToString(byts)},
	}, nil
}

func attachedDoc(att messages.Attachment) (messages.DIDDocument, error) {
	byts, err := decodeB64(att.Data.Base64)
	if err != nil {
		return messages.DIDDocument{}, fmt.Errorf(`decoding did doc attachment failed - %v: %w`, err, domain.ErrValidation)
	}

	var doc messages.DIDDocument
	if err = json.Unmarshal(byts, &doc); err != nil {
		return messages.DIDDocument{}, fmt.Errorf(`unmarshalling did doc failed - %v: %w`, err, domain.ErrValidation)
	}
	return doc, nil
}

// Sign adds a detached JWS over the attachment data (RFC-0017 signed attachments)
func Sign(att *messages.Attachment, kp models.KeyPair) error {
	kid, err := did.DIDKey(kp.Verkey)
	if err != nil {
		return fmt.Errorf(`encoding signing key failed - %v`, err)
	}

	hdr, err := json.Marshal(jwsHeader{Alg: algEdDSA, Kid: kid})
	if err != nil {
		return fmt.Errorf(`marshalling jws header failed - %v`, err)
	}

	protected := base64.RawURLEncoding.EncodeToString(hdr)
	sig := ed25519.Sign(kp.Private, signingInput(protected, att.Data.Base64))

	att.Data.JWS = &messages.JWS{
		Header:    map[string]string{`kid`: kid},
		Protected: protected,
		Signature: base64.RawURLEncoding.EncodeToString(sig),
	}
	return nil
}

// Verify checks that the attachment was signed by the given verkey
func Verify(att messages.Attachment, verkey string) error {
	if att.Data.JWS == nil {
		return fmt.Errorf(`attachment %s is not signed - %w`, att.Id, domain.ErrAuthenticationFailed)
	}

	hdrByts, err := decodeB64(att.Data.JWS.Protected)
	if err != nil {
		return fmt.Errorf(`decoding jws header failed - %v: %w`, err, domain.ErrAuthenticationFailed)
	}

	var hdr jwsHeader
	if err = json.Unmarshal(hdrByts, &hdr); err != nil || hdr.Alg != algEdDSA {
		return fmt.Errorf(`unsupported jws header %s - %w`, string(hdrByts), domain.ErrAuthenticationFailed)
	}

	sig, err := decodeB64(att.Data.JWS.Signature)
	if err != nil {
		return fmt.Errorf(`decoding signature failed - %v: %w`, err, domain.ErrAuthenticationFailed)
	}

	pub := base58.Decode(verkey)
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf(`invalid verkey %s - %w`, verkey, domain.ErrAuthenticationFailed)
	}

	if !ed25519.Verify(pub, signingInput(att.Data.JWS.Protected, att.Data.Base64), sig) {
		return fmt.Errorf(`signature of attachment %s does not match %s - %w`, att.Id, verkey, domain.ErrAuthenticationFailed)
	}
	return nil
}

func signingInput(protected, data string) []byte {
	return []byte(protected + `.` + strings.TrimRight(data, `=`))
}

// decodeB64 accepts padded and unpadded base64url as well as standard base64
func decodeB64(s string) ([]byte, error) {
	byts, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, `=`))
	if err != nil {
		return base64.StdEncoding.DecodeString(s)
	}
	return byts, nil
}
