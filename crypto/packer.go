package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/messages"
	"github.com/YasiruR/didcomm-engine/domain/models"
	"github.com/YasiruR/didcomm-engine/domain/services"
	"github.com/btcsuite/btcutil/base58"
	"github.com/tryfix/log"
)

const (
	cekSize  = 32
	ivSize   = 12
	cekNonce = 24
)

// Packer implements the encryption envelope of RFC-0019
// (https://github.com/hyperledger/aries-rfcs/tree/main/features/0019-encryption-envelope).
// It holds no key state and is safe for concurrent use.
type Packer struct {
	enc services.Encryptor
	log log.Logger
}

func NewPacker(enc services.Encryptor, logger log.Logger) *Packer {
	return &Packer{enc: enc, log: logger}
}

func (p *Packer) Pack(msg []byte, sender *models.KeyPair, recVerkeys ...string) (messages.AuthCryptMsg, error) {
	if len(recVerkeys) == 0 {
		return messages.AuthCryptMsg{}, fmt.Errorf(`no recipients provided`)
	}

	// generating content encryption key
	cek, err := randBytes(cekSize)
	if err != nil {
		return messages.AuthCryptMsg{}, err
	}

	alg := messages.AlgAnoncrypt
	var sendCurvePrv []byte
	if sender != nil {
		alg = messages.AlgAuthcrypt
		sendCurvePrv, err = PrivateKeyToCurve25519(sender.Private)
		if err != nil {
			return messages.AuthCryptMsg{}, fmt.Errorf(`converting sender key failed - %v`, err)
		}
	}

	var recipients []messages.Recipient
	for _, verkey := range recVerkeys {
		rec, err := p.recipient(cek, verkey, sender, sendCurvePrv)
		if err != nil {
			return messages.AuthCryptMsg{}, fmt.Errorf(`encrypting cek for %s failed - %v`, verkey, err)
		}
		recipients = append(recipients, rec)
	}

	data, err := json.Marshal(messages.Payload{
		Enc:        messages.EncChachaPoly,
		Typ:        messages.TypJWM,
		Alg:        alg,
		Recipients: recipients,
	})
	if err != nil {
		return messages.AuthCryptMsg{}, fmt.Errorf(`marshalling protected header failed - %v`, err)
	}
	protectedVal := encode(data)

	// encrypt with chachapoly1305 detached mode
	iv, err := randBytes(ivSize)
	if err != nil {
		return messages.AuthCryptMsg{}, err
	}

	cipher, mac, err := p.enc.EncryptDetached(msg, []byte(protectedVal), iv, cek)
	if err != nil {
		return messages.AuthCryptMsg{}, fmt.Errorf(`encrypting payload failed - %v`, err)
	}

	return messages.AuthCryptMsg{
		Protected:  protectedVal,
		Iv:         encode(iv),
		Ciphertext: encode(cipher),
		Tag:        encode(mac),
	}, nil
}

func (p *Packer) recipient(cek []byte, verkey string, sender *models.KeyPair, sendCurvePrv []byte) (messages.Recipient, error) {
	recCurvePub, err := VerkeyToCurve25519(verkey)
	if err != nil {
		return messages.Recipient{}, err
	}

	if sender == nil {
		encCek, err := p.enc.SealBox(cek, recCurvePub)
		if err != nil {
			return messages.Recipient{}, err
		}
		return messages.Recipient{EncryptedKey: encode(encCek), Header: messages.Header{Kid: verkey}}, nil
	}

	nonce, err := randBytes(cekNonce)
	if err != nil {
		return messages.Recipient{}, err
	}

	encCek, err := p.enc.Box(cek, nonce, recCurvePub, sendCurvePrv)
	if err != nil {
		return messages.Recipient{}, err
	}

	// sender verkey is only readable by the recipient
	encSender, err := p.enc.SealBox([]byte(sender.Verkey), recCurvePub)
	if err != nil {
		return messages.Recipient{}, err
	}

	return messages.Recipient{
		EncryptedKey: encode(encCek),
		Header: messages.Header{
			Kid:    verkey,
			Iv:     encode(nonce),
			Sender: encode(encSender),
		},
	}, nil
}

func (p *Packer) Unpack(data []byte, ks services.KeyStore) (models.Unpacked, error) {
	var msg messages.AuthCryptMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return models.Unpacked{}, fmt.Errorf(`unmarshalling envelope failed - %v: %w`, err, domain.ErrMalformedEnvelope)
	}

	payload, err := p.protected(msg.Protected)
	if err != nil {
		return models.Unpacked{}, err
	}

	// every held recipient entry is tried before the envelope is rejected
	var (
		rec    *messages.Recipient
		sender string
		cek    []byte
		held   bool
	)
	for i := range payload.Recipients {
		r := &payload.Recipients[i]
		if !ks.Has(r.Header.Kid) {
			continue
		}
		held = true

		kp, err := ks.KeyPair(r.Header.Kid)
		if err != nil {
			return models.Unpacked{}, fmt.Errorf(`fetching recipient keys failed - %w`, err)
		}

		if sender, cek, err = p.openCek(payload.Alg, r, kp); err != nil {
			p.log.Debug(fmt.Sprintf(`decrypting cek for %s failed - %v`, r.Header.Kid, err))
			continue
		}
		rec = r
		break
	}

	if !held {
		return models.Unpacked{}, domain.ErrNoMatchingKey
	}
	if rec == nil {
		return models.Unpacked{}, fmt.Errorf(`decrypting cek failed - %w`, domain.ErrAuthenticationFailed)
	}

	iv, errIv := decode(msg.Iv)
	cipher, errCipher := decode(msg.Ciphertext)
	mac, errMac := decode(msg.Tag)
	if errIv != nil || errCipher != nil || errMac != nil {
		return models.Unpacked{}, fmt.Errorf(`decoding ciphertext failed - %w`, domain.ErrAuthenticationFailed)
	}

	text, err := p.enc.DecryptDetached(cipher, mac, []byte(msg.Protected), iv, cek)
	if err != nil {
		p.log.Debug(fmt.Sprintf(`decrypting payload for %s failed - %v`, rec.Header.Kid, err))
		return models.Unpacked{}, fmt.Errorf(`decrypting payload failed - %w`, domain.ErrAuthenticationFailed)
	}

	return models.Unpacked{Message: text, SenderVerkey: sender, RecipientVerkey: rec.Header.Kid}, nil
}

// Recipients returns the kids of an envelope without decrypting it
func (p *Packer) Recipients(data []byte) ([]string, error) {
	var msg messages.AuthCryptMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf(`unmarshalling envelope failed - %v: %w`, err, domain.ErrMalformedEnvelope)
	}

	payload, err := p.protected(msg.Protected)
	if err != nil {
		return nil, err
	}

	var kids []string
	for _, r := range payload.Recipients {
		kids = append(kids, r.Header.Kid)
	}
	return kids, nil
}

func (p *Packer) protected(val string) (messages.Payload, error) {
	decodedVal, err := decode(val)
	if err != nil {
		return messages.Payload{}, fmt.Errorf(`decoding protected header failed - %v: %w`, err, domain.ErrMalformedEnvelope)
	}

	var payload messages.Payload
	if err = json.Unmarshal(decodedVal, &payload); err != nil {
		return messages.Payload{}, fmt.Errorf(`unmarshalling protected header failed - %v: %w`, err, domain.ErrMalformedEnvelope)
	}

	if payload.Alg != messages.AlgAuthcrypt && payload.Alg != messages.AlgAnoncrypt {
		return messages.Payload{}, fmt.Errorf(`unsupported algorithm %s - %w`, payload.Alg, domain.ErrMalformedEnvelope)
	}

	if payload.Enc != messages.EncChachaPoly {
		return messages.Payload{}, fmt.Errorf(`unsupported encryption %s - %w`, payload.Enc, domain.ErrMalformedEnvelope)
	}

	if len(payload.Recipients) == 0 {
		return messages.Payload{}, fmt.Errorf(`no recipients found - %w`, domain.ErrMalformedEnvelope)
	}

	return payload, nil
}

func (p *Packer) openCek(alg string, rec *messages.Recipient, kp models.KeyPair) (sender string, cek []byte, err error) {
	recCurvePrv, err := PrivateKeyToCurve25519(kp.Private)
	if err != nil {
		return ``, nil, err
	}

	recCurvePub, err := PublicKeyToCurve25519(kp.Public)
	if err != nil {
		return ``, nil, err
	}

	encCek, err := decode(rec.EncryptedKey)
	if err != nil {
		return ``, nil, fmt.Errorf(`decoding encrypted key failed - %v`, err)
	}

	if alg == messages.AlgAnoncrypt {
		cek, err = p.enc.SealBoxOpen(encCek, recCurvePub, recCurvePrv)
		return ``, cek, err
	}

	encSender, err := decode(rec.Header.Sender)
	if err != nil {
		return ``, nil, fmt.Errorf(`decoding sender failed - %v`, err)
	}

	senderVerkey, err := p.enc.SealBoxOpen(encSender, recCurvePub, recCurvePrv)
	if err != nil {
		return ``, nil, fmt.Errorf(`decrypting sender verkey failed - %v`, err)
	}

	sendCurvePub, err := VerkeyToCurve25519(string(senderVerkey))
	if err != nil {
		return ``, nil, err
	}

	nonce, err := decode(rec.Header.Iv)
	if err != nil {
		return ``, nil, fmt.Errorf(`decoding cek nonce failed - %v`, err)
	}

	cek, err = p.enc.BoxOpen(encCek, nonce, sendCurvePub, recCurvePrv)
	if err != nil {
		return ``, nil, err
	}

	if len(cek) != cekSize {
		return ``, nil, fmt.Errorf(`invalid cek length %d`, len(cek))
	}

	return string(senderVerkey), cek, nil
}

func randBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf(`reading random bytes failed - %v`, err)
	}
	return b, nil
}

func encode(b []byte) string {
	return base64.URLEncoding.EncodeToString(b)
}

// decode accepts both padded and unpadded base64url values
func decode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, `=`))
}

// Verkey is the base58 encoding of an ed25519 public key
func Verkey(pub []byte) string {
	return base58.Encode(pub)
}
