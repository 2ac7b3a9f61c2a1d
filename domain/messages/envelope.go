package messages

// envelope formats follow https://github.com/hyperledger/aries-rfcs/tree/main/features/0019-encryption-envelope

const (
	EncChachaPoly = `chacha20poly1305_ietf`
	TypJWM        = `JWM/1.0`
	AlgAuthcrypt  = `Authcrypt`
	AlgAnoncrypt  = `Anoncrypt`
)

type AuthCryptMsg struct {
	Protected  string `json:"protected"`
	Iv         string `json:"iv"`
	Ciphertext string `json:"ciphertext"`
	Tag        string `json:"tag"`
}

type Payload struct {
	Enc        string      `json:"enc"`
	Typ        string      `json:"typ"`
	Alg        string      `json:"alg"`
	Recipients []Recipient `json:"recipients"`
}

type Recipient struct {
	EncryptedKey string `json:"encrypted_key"`
	Header       Header `json:"header"`
}

type Header struct {
	Kid    string `json:"kid"`
	Iv     string `json:"iv,omitempty"`
	Sender string `json:"sender,omitempty"`
}

// Forward wraps an envelope for a mediator (RFC-0094)
type Forward struct {
	Id   string       `json:"@id"`
	Type string       `json:"@type"`
	To   string       `json:"to"`
	Msg  AuthCryptMsg `json:"msg"`
}
