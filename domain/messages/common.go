package messages

// Thread decorator (RFC-0008)
type Thread struct {
	ThId  string `json:"thid,omitempty" validate:"required"`
	PThId string `json:"pthid,omitempty"`
}

// Attachment decorator (RFC-0017)
type Attachment struct {
	Id       string     `json:"@id"`
	MimeType string     `json:"mime-type,omitempty"`
	Data     AttachData `json:"data"`
}

type AttachData struct {
	Base64 string `json:"base64,omitempty"`
	JWS    *JWS   `json:"jws,omitempty"`
}

// JWS is the detached signature over an attachment
type JWS struct {
	Header    map[string]string `json:"header,omitempty"`
	Protected string            `json:"protected"`
	Signature string            `json:"signature"`
}

// ProblemReport reference: https://github.com/hyperledger/aries-rfcs/tree/main/features/0035-report-problem
type ProblemReport struct {
	Id          string      `json:"@id"`
	Type        string      `json:"@type"`
	Thread      Thread      `json:"~thread"`
	Description Description `json:"description"`
}

type Description struct {
	Code string `json:"code"`
	En   string `json:"en,omitempty"`
}

type Ack struct {
	Id     string `json:"@id"`
	Type   string `json:"@type"`
	Status string `json:"status" validate:"required"`
	Thread Thread `json:"~thread"`
}

const (
	AckStatusOK = `OK`
)

const (
	ProblemRequestNotAccepted  = `request_not_accepted`
	ProblemResponseNotAccepted = `response_not_accepted`
	ProblemInvitationConsumed  = `invitation_consumed`
	ProblemInvalidMessage      = `invalid_message`
	ProblemIssuanceAbandoned   = `issuance-abandoned`
	ProblemPresentationFailed  = `presentation-abandoned`
)
