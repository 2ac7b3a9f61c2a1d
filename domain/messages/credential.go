package messages

// issue-credential 2.0 reference: https://github.com/hyperledger/aries-rfcs/tree/main/features/0453-issue-credential-v2

type Attribute struct {
	Name     string `json:"name" validate:"required"`
	MimeType string `json:"mime-type,omitempty"`
	Value    string `json:"value"`
}

type CredentialPreview struct {
	Type       string      `json:"@type"`
	Attributes []Attribute `json:"attributes" validate:"required,min=1,dive"`
}

type AttachFormat struct {
	AttachId string `json:"attach_id"`
	Format   string `json:"format"`
}

type CredentialOffer struct {
	Id           string            `json:"@id" validate:"required"`
	Type         string            `json:"@type" validate:"required"`
	Comment      string            `json:"comment,omitempty"`
	Preview      CredentialPreview `json:"credential_preview"`
	Formats      []AttachFormat    `json:"formats"`
	OffersAttach []Attachment      `json:"offers~attach"`
}

type CredentialRequest struct {
	Id             string         `json:"@id" validate:"required"`
	Type           string         `json:"@type" validate:"required"`
	Thread         Thread         `json:"~thread"`
	Comment        string         `json:"comment,omitempty"`
	Formats        []AttachFormat `json:"formats"`
	RequestsAttach []Attachment   `json:"requests~attach"`
}

type CredentialIssue struct {
	Id                string         `json:"@id" validate:"required"`
	Type              string         `json:"@type" validate:"required"`
	Thread            Thread         `json:"~thread"`
	Comment           string         `json:"comment,omitempty"`
	Formats           []AttachFormat `json:"formats"`
	CredentialsAttach []Attachment   `json:"credentials~attach" validate:"required,min=1"`
}

// present-proof 2.0 reference: https://github.com/hyperledger/aries-rfcs/tree/main/features/0454-present-proof-v2

type PresentationRequest struct {
	Id                         string         `json:"@id" validate:"required"`
	Type                       string         `json:"@type" validate:"required"`
	Comment                    string         `json:"comment,omitempty"`
	WillConfirm                bool           `json:"will_confirm"`
	Formats                    []AttachFormat `json:"formats"`
	RequestPresentationsAttach []Attachment   `json:"request_presentations~attach" validate:"required,min=1"`
}

type Presentation struct {
	Id                  string         `json:"@id" validate:"required"`
	Type                string         `json:"@type" validate:"required"`
	Thread              Thread         `json:"~thread"`
	Comment             string         `json:"comment,omitempty"`
	Formats             []AttachFormat `json:"formats"`
	PresentationsAttach []Attachment   `json:"presentations~attach" validate:"required,min=1"`
}
