package messages

import "strings"

const (
	PrefixDIDComm = `https://didcomm.org/`
	// legacy prefix still sent by older aries agents
	PrefixLegacy = `did:sov:BzCbsNYhMrjHiqZDTUASHg;spec/`
)

// protocol identifiers (message family and version)
const (
	ProtocolOOB          = PrefixDIDComm + `out-of-band/1.1`
	ProtocolDIDExchange  = PrefixDIDComm + `didexchange/1.0`
	ProtocolTrustPing    = PrefixDIDComm + `trust_ping/1.0`
	ProtocolBasicMessage = PrefixDIDComm + `basicmessage/1.0`
	ProtocolCredential   = PrefixDIDComm + `issue-credential/2.0`
	ProtocolProof        = PrefixDIDComm + `present-proof/2.0`
	ProtocolDiscovery    = PrefixDIDComm + `discover-features/1.0`
	ProtocolRouting      = PrefixDIDComm + `routing/1.0`
)

const (
	OOBInvitationV1   = PrefixDIDComm + `out-of-band/1.0/invitation`
	OOBInvitationV1_1 = ProtocolOOB + `/invitation`

	DIDExchangeReqV1           = ProtocolDIDExchange + `/request`
	DIDExchangeResV1           = ProtocolDIDExchange + `/response`
	DIDExchangeCompV1          = ProtocolDIDExchange + `/complete`
	DIDExchangeProblemReportV1 = ProtocolDIDExchange + `/problem_report`

	TrustPingV1         = ProtocolTrustPing + `/ping`
	TrustPingResponseV1 = ProtocolTrustPing + `/ping_response`

	BasicMessageV1 = ProtocolBasicMessage + `/message`

	CredentialOfferV2         = ProtocolCredential + `/offer-credential`
	CredentialRequestV2       = ProtocolCredential + `/request-credential`
	CredentialIssueV2         = ProtocolCredential + `/issue-credential`
	CredentialAckV2           = ProtocolCredential + `/ack`
	CredentialProblemReportV2 = ProtocolCredential + `/problem-report`

	ProofRequestV2       = ProtocolProof + `/request-presentation`
	ProofPresentationV2  = ProtocolProof + `/presentation`
	ProofAckV2           = ProtocolProof + `/ack`
	ProofProblemReportV2 = ProtocolProof + `/problem-report`

	DiscoverFeatQuery    = ProtocolDiscovery + `/query`
	DiscoverFeatDisclose = ProtocolDiscovery + `/disclose`

	ForwardV1 = ProtocolRouting + `/forward`
)

const (
	HandshakeDIDExchange = ProtocolDIDExchange
	MimeTypeJSON         = `application/json`
	FormatPlainAttrs     = `didcomm/plain-attributes@v1.0`
)

// NormalizeType rewrites legacy message type prefixes into the https form
func NormalizeType(typ string) string {
	if strings.HasPrefix(typ, PrefixLegacy) {
		return PrefixDIDComm + strings.TrimPrefix(typ, PrefixLegacy)
	}
	return typ
}

// Family returns the protocol identifier of a message type by dropping the message name
func Family(typ string) string {
	typ = NormalizeType(typ)
	i := strings.LastIndex(typ, `/`)
	if i < 0 {
		return typ
	}
	return typ[:i]
}

// Name returns the message name of a message type
func Name(typ string) string {
	i := strings.LastIndex(typ, `/`)
	return typ[i+1:]
}
