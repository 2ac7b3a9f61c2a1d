package domain

const (
	ServcDIDComm = `did-communication`
)

// handler types registered on servers
const (
	MsgTypEnvelope = `envelope`
	MsgTerminate   = `terminate`
)

const (
	InboundEndpoint = `/`
	WSEndpoint      = `/ws`
)

// media types of an encrypted envelope (RFC-0025), the first one is used for outbound messages
const (
	MediaTypEnvelope       = `application/didcomm-envelope-enc`
	MediaTypEnvelopeLegacy = `application/didcomm-enc-env`
	MediaTypAgentWire      = `application/ssi-agent-wire`
	MediaTypJSON           = `application/json`
)

const (
	EncodingZstd = `zstd`
)

const (
	CryptoBackendNacl   = `nacl`
	CryptoBackendSodium = `sodium`
)

// event topics published by the notifier
const (
	TopicConnections   = `connections`
	TopicBasicMessages = `basicmessages`
	TopicTrustPing     = `trust_ping`
	TopicCredentials   = `issue_credential`
	TopicProofs        = `present_proof`
	TopicProblems      = `problem_report`
)
