package a2a

// ProtocolVersion is the protocol version this server speaks by default.
const ProtocolVersion = "0.3"

// AgentCard is the capability descriptor published at the well-known
// discovery location.
type AgentCard struct {
	Name               string                    `json:"name"`
	Description        string                    `json:"description,omitempty"`
	URL                string                    `json:"url"`
	Version            string                    `json:"version"`
	ProtocolVersion    string                    `json:"protocolVersion"`
	PreferredTransport string                    `json:"preferredTransport,omitempty"`
	DefaultInputModes  []string                  `json:"defaultInputModes,omitempty"`
	DefaultOutputModes []string                  `json:"defaultOutputModes,omitempty"`
	Capabilities       AgentCapabilities         `json:"capabilities"`
	SecuritySchemes    map[string]SecurityScheme `json:"securitySchemes,omitempty"`
	Skills             []AgentSkill              `json:"skills,omitempty"`
	// SupportsAuthenticatedExtendedCard advertises that authenticated
	// callers can fetch a richer card.
	SupportsAuthenticatedExtendedCard bool `json:"supportsAuthenticatedExtendedCard,omitempty"`
	// Signatures are detached JWS signatures over the canonicalized card
	// with this field excluded.
	Signatures []AgentCardSignature `json:"signatures,omitempty"`
}

// AgentCapabilities flags the optional protocol features the agent supports.
type AgentCapabilities struct {
	Streaming         bool             `json:"streaming,omitempty"`
	PushNotifications bool             `json:"pushNotifications,omitempty"`
	Extensions        []AgentExtension `json:"extensions,omitempty"`
}

// AgentExtension declares a URI-identified protocol augmentation.
type AgentExtension struct {
	URI         string `json:"uri"`
	Description string `json:"description,omitempty"`
	// Required means callers must declare support for this extension or be
	// rejected.
	Required bool           `json:"required,omitempty"`
	Params   map[string]any `json:"params,omitempty"`
}

// AgentSkill describes a single capability of the agent.
type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Examples    []string `json:"examples,omitempty"`
	InputModes  []string `json:"inputModes,omitempty"`
	OutputModes []string `json:"outputModes,omitempty"`
}

// SecurityScheme describes an authentication scheme accepted by the agent.
type SecurityScheme struct {
	Type         string `json:"type"`
	Scheme       string `json:"scheme,omitempty"`
	BearerFormat string `json:"bearerFormat,omitempty"`
	In           string `json:"in,omitempty"`
	Name         string `json:"name,omitempty"`
	Description  string `json:"description,omitempty"`
}

// AgentCardSignature is a detached JWS over the canonicalized card.
type AgentCardSignature struct {
	Protected string         `json:"protected"`
	Signature string         `json:"signature"`
	Header    map[string]any `json:"header,omitempty"`
}
