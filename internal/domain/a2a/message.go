package a2a

import "github.com/google/uuid"

// Role identifies the author of a message turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// PartKind discriminates the content of a Part.
type PartKind string

const (
	PartKindText PartKind = "text"
	PartKindFile PartKind = "file"
	PartKindData PartKind = "data"
)

// Part is one unit of content within a message or artifact. Exactly one of
// Text, File, or Data is populated, selected by Kind.
type Part struct {
	Kind     PartKind       `json:"kind"`
	Text     string         `json:"text,omitempty"`
	File     *FileContent   `json:"file,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// FileContent carries a file either inline (base64 bytes) or by URI.
type FileContent struct {
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Bytes    []byte `json:"bytes,omitempty"`
	URI      string `json:"uri,omitempty"`
}

// Message is a single turn in an exchange. Messages are communication;
// final results are delivered as artifacts, never messages.
type Message struct {
	MessageID string `json:"messageId"`
	Role      Role   `json:"role"`
	Parts     []Part `json:"parts"`
	// TaskID and ContextID are continuation references. Both empty on the
	// first turn of a new task.
	TaskID    string `json:"taskId,omitempty"`
	ContextID string `json:"contextId,omitempty"`
	// ReferenceTaskIDs cite other tasks this message relates to.
	ReferenceTaskIDs []string       `json:"referenceTaskIds,omitempty"`
	Extensions       []string       `json:"extensions,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// NewMessageID returns a fresh server-generated message identifier.
func NewMessageID() string { return uuid.NewString() }

// NewMessage creates a message with a generated ID.
func NewMessage(role Role, parts ...Part) Message {
	return Message{
		MessageID: uuid.NewString(),
		Role:      role,
		Parts:     parts,
	}
}

// NewTextMessage creates a single text-part message.
func NewTextMessage(role Role, text string) Message {
	return NewMessage(role, TextPart(text))
}

// TextPart builds a text part.
func TextPart(text string) Part {
	return Part{Kind: PartKindText, Text: text}
}

// DataPart builds a structured data part.
func DataPart(data map[string]any) Part {
	return Part{Kind: PartKindData, Data: data}
}

// FilePart builds a file part.
func FilePart(file FileContent) Part {
	return Part{Kind: PartKindFile, File: &file}
}

// Text concatenates the message's text parts.
func (m Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if p.Kind == PartKindText {
			out += p.Text
		}
	}
	return out
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	c := m
	if m.Parts != nil {
		c.Parts = make([]Part, len(m.Parts))
		for i, p := range m.Parts {
			c.Parts[i] = p.Clone()
		}
	}
	if m.ReferenceTaskIDs != nil {
		c.ReferenceTaskIDs = append([]string(nil), m.ReferenceTaskIDs...)
	}
	if m.Extensions != nil {
		c.Extensions = append([]string(nil), m.Extensions...)
	}
	c.Metadata = cloneMap(m.Metadata)
	return c
}

// Clone returns a deep copy of the part.
func (p Part) Clone() Part {
	c := p
	if p.File != nil {
		f := *p.File
		if p.File.Bytes != nil {
			f.Bytes = append([]byte(nil), p.File.Bytes...)
		}
		c.File = &f
	}
	c.Data = cloneMap(p.Data)
	c.Metadata = cloneMap(p.Metadata)
	return c
}

// Validate checks structural requirements on an inbound message: a known
// role, at least one part, and a known kind on every part.
func (m Message) Validate() error {
	if m.Role != RoleUser && m.Role != RoleAgent {
		return errInvalidRole(string(m.Role))
	}
	if len(m.Parts) == 0 {
		return errEmptyParts
	}
	for _, p := range m.Parts {
		switch p.Kind {
		case PartKindText, PartKindFile, PartKindData:
		default:
			return errUnknownPartKind(string(p.Kind))
		}
	}
	return nil
}
