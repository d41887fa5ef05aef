package a2a

import "github.com/google/uuid"

// Artifact is a typed output unit attached to a task. Artifacts are
// append-only once produced; they are the channel for final results.
type Artifact struct {
	ArtifactID  string         `json:"artifactId"`
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Parts       []Part         `json:"parts"`
	Extensions  []string       `json:"extensions,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// NewArtifactID returns a fresh server-generated artifact identifier.
func NewArtifactID() string { return uuid.NewString() }

// NewArtifact creates an artifact with a generated ID.
func NewArtifact(name string, parts ...Part) Artifact {
	return Artifact{
		ArtifactID: uuid.NewString(),
		Name:       name,
		Parts:      parts,
	}
}

// NewTextArtifact creates a single text-part artifact.
func NewTextArtifact(name, text string) Artifact {
	return NewArtifact(name, TextPart(text))
}

// Clone returns a deep copy of the artifact.
func (a Artifact) Clone() Artifact {
	c := a
	if a.Parts != nil {
		c.Parts = make([]Part, len(a.Parts))
		for i, p := range a.Parts {
			c.Parts[i] = p.Clone()
		}
	}
	if a.Extensions != nil {
		c.Extensions = append([]string(nil), a.Extensions...)
	}
	c.Metadata = cloneMap(a.Metadata)
	return c
}
