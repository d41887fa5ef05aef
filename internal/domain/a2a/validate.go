package a2a

import "github.com/agentrelay/agentrelay/internal/domain"

var errEmptyParts = domain.ErrInvalidRequest.WithMessage("message must contain at least one part")

func errInvalidRole(role string) error {
	return domain.ErrInvalidRequest.WithMessage("invalid message role %q", role)
}

func errUnknownPartKind(kind string) error {
	return domain.ErrContentTypeNotSupported.WithMessage("unsupported part kind %q", kind).WithDetail("kind", kind)
}
