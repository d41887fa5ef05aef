package service

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	"github.com/agentrelay/agentrelay/internal/cardsign"
	"github.com/agentrelay/agentrelay/internal/config"
	"github.com/agentrelay/agentrelay/internal/domain"
	"github.com/agentrelay/agentrelay/internal/domain/a2a"
	"github.com/agentrelay/agentrelay/internal/port/cache"
)

const (
	cardCacheKey         = "card.public"
	extendedCardCacheKey = "card.extended"
)

// CardService renders the agent discovery document. The card is assembled
// from configuration, optionally signed, and cached until the TTL expires
// since it only changes on restart.
type CardService struct {
	cfg      config.Config
	signer   *cardsign.Signer
	versions []string
	cache    cache.Cache
	cardTTL  time.Duration
}

// NewCardService creates a CardService. signer may be nil to publish an
// unsigned card.
func NewCardService(cfg config.Config, signer *cardsign.Signer, c cache.Cache) *CardService {
	return &CardService{
		cfg:      cfg,
		signer:   signer,
		versions: cfg.Protocol.Versions,
		cache:    c,
		cardTTL:  cfg.Cache.CardTTL,
	}
}

// CardJSON returns the rendered public agent card.
func (s *CardService) CardJSON(ctx context.Context) ([]byte, error) {
	return s.renderCached(ctx, cardCacheKey, false)
}

// ExtendedCardJSON returns the authenticated extended card, which carries
// the full skill list. It fails when no extended card is configured.
func (s *CardService) ExtendedCardJSON(ctx context.Context) ([]byte, error) {
	if !s.cfg.Agent.ExtendedCard {
		return nil, domain.ErrExtendedCardNotConfigured
	}
	return s.renderCached(ctx, extendedCardCacheKey, true)
}

func (s *CardService) renderCached(ctx context.Context, key string, extended bool) ([]byte, error) {
	if s.cache != nil {
		if data, ok, _ := s.cache.Get(ctx, key); ok {
			return data, nil
		}
	}

	card, err := s.render(extended)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(card)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, data, s.cardTTL)
	}
	return data, nil
}

// render assembles the card from configuration and signs it when a signer
// is configured. The signature covers the canonical card JSON with the
// signatures field excluded, which json.Marshal guarantees here because
// the field is empty at signing time.
func (s *CardService) render(extended bool) (*a2a.AgentCard, error) {
	agent := s.cfg.Agent

	card := &a2a.AgentCard{
		Name:               agent.Name,
		Description:        agent.Description,
		URL:                agent.URL,
		Version:            agent.Version,
		ProtocolVersion:    a2a.ProtocolVersion,
		PreferredTransport: "JSONRPC",
		DefaultInputModes:  []string{"text/plain", "application/json"},
		DefaultOutputModes: []string{"text/plain", "application/json"},
		Capabilities: a2a.AgentCapabilities{
			Streaming:         true,
			PushNotifications: s.cfg.Push.Enabled,
			Extensions:        s.extensions(),
		},
		SupportsAuthenticatedExtendedCard: agent.ExtendedCard,
	}

	if len(s.cfg.Auth.Keys) > 0 {
		card.SecuritySchemes = map[string]a2a.SecurityScheme{
			"bearer": {
				Type:         "http",
				Scheme:       "bearer",
				BearerFormat: "API key",
			},
		}
	}

	for _, sk := range agent.Skills {
		card.Skills = append(card.Skills, a2a.AgentSkill{
			ID:          sk.ID,
			Name:        sk.Name,
			Description: sk.Description,
			Tags:        sk.Tags,
		})
	}
	if !extended && agent.ExtendedCard {
		// The public card advertises the extended one instead of carrying
		// the full skill surface itself.
		card.Skills = nil
	}

	if s.signer != nil {
		payload, err := json.Marshal(card)
		if err != nil {
			return nil, err
		}
		sig, err := s.signer.Sign(payload)
		if err != nil {
			return nil, err
		}
		card.Signatures = []a2a.AgentCardSignature{sig}
	}
	return card, nil
}

func (s *CardService) extensions() []a2a.AgentExtension {
	var exts []a2a.AgentExtension
	for _, e := range s.cfg.Agent.Extensions {
		exts = append(exts, a2a.AgentExtension{
			URI:         e.URI,
			Description: e.Description,
			Required:    e.Required,
		})
	}
	return exts
}

// RequiredExtensions returns the URIs callers must declare.
func (s *CardService) RequiredExtensions() []string {
	var uris []string
	for _, e := range s.cfg.Agent.Extensions {
		if e.Required {
			uris = append(uris, e.URI)
		}
	}
	return uris
}

// NegotiateExtensions returns the subset of requested extension URIs this
// agent supports; the binding echoes them back so both sides know which
// augmentations are active.
func (s *CardService) NegotiateExtensions(requested []string) []string {
	var active []string
	for _, e := range s.cfg.Agent.Extensions {
		if slices.Contains(requested, e.URI) {
			active = append(active, e.URI)
		}
	}
	return active
}
