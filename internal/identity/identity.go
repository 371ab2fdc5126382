// Package identity links users to external sign-in providers.
//
// All providers share the models.Identity record and differ only in Kind
// and in how a token is verified. Providers are looked up in a Registry by
// kind; adding a provider means registering one more Provider.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/emilythestrangee/consensus/backend/internal/models"
)

type Kind string

const (
	KindGoogle Kind = "google"
	KindApple  Kind = "apple"
)

var (
	ErrUnknownProvider = errors.New("unknown identity provider")
	ErrInvalidToken    = errors.New("invalid identity token")
)

// Profile is what a provider vouches for once a token checks out.
type Profile struct {
	UID    string
	Email  string
	Name   string
	Logo   string
	Fields map[string]string
}

type Provider interface {
	Kind() Kind
	Verify(ctx context.Context, token string) (Profile, error)
}

type Registry struct {
	providers map[Kind]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[Kind]Provider, len(providers))}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// NewDefaultRegistry registers Google, and Apple only when appleClientID is
// set; an Apple provider that cannot check audience would accept any app's
// tokens.
func NewDefaultRegistry(appleClientID, appleKeysURL string) *Registry {
	r := NewRegistry(NewGoogle())
	if appleClientID != "" {
		r.Register(NewApple(appleClientID, appleKeysURL))
	}
	return r
}

// Register adds p, replacing any provider of the same kind.
func (r *Registry) Register(p Provider) {
	r.providers[p.Kind()] = p
}

func (r *Registry) Lookup(kind Kind) (Provider, error) {
	p, ok := r.providers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, kind)
	}
	return p, nil
}

// Kinds lists the registered kinds in sorted order.
func (r *Registry) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r.providers))
	for k := range r.providers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Build verifies token with the provider for kind and returns the identity
// record for userID. Nothing is persisted.
func (r *Registry) Build(ctx context.Context, kind Kind, userID int, token string) (models.Identity, error) {
	p, err := r.Lookup(kind)
	if err != nil {
		return models.Identity{}, err
	}
	if token == "" {
		return models.Identity{}, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}
	profile, err := p.Verify(ctx, token)
	if err != nil {
		return models.Identity{}, err
	}
	return models.Identity{
		UserID:       userID,
		IdentityType: string(kind),
		UID:          profile.UID,
		AccessToken:  token,
		Email:        profile.Email,
		Name:         profile.Name,
		Logo:         profile.Logo,
		CustomFields: profile.Fields,
	}, nil
}
