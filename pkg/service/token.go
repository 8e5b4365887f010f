package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethpandaops/circleboard/pkg/project"
	"github.com/ethpandaops/circleboard/pkg/store"
)

// ErrNoToken is returned when no CircleCI token is configured or stored.
var ErrNoToken = errors.New("no CircleCI token configured")

// Tokens resolves the CircleCI API token. A token from the configuration
// always wins over the one stored through SetToken.
type Tokens struct {
	store      store.Store
	configured string
}

// NewTokens creates a token resolver. configured may be empty.
func NewTokens(st store.Store, configured string) *Tokens {
	return &Tokens{
		store:      st,
		configured: strings.TrimSpace(configured),
	}
}

// Token returns the token to authenticate API calls with. It matches
// circleci.TokenFunc.
func (t *Tokens) Token(ctx context.Context) (string, error) {
	if t.configured != "" {
		return t.configured, nil
	}

	var token string

	found, err := t.store.Load(ctx, project.TokenKey, &token)
	if err != nil {
		return "", fmt.Errorf("loading token: %w", err)
	}

	if !found || token == "" {
		return "", ErrNoToken
	}

	return token, nil
}

// Set stores token for later calls.
func (t *Tokens) Set(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidInput)
	}

	return t.store.Persist(ctx, project.TokenKey, token)
}

// Has reports whether a token is available from either source.
func (t *Tokens) Has(ctx context.Context) (bool, error) {
	_, err := t.Token(ctx)
	if errors.Is(err, ErrNoToken) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	return true, nil
}
