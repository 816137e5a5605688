package clientfakes

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/saltyvip/turnstile/client"
)

var _ client.Verifier = (*FakeVerifier)(nil)

// FakeVerifier maps raw token strings to canned claims.
type FakeVerifier struct {
	mu     sync.Mutex
	claims map[string]*client.IDClaims
	err    error
}

func NewFakeVerifier() *FakeVerifier {
	return &FakeVerifier{claims: make(map[string]*client.IDClaims)}
}

// AddToken registers the claims returned for a raw ID token.
func (v *FakeVerifier) AddToken(rawIDToken string, claims *client.IDClaims) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.claims[rawIDToken] = claims
}

// SetError makes every Verify fail.
func (v *FakeVerifier) SetError(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.err = err
}

func (v *FakeVerifier) Verify(_ context.Context, rawIDToken string) (*client.IDClaims, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.err != nil {
		return nil, v.err
	}
	claims, ok := v.claims[rawIDToken]
	if !ok {
		return nil, errors.New("invalid token: unknown id_token")
	}
	return claims, nil
}
