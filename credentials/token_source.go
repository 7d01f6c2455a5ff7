package credentials

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

type persistingTokenSource struct {
	ctx      context.Context
	store    *Store
	identity string
	base     oauth2.TokenSource

	mu   sync.Mutex
	cred *Credential
}

// TokenSource returns a token source that refreshes cred with its refresh
// token once the access token is stale, and saves every refreshed credential
// back to the store. ctx governs refresh calls (see oauth2.HTTPClient).
func (s *Store) TokenSource(ctx context.Context, identity string, cred *Credential) oauth2.TokenSource {
	return &persistingTokenSource{
		ctx:      ctx,
		store:    s,
		identity: identity,
		base:     cred.Config().TokenSource(ctx, cred.Token()),
		cred:     cred,
	}
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, errors.Wrap(err, "refresh credential")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken == p.cred.AccessToken {
		return tok, nil
	}

	p.cred = p.cred.WithToken(tok)
	if err := p.store.Save(p.ctx, p.identity, p.cred); err != nil {
		// The refreshed token is still usable for this request.
		log.Warn().Err(err).Str("identity", p.identity).Msg("Failed to persist refreshed credential")
	}
	return tok, nil
}
