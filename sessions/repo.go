package sessions

import "context"

// Repo stores sessions by id. Get returns errors.ErrSessionNotFound for
// unknown ids.
type Repo interface {
	Upsert(ctx context.Context, session Session) error
	Get(ctx context.Context, sessionID string) (Session, error)
	Delete(ctx context.Context, sessionID string) error
}
