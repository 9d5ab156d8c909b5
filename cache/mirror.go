package cache

import (
	"context"
	"time"
)

const mirrorTimeout = 5 * time.Second

// Mirror copies access token writes into a Store entry. It satisfies
// session.TokenMirror.
type Mirror struct {
	store Store
	key   string
}

// NewMirror mirrors into the entry for key
func NewMirror(store Store, key string) *Mirror {
	return &Mirror{store: store, key: key}
}

// MirrorToken saves token as the last known access token ("" clears it).
func (m *Mirror) MirrorToken(token string) error {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()

	return m.store.Update(ctx, m.key, func(e *Entry) error {
		e.AccessToken = token
		return nil
	})
}
