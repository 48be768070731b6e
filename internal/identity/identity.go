// Package identity describes who is acting: a stable user id plus whether
// the session is anonymous and the name to show next to their comments.
package identity

import (
	"context"
	"strings"
)

type Identity struct {
	UserID      string `json:"uid"`
	IsAnonymous bool   `json:"isAnonymous"`
	DisplayName string `json:"displayName,omitempty"`
}

// AuthorName is the label attached to comments written by this identity.
func (id Identity) AuthorName() string {
	if id.IsAnonymous {
		return "Anonymous User"
	}
	if name := strings.TrimSpace(id.DisplayName); name != "" {
		return name
	}
	short := id.UserID
	if len(short) > 5 {
		short = short[:5]
	}
	return "User " + short
}

func (id Identity) Valid() bool { return strings.TrimSpace(id.UserID) != "" }

type ctxKey int

const identityKey ctxKey = 1

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	if !ok || !id.Valid() {
		return Identity{}, false
	}
	return id, true
}
