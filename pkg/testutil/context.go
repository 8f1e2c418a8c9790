package testutil

import (
	"context"
	"time"

	id "regflow/pkg/domain"
	"regflow/pkg/requestcontext"
)

// ActorContext is the context an authenticated request carries into a
// service: the acting user and a pinned request time.
func ActorContext(userID id.UserID, now time.Time) context.Context {
	return requestcontext.WithUserID(requestcontext.WithTime(context.Background(), now), userID)
}
