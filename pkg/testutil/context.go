package testutil

import (
	"context"
	"time"

	id "archivist/pkg/domain"
	"archivist/pkg/requestcontext"
)

// AuthenticatedContext is a context for calling services directly as
// principalID at now.
func AuthenticatedContext(principalID id.PrincipalID, now time.Time) context.Context {
	ctx := requestcontext.WithPrincipalID(context.Background(), principalID)
	ctx = requestcontext.WithAuthMethod(ctx, "password")
	ctx = requestcontext.WithClientMetadata(ctx, "127.0.0.1", "testutil")
	return requestcontext.WithTime(ctx, now)
}
