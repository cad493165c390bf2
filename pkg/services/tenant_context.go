package services

import (
	"context"

	"github.com/ekaya-inc/ekaya-datasources/pkg/database"
)

// UnscopedContextFunc acquires a database connection without a workspace
// binding, for maintenance jobs that span workspaces.
// Returns the scoped context, a cleanup function (MUST be called), and any error.
type UnscopedContextFunc func(ctx context.Context) (context.Context, func(), error)

// NewUnscopedContextFunc creates an UnscopedContextFunc that uses the given database.
func NewUnscopedContextFunc(db *database.DB) UnscopedContextFunc {
	return func(ctx context.Context) (context.Context, func(), error) {
		scope, err := db.WithoutWorkspace(ctx)
		if err != nil {
			return nil, nil, err
		}
		return database.SetWorkspaceScope(ctx, scope), func() { scope.Close() }, nil
	}
}
