package database

import "context"

type contextKey string

const workspaceScopeKey contextKey = "workspaceScope"

// GetWorkspaceScope retrieves the scoped connection stored by WithWorkspaceContext.
func GetWorkspaceScope(ctx context.Context) (*WorkspaceScope, bool) {
	scope, ok := ctx.Value(workspaceScopeKey).(*WorkspaceScope)
	return scope, ok && scope != nil
}

// SetWorkspaceScope stores a scoped connection in ctx.
func SetWorkspaceScope(ctx context.Context, scope *WorkspaceScope) context.Context {
	return context.WithValue(ctx, workspaceScopeKey, scope)
}
