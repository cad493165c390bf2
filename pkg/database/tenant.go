package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WorkspaceScope is a pooled connection with app.current_workspace_id set,
// which the row level security policies on engine_datasources read.
type WorkspaceScope struct {
	Conn *pgxpool.Conn
}

// Close resets the workspace setting and releases the connection.
// It MUST be called or the setting leaks to the next borrower.
func (s *WorkspaceScope) Close() {
	if s.Conn == nil {
		return
	}
	_, _ = s.Conn.Exec(context.Background(), "RESET app.current_workspace_id")
	s.Conn.Release()
}

// WithWorkspace acquires a connection bound to workspaceID.
func (db *DB) WithWorkspace(ctx context.Context, workspaceID uuid.UUID) (*WorkspaceScope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(ctx, "SELECT set_config('app.current_workspace_id', $1, false)", workspaceID.String()); err != nil {
		conn.Release()
		return nil, err
	}

	return &WorkspaceScope{Conn: conn}, nil
}

// WithoutWorkspace acquires an unscoped connection, which bypasses row level
// security. Only the legacy organization migration uses it.
func (db *DB) WithoutWorkspace(ctx context.Context) (*WorkspaceScope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &WorkspaceScope{Conn: conn}, nil
}
