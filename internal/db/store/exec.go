package store

import (
	"context"

	"github.com/jmoiron/sqlx"
)

func sqlxGet(ctx context.Context, db DBTX, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, db, dest, query, args...)
}

func sqlxSelect(ctx context.Context, db DBTX, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, db, dest, query, args...)
}

// expandIn rewrites a query containing IN (?) for slice arguments.
func expandIn(db DBTX, query string, args ...any) (string, []any, error) {
	expanded, expandedArgs, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return db.Rebind(expanded), expandedArgs, nil
}
