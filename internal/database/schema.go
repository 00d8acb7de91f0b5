package database

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"
)

// schema defines the two tables and the index that history reads use.
// Statements are idempotent.
const schema = `
DEFINE TABLE IF NOT EXISTS room SCHEMAFULL;
DEFINE FIELD IF NOT EXISTS name ON room TYPE string;
DEFINE FIELD IF NOT EXISTS created_at ON room TYPE datetime DEFAULT time::now();

DEFINE TABLE IF NOT EXISTS message SCHEMAFULL;
DEFINE FIELD IF NOT EXISTS room_id ON message TYPE string ASSERT string::len($value) > 0;
DEFINE FIELD IF NOT EXISTS sender ON message TYPE string ASSERT string::len($value) > 0;
DEFINE FIELD IF NOT EXISTS text ON message TYPE string ASSERT string::len($value) > 0;
DEFINE FIELD IF NOT EXISTS created_at ON message TYPE datetime DEFAULT time::now();
DEFINE INDEX IF NOT EXISTS message_room_created ON message FIELDS room_id, created_at;
`

// ApplySchema defines the tables used by the stores.
func ApplySchema(ctx context.Context, conn DBConnection) error {
	ctx, cancel := getTimeoutFromContext(ctx, conn.GetDBExecuteTimeout(), ContextKeyExecuteTimeout)
	defer cancel()

	return conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		if err := Execute(ctx, db, schema, nil); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
		return nil
	})
}
