package clientstate

import (
	"context"
	"errors"
	"fmt"

	"nexosql-backend/pkg/localstore"
)

// MigrateChatsOnce runs migrate unless the chatMigrationDone flag is already
// set, and sets the flag after a successful run. It reports whether migrate ran.
func MigrateChatsOnce(ctx context.Context, storage localstore.Storage, migrate func(context.Context) error) (bool, error) {
	done, err := storage.Get(ctx, localstore.KeyChatMigrationDone)
	switch {
	case err == nil && done == "true":
		return false, nil
	case err != nil && !errors.Is(err, localstore.ErrNotFound):
		return false, fmt.Errorf("reading migration flag: %w", err)
	}
	if err := migrate(ctx); err != nil {
		return true, fmt.Errorf("migrating chats: %w", err)
	}
	if err := storage.Set(ctx, localstore.KeyChatMigrationDone, "true"); err != nil {
		return true, fmt.Errorf("recording chat migration: %w", err)
	}
	return true, nil
}
