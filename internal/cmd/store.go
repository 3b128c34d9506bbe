package cmd

import (
	"context"

	"github.com/lvl0lvl/slack-mcp-identity-server/internal/config"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/core/store"
)

func openStore(ctx context.Context, cfg config.StoreConfig) (*store.Store, error) {
	db, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}
