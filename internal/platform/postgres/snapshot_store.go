package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/classifier-api/internal/platform/logger"
	"github.com/phrazzld/classifier-api/internal/store"
	"github.com/phrazzld/classifier-api/internal/tagcache"
)

// PostgresSnapshotStore persists tag cache snapshots. Every sync appends
// a new row, so the table doubles as a sync history; Latest serves warm
// starts after a restart.
type PostgresSnapshotStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresSnapshotStore creates a new PostgresSnapshotStore.
func NewPostgresSnapshotStore(db store.DBTX, log *slog.Logger) *PostgresSnapshotStore {
	if log == nil {
		log = slog.Default()
	}
	return &PostgresSnapshotStore{
		db:     db,
		logger: log,
	}
}

// Save appends the snapshot as a new row.
func (s *PostgresSnapshotStore) Save(ctx context.Context, snap *tagcache.Snapshot) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	doc := snap.Document()
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal tag snapshot: %w", err)
	}

	query := `
		INSERT INTO tag_snapshots (version, synced_at, tags_count, document)
		VALUES ($1, $2, $3, $4)
	`

	_, err = s.db.ExecContext(ctx, query,
		doc.Version,
		snap.SyncedAt(),
		doc.TagsCount,
		data,
	)
	if err != nil {
		log.Error("failed to save tag snapshot",
			"tags_count", doc.TagsCount,
			"error", err)
		return MapError(fmt.Errorf("failed to save tag snapshot: %w", err))
	}

	return nil
}

// Latest returns the most recently synced snapshot, rebuilt with its
// lookup indexes. Returns store.ErrSnapshotNotFound when no sync has
// ever completed.
func (s *PostgresSnapshotStore) Latest(ctx context.Context) (*tagcache.Snapshot, error) {
	query := `
		SELECT document
		FROM tag_snapshots
		ORDER BY synced_at DESC, id DESC
		LIMIT 1
	`

	var data []byte
	if err := s.db.QueryRowContext(ctx, query).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrSnapshotNotFound
		}
		return nil, MapError(fmt.Errorf("failed to load latest tag snapshot: %w", err))
	}

	var doc tagcache.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tag snapshot: %w", err)
	}

	snap, err := tagcache.SnapshotFromDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild tag snapshot: %w", err)
	}

	return snap, nil
}
