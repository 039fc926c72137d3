package events

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sink persists a batch of events.
type Sink interface {
	Write(ctx context.Context, batch []IssuedEvent) error
}

type PGSink struct {
	db *pgxpool.Pool
}

func NewPGSink(db *pgxpool.Pool) *PGSink {
	return &PGSink{db: db}
}

// Write inserts the batch in one transaction using COPY.
func (s *PGSink) Write(ctx context.Context, batch []IssuedEvent) error {
	if len(batch) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"qr_events"},
			[]string{"poll_id", "host", "is_private", "regenerated", "link_expires_at", "issued_at"},
			pgx.CopyFromSlice(len(batch), func(i int) ([]any, error) {
				e := batch[i]
				id, err := uuid.Parse(e.PollID)
				if err != nil {
					return nil, fmt.Errorf("qr event %d: %w", i, err)
				}
				return []any{pgtype.UUID{Bytes: id, Valid: true}, e.Host, e.Private, e.Regenerated, e.LinkExpiresAt, e.IssuedAt}, nil
			}),
		)
		return err
	})
}
