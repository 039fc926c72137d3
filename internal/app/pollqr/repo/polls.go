package repo

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"pollqr.local/internal/app/pollqr"
	"pollqr.local/internal/app/pollqr/cache"
)

var ErrPollAlreadyExists = errors.New("poll already exists")

type Poll struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Private   bool      `json:"is_private"`
	CreatedAt time.Time `json:"created_at"`
}

// PollsRepo reads poll visibility. Poll rows are owned by the voting site;
// Create and SetPrivate exist for local seeding and tests.
type PollsRepo struct {
	db    *pgxpool.Pool
	cache *cache.VisibilityCache
}

func NewPollsRepo(db *pgxpool.Pool, cache *cache.VisibilityCache) *PollsRepo {
	return &PollsRepo{db: db, cache: cache}
}

// Lookup implements pollqr.VisibilityLookup. Cache errors are logged and
// fall through to the database.
func (r *PollsRepo) Lookup(ctx context.Context, pollID string) (pollqr.Visibility, error) {
	if r.cache != nil {
		v, err := r.cache.Get(ctx, pollID)
		if err != nil {
			slog.WarnContext(ctx, "visibility cache get failed", "poll_id", pollID, "err", err)
		}
		switch v {
		case cache.Public:
			return pollqr.Visibility{Exists: true}, nil
		case cache.Private:
			return pollqr.Visibility{Exists: true, Private: true}, nil
		case cache.NotFound:
			return pollqr.Visibility{}, nil
		}
	}

	dbctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	var private bool
	err := r.db.QueryRow(dbctx, `SELECT is_private FROM polls WHERE id = $1`, pollID).Scan(&private)
	if errors.Is(err, pgx.ErrNoRows) {
		r.cacheWrite(ctx, func(c context.Context) error { return r.cache.SetNotFound(c, pollID) })
		return pollqr.Visibility{}, nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "poll visibility query failed", "poll_id", pollID, "err", err)
		return pollqr.Visibility{}, err
	}

	value := cache.Public
	if private {
		value = cache.Private
	}
	r.cacheWrite(ctx, func(c context.Context) error { return r.cache.Set(c, pollID, value) })
	return pollqr.Visibility{Exists: true, Private: private}, nil
}

func (r *PollsRepo) Create(ctx context.Context, p Poll) (Poll, error) {
	dbctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	err := r.db.QueryRow(dbctx,
		`INSERT INTO polls (id, title, is_private) VALUES ($1, $2, $3) RETURNING created_at`,
		p.ID, p.Title, p.Private,
	).Scan(&p.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Poll{}, ErrPollAlreadyExists
		}
		slog.ErrorContext(ctx, "poll insert failed", "poll_id", p.ID, "err", err)
		return Poll{}, err
	}
	// Drop a negative entry left by an earlier lookup.
	r.cacheWrite(ctx, func(c context.Context) error { return r.cache.Delete(c, p.ID) })
	return p, nil
}

// SetPrivate flips visibility and invalidates the cached value.
func (r *PollsRepo) SetPrivate(ctx context.Context, pollID string, private bool) error {
	dbctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	tag, err := r.db.Exec(dbctx, `UPDATE polls SET is_private = $2 WHERE id = $1`, pollID, private)
	if err != nil {
		slog.ErrorContext(ctx, "poll update failed", "poll_id", pollID, "err", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return pollqr.ErrPollNotFound
	}
	r.cacheWrite(ctx, func(c context.Context) error { return r.cache.Delete(c, pollID) })
	return nil
}

func (r *PollsRepo) cacheWrite(ctx context.Context, fn func(context.Context) error) {
	if r.cache == nil {
		return
	}
	cacheCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := fn(cacheCtx); err != nil {
		slog.WarnContext(ctx, "visibility cache write failed", "err", err)
	}
}
