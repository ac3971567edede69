package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/NolanKnievel/bucket-list-sub001/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

// Postgres is a Store backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// PoolConfig mirrors the knobs exposed through configuration.
type PoolConfig struct {
	URL      string
	MinConns int32
	MaxConns int32
}

// Connect creates the pool, pings it and applies the schema.
func Connect(ctx context.Context, cfg PoolConfig) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Postgres{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	log.Info().Str("module", "store.pg").Int32("max_conns", poolCfg.MaxConns).Msg("connected")
	return s, nil
}

// Migrate applies the idempotent schema.
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Postgres) Close() { s.pool.Close() }

func (s *Postgres) CreateGroup(ctx context.Context, g *domain.Group, creator *domain.Member) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var createdBy *string
	if creator != nil {
		id := string(creator.ID)
		createdBy = &id
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO groups (id, name, description, deadline, created_by, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(g.ID), g.Name, g.Description, g.Deadline, createdBy, g.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	if creator != nil {
		if err := insertMember(ctx, tx, creator); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Postgres) GetGroup(ctx context.Context, id domain.GroupID) (*domain.Group, error) {
	var (
		g         domain.Group
		createdBy *string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id::text, name, description, deadline, created_by::text, created_at FROM groups WHERE id = $1`,
		string(id),
	).Scan(&g.ID, &g.Name, &g.Description, &g.Deadline, &createdBy, &g.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select group: %w", err)
	}
	if createdBy != nil {
		g.CreatedBy = domain.MemberID(*createdBy)
	}
	return &g, nil
}

func (s *Postgres) AddMember(ctx context.Context, m *domain.Member) error {
	if _, err := s.GetGroup(ctx, m.GroupID); err != nil {
		return err
	}
	return insertMember(ctx, s.pool, m)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertMember(ctx context.Context, db execer, m *domain.Member) error {
	_, err := db.Exec(ctx,
		`INSERT INTO members (id, group_id, name, joined_at) VALUES ($1, $2, $3, $4)`,
		string(m.ID), string(m.GroupID), m.Name, m.JoinedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrNameTaken
	}
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

func (s *Postgres) GetMember(ctx context.Context, groupID domain.GroupID, id domain.MemberID) (*domain.Member, error) {
	var m domain.Member
	err := s.pool.QueryRow(ctx,
		`SELECT id::text, group_id::text, name, joined_at FROM members WHERE group_id = $1 AND id = $2`,
		string(groupID), string(id),
	).Scan(&m.ID, &m.GroupID, &m.Name, &m.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select member: %w", err)
	}
	return &m, nil
}

func (s *Postgres) ListMembers(ctx context.Context, groupID domain.GroupID) ([]domain.Member, error) {
	if _, err := s.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, group_id::text, name, joined_at FROM members WHERE group_id = $1 ORDER BY joined_at`,
		string(groupID),
	)
	if err != nil {
		return nil, fmt.Errorf("select members: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Member, error) {
		var m domain.Member
		err := row.Scan(&m.ID, &m.GroupID, &m.Name, &m.JoinedAt)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan members: %w", err)
	}
	return out, nil
}

func (s *Postgres) CreateItem(ctx context.Context, it *domain.Item) error {
	if _, err := s.GetMember(ctx, it.GroupID, it.MemberID); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO items (id, group_id, member_id, title, description, completed, completed_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(it.ID), string(it.GroupID), string(it.MemberID), it.Title, it.Description, it.Completed, it.CompletedAt, it.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrItemExists
	}
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

const itemColumns = `id::text, group_id::text, member_id::text, title, description, completed, completed_at, created_at`

func scanItem(row pgx.Row) (domain.Item, error) {
	var it domain.Item
	err := row.Scan(&it.ID, &it.GroupID, &it.MemberID, &it.Title, &it.Description, &it.Completed, &it.CompletedAt, &it.CreatedAt)
	return it, err
}

func (s *Postgres) ListItems(ctx context.Context, groupID domain.GroupID) ([]domain.Item, error) {
	if _, err := s.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+itemColumns+` FROM items WHERE group_id = $1 ORDER BY created_at`,
		string(groupID),
	)
	if err != nil {
		return nil, fmt.Errorf("select items: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Item, error) {
		return scanItem(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan items: %w", err)
	}
	return out, nil
}

func (s *Postgres) SetItemCompleted(ctx context.Context, groupID domain.GroupID, id domain.ItemID, completed bool, at time.Time) (*domain.Item, error) {
	var completedAt *time.Time
	if completed {
		completedAt = &at
	}
	it, err := scanItem(s.pool.QueryRow(ctx,
		`UPDATE items SET completed = $3, completed_at = $4 WHERE group_id = $1 AND id = $2 RETURNING `+itemColumns,
		string(groupID), string(id), completed, completedAt,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}
	return &it, nil
}
