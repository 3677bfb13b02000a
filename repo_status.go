package auth

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
)

// StatusEntries is the append-oriented store for the status log. Entries
// are ordered by (created_at DESC, id DESC) so same-timestamp rows still
// have a deterministic most-recent winner.
type StatusEntries interface {
	Find(ctx context.Context, id int64) (*StatusEntry, error)
	Create(ctx context.Context, entry *StatusEntry) (*StatusEntry, error)
	Update(ctx context.Context, entry *StatusEntry) (*StatusEntry, error)

	FindByRef(ctx context.Context, ref ForeignRef) ([]*StatusEntry, error)
	FindLatestByRef(ctx context.Context, ref ForeignRef) (*StatusEntry, error)
	FindPrevious(ctx context.Context, entry *StatusEntry) (*StatusEntry, error)
}

type statusEntries struct {
	db bun.IDB
}

var _ StatusEntries = (*statusEntries)(nil)

func NewStatusRepository(db bun.IDB) StatusEntries {
	return &statusEntries{db: db}
}

func (s *statusEntries) Find(ctx context.Context, id int64) (*StatusEntry, error) {
	record := &StatusEntry{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return record, nil
}

func (s *statusEntries) Create(ctx context.Context, entry *StatusEntry) (*StatusEntry, error) {
	if _, err := s.db.NewInsert().Model(entry).Exec(ctx); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *statusEntries) Update(ctx context.Context, entry *StatusEntry) (*StatusEntry, error) {
	if _, err := s.db.NewUpdate().Model(entry).WherePK().Exec(ctx); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *statusEntries) FindByRef(ctx context.Context, ref ForeignRef) ([]*StatusEntry, error) {
	var records []*StatusEntry
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.fkey = ?", ref.Kind).
		Where("?TableAlias.fid = ?", ref.ID).
		OrderExpr("?TableAlias.created_at DESC, ?TableAlias.id DESC").
		Scan(ctx)

	if err != nil {
		return nil, err
	}

	return records, nil
}

func (s *statusEntries) FindLatestByRef(ctx context.Context, ref ForeignRef) (*StatusEntry, error) {
	record := &StatusEntry{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.fkey = ?", ref.Kind).
		Where("?TableAlias.fid = ?", ref.ID).
		OrderExpr("?TableAlias.created_at DESC, ?TableAlias.id DESC").
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return record, nil
}

// FindPrevious walks one step back in the log for the same target.
// A persisted entry excludes itself using the (created_at, id) composite;
// an unsaved entry falls back to its timestamp bound alone.
func (s *statusEntries) FindPrevious(ctx context.Context, entry *StatusEntry) (*StatusEntry, error) {
	record := &StatusEntry{}
	q := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.fkey = ?", entry.FKey).
		Where("?TableAlias.fid = ?", entry.FID)

	if entry.ID == 0 {
		q = q.Where("?TableAlias.created_at <= ?", entry.CreatedAt)
	} else {
		q = q.Where(
			"(?TableAlias.created_at < ?) OR (?TableAlias.created_at = ? AND ?TableAlias.id < ?)",
			entry.CreatedAt, entry.CreatedAt, entry.ID,
		)
	}

	err := q.OrderExpr("?TableAlias.created_at DESC, ?TableAlias.id DESC").
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return record, nil
}
