package core

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/dealersites/internal/model"
)

func slugArg(slug string) any {
	return mock.MatchedBy(func(args []any) bool { return len(args) > 0 && args[0] == slug })
}

func TestDealerService_Create_SkipsTakenSlugs(t *testing.T) {
	db := &mockDB{}
	svc := NewDealerService(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, sqlContaining("FROM dealers WHERE slug"), slugArg("abc-motors")).Return(boolRow(true))
	db.On("QueryRow", ctx, sqlContaining("FROM dealers WHERE slug"), slugArg("abc-motors-pune")).Return(boolRow(true))
	db.On("QueryRow", ctx, sqlContaining("FROM dealers WHERE slug"), slugArg("abc-motors-2")).Return(boolRow(false))
	db.On("Exec", ctx, sqlContaining("INSERT INTO dealers"), mock.Anything).Return(pgconn.CommandTag{}, nil)

	d := &model.Dealer{Name: "ABC Motors", City: "Pune", Email: "owner@abcmotors.in"}
	require.NoError(t, svc.Create(ctx, d))
	assert.Equal(t, "abc-motors-2", d.Slug)
	assert.NotEmpty(t, d.ID)
	db.AssertExpectations(t)
}

func TestDealerService_Create_KeepsGivenSlug(t *testing.T) {
	db := &mockDB{}
	svc := NewDealerService(db)
	ctx := context.Background()
	db.On("Exec", ctx, sqlContaining("INSERT INTO dealers"), mock.Anything).Return(pgconn.CommandTag{}, nil)

	d := &model.Dealer{Name: "ABC Motors", Slug: "abc", Email: "owner@abcmotors.in"}
	require.NoError(t, svc.Create(ctx, d))
	assert.Equal(t, "abc", d.Slug)
	db.AssertNotCalled(t, "QueryRow", mock.Anything, mock.Anything, mock.Anything)
}

func TestDealerService_GetByID_NotFound(t *testing.T) {
	db := &mockDB{}
	svc := NewDealerService(db)
	db.On("QueryRow", mock.Anything, sqlContaining("FROM dealers"), mock.Anything).Return(errRow(pgx.ErrNoRows))

	_, err := svc.GetByID(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDealerService_Create_RetriesSlugTakenConcurrently(t *testing.T) {
	db := &mockDB{}
	svc := NewDealerService(db)
	ctx := context.Background()
	taken := &pgconn.PgError{Code: "23505", ConstraintName: "dealers_slug_key"}

	db.On("QueryRow", ctx, sqlContaining("FROM dealers WHERE slug"), slugArg("abc-motors")).Return(boolRow(false)).Once()
	db.On("Exec", ctx, sqlContaining("INSERT INTO dealers"), slugAt(2, "abc-motors")).Return(pgconn.CommandTag{}, taken).Once()
	db.On("QueryRow", ctx, sqlContaining("FROM dealers WHERE slug"), slugArg("abc-motors")).Return(boolRow(true)).Once()
	db.On("QueryRow", ctx, sqlContaining("FROM dealers WHERE slug"), slugArg("abc-motors-pune")).Return(boolRow(false)).Once()
	db.On("Exec", ctx, sqlContaining("INSERT INTO dealers"), slugAt(2, "abc-motors-pune")).Return(pgconn.CommandTag{}, nil).Once()

	d := &model.Dealer{Name: "ABC Motors", City: "Pune", Email: "owner@abcmotors.in"}
	require.NoError(t, svc.Create(ctx, d))
	assert.Equal(t, "abc-motors-pune", d.Slug)
	db.AssertExpectations(t)
}

func TestDealerService_Create_GivenSlugTakenConflicts(t *testing.T) {
	db := &mockDB{}
	svc := NewDealerService(db)
	ctx := context.Background()
	db.On("Exec", ctx, sqlContaining("INSERT INTO dealers"), mock.Anything).
		Return(pgconn.CommandTag{}, &pgconn.PgError{Code: "23505", ConstraintName: "dealers_slug_key"}).Once()

	err := svc.Create(ctx, &model.Dealer{Name: "ABC Motors", Slug: "abc"})
	assert.ErrorIs(t, err, ErrConflict)
	db.AssertExpectations(t)
}

func TestDealerService_Create_OtherInsertErrorReturned(t *testing.T) {
	db := &mockDB{}
	svc := NewDealerService(db)
	ctx := context.Background()
	db.On("Exec", ctx, sqlContaining("INSERT INTO dealers"), mock.Anything).
		Return(pgconn.CommandTag{}, &pgconn.PgError{Code: "23505", ConstraintName: "dealers_pkey"}).Once()

	err := svc.Create(ctx, &model.Dealer{Name: "ABC Motors", Slug: "abc"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConflict)
}

func slugAt(i int, slug string) any {
	return mock.MatchedBy(func(args []any) bool { return len(args) > i && args[i] == slug })
}
