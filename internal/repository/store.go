package repository

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Freeeeeet/mentorbook/internal/ledger"
	"github.com/Freeeeeet/mentorbook/internal/repository/base"
)

// Migrations holds the goose SQL migrations.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// Store is the Postgres ledger.Store.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Repos) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, newRepos(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) Read() ledger.Repos {
	return newRepos(s.pool)
}

type repos struct {
	db *base.Repository
}

func newRepos(q base.Querier) *repos {
	return &repos{db: base.NewRepository(q)}
}

func (r *repos) Slots() ledger.SlotRepository                 { return &SlotRepository{r.db} }
func (r *repos) Rules() ledger.RuleRepository                 { return &RuleRepository{r.db} }
func (r *repos) Bookings() ledger.BookingRepository           { return &BookingRepository{r.db} }
func (r *repos) Payments() ledger.PaymentRepository           { return &PaymentRepository{r.db} }
func (r *repos) Subscriptions() ledger.SubscriptionRepository { return &SubscriptionRepository{r.db} }
func (r *repos) Disputes() ledger.DisputeRepository           { return &DisputeRepository{r.db} }
func (r *repos) Payouts() ledger.PayoutRepository             { return &PayoutRepository{r.db} }
func (r *repos) Conversations() ledger.ConversationRepository { return &ConversationRepository{r.db} }
func (r *repos) Events() ledger.ProviderEventRepository       { return &ProviderEventRepository{r.db} }
func (r *repos) Users() ledger.UserRepository                 { return &UserRepository{r.db} }

// conflict maps unique violations to ledger.ErrConflict.
func conflict(op string, err error) error {
	if base.IsUniqueViolation(err) {
		return fmt.Errorf("%s: %w", op, ledger.ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}
