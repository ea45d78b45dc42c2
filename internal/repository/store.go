package repository

import (
	"context"

	"gorm.io/gorm"
)

// Store bundles the repositories over one gorm handle. Inside Transaction the
// handle is the transaction, so every write made through the Store commits or
// rolls back together.
type Store struct {
	db           *gorm.DB
	Projects     *ProjectRepository
	Milestones   *MilestoneRepository
	Donations    *DonationRepository
	Transactions *TransactionRepository
	Wallets      *WalletRepository
	Events       *EventRepository
	Audit        *AuditRepository
	Cursors      *CursorRepository
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:           db,
		Projects:     NewProjectRepository(db),
		Milestones:   NewMilestoneRepository(db),
		Donations:    NewDonationRepository(db),
		Transactions: NewTransactionRepository(db),
		Wallets:      NewWalletRepository(db),
		Events:       NewEventRepository(db),
		Audit:        NewAuditRepository(db),
		Cursors:      NewCursorRepository(db),
	}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}
