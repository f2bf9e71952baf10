package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/justsurfingit/nextsteps/internal/models"
	"gorm.io/gorm"
)

const recordSavepoint = "record_write"

// RecordStore hands out per-user scan transactions over job applications.
type RecordStore struct {
	DB *gorm.DB
}

func NewRecordStore(db *gorm.DB) *RecordStore {
	return &RecordStore{DB: db}
}

// Begin opens a transaction scoped to one user. Every lookup sees the
// writes staged earlier in the same transaction.
func (s *RecordStore) Begin(ctx context.Context, userID uint) (*RecordTx, error) {
	tx := s.DB.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("begin transaction: %w", tx.Error)
	}
	return &RecordTx{tx: tx, userID: userID}, nil
}

// RecordTx is one open scan transaction. Not safe for concurrent use.
type RecordTx struct {
	tx     *gorm.DB
	userID uint
	done   bool
}

// FindByThread returns the user's record holding threadRef, or nil.
func (r *RecordTx) FindByThread(threadRef string) (*models.JobApplication, error) {
	return r.first(r.tx.Where("user_id = ? AND email_thread_link = ?", r.userID, threadRef))
}

// FindByCompanyTitle returns the user's record with the exact pair, or nil.
func (r *RecordTx) FindByCompanyTitle(company, title string) (*models.JobApplication, error) {
	return r.first(r.tx.Where("user_id = ? AND company_name = ? AND job_title = ?", r.userID, company, title))
}

func (r *RecordTx) first(q *gorm.DB) (*models.JobApplication, error) {
	var recs []models.JobApplication
	if err := q.Order("id").Limit(1).Find(&recs).Error; err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

// Insert stages a new record owned by the transaction's user. A failed
// insert is rolled back to a savepoint so the transaction stays usable.
func (r *RecordTx) Insert(rec *models.JobApplication) error {
	rec.UserID = r.userID
	return r.guarded(func(tx *gorm.DB) error {
		return tx.Create(rec).Error
	})
}

// Update stages a partial update of rec.
func (r *RecordTx) Update(rec *models.JobApplication, fields map[string]any) error {
	if rec.UserID != r.userID {
		return fmt.Errorf("record %d is not owned by user %d", rec.ID, r.userID)
	}
	return r.guarded(func(tx *gorm.DB) error {
		return tx.Model(rec).Updates(fields).Error
	})
}

func (r *RecordTx) guarded(write func(tx *gorm.DB) error) error {
	if err := r.tx.SavePoint(recordSavepoint).Error; err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	if err := write(r.tx); err != nil {
		if rbErr := r.tx.RollbackTo(recordSavepoint).Error; rbErr != nil {
			return fmt.Errorf("%v (rollback to savepoint: %w)", err, rbErr)
		}
		return err
	}
	return nil
}

// Commit makes the staged writes durable. A failed commit leaves the
// transaction open for Rollback.
func (r *RecordTx) Commit() error {
	if r.done {
		return nil
	}
	if err := r.tx.Commit().Error; err != nil {
		return err
	}
	r.done = true
	return nil
}

// Rollback discards staged writes. It is a no-op after a successful Commit
// or when the driver already ended the transaction.
func (r *RecordTx) Rollback() error {
	if r.done {
		return nil
	}
	r.done = true
	if err := r.tx.Rollback().Error; err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}
