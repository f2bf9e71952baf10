package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/justsurfingit/nextsteps/internal/metrics"
	"github.com/justsurfingit/nextsteps/internal/models"
	"gorm.io/gorm"
)

type UserService struct {
	DB      *gorm.DB
	Metrics metrics.ScanRecorder
	log     *slog.Logger
}

func NewUserService(db *gorm.DB, rec metrics.ScanRecorder, log *slog.Logger) *UserService {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &UserService{DB: db, Metrics: rec, log: log}
}

// UpsertFromGoogle creates the user on first login and refreshes the
// profile fields afterwards. The ignore list is never touched here.
func (s *UserService) UpsertFromGoogle(ctx context.Context, email, name, picture string) (*models.User, error) {
	if email == "" {
		return nil, fmt.Errorf("%w: Google profile has no email", ErrValidation)
	}
	db := s.DB.WithContext(ctx)

	var user models.User
	err := db.Where(models.User{Email: email}).
		Attrs(models.User{Name: name, Picture: picture}).
		FirstOrCreate(&user).Error
	if err != nil {
		return nil, fmt.Errorf("%w: upsert user: %v", ErrPersistence, err)
	}

	updates := map[string]any{}
	if name != "" && name != user.Name {
		updates["name"] = name
	}
	if picture != "" && picture != user.Picture {
		updates["picture"] = picture
	}
	if len(updates) > 0 {
		if err := db.Model(&user).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("%w: refresh profile: %v", ErrPersistence, err)
		}
	}
	return &user, nil
}

// ByEmail resolves an authenticated mailbox address to its user.
func (s *UserService) ByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: User not found", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load user: %v", ErrPersistence, err)
	}
	return &user, nil
}

// UpdateIgnoreList stores a new ignore list and deletes every record whose
// sender matches it, in one transaction. It returns the number of records
// pruned.
func (s *UserService) UpdateIgnoreList(ctx context.Context, user *models.User, raw string) (*models.User, int64, error) {
	ignoreList := models.ParseIgnoreList(raw)
	var pruned int64

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(user).Update("ignored_emails", raw).Error; err != nil {
			return fmt.Errorf("save ignore list: %w", err)
		}
		if len(ignoreList) == 0 {
			return nil
		}

		var candidates []models.JobApplication
		err := tx.Select("id", "sender_email").
			Where("user_id = ? AND sender_email IS NOT NULL", user.ID).
			Find(&candidates).Error
		if err != nil {
			return fmt.Errorf("load senders: %w", err)
		}

		var ids []uint
		for _, job := range candidates {
			if MatchesIgnoreList(ignoreList, models.Deref(job.SenderEmail)) {
				ids = append(ids, job.ID)
			}
		}
		if len(ids) == 0 {
			return nil
		}

		res := tx.Where("user_id = ? AND id IN ?", user.ID, ids).Delete(&models.JobApplication{})
		if res.Error != nil {
			return fmt.Errorf("prune jobs: %w", res.Error)
		}
		pruned = res.RowsAffected
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	user.IgnoredEmails = raw
	if pruned > 0 {
		s.log.Info("pruned jobs from ignored senders", slog.String("user", user.Email), slog.Int64("count", pruned))
		s.Metrics.RecordPruned(int(pruned))
	}
	return user, pruned, nil
}
