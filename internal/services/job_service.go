package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/justsurfingit/nextsteps/internal/dtos"
	"github.com/justsurfingit/nextsteps/internal/models"
	"gorm.io/gorm"
)

type JobService struct {
	DB  *gorm.DB
	log *slog.Logger
	now func() time.Time
}

func NewJobService(db *gorm.DB, log *slog.Logger) *JobService {
	return &JobService{
		DB:  db,
		log: log,
		now: time.Now,
	}
}

// ListJobs returns the user's applications, most recent first.
func (s *JobService) ListJobs(ctx context.Context, userID uint) ([]models.JobApplication, error) {
	jobs := []models.JobApplication{}
	err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("date_applied DESC").Order("id DESC").
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list jobs: %v", ErrPersistence, err)
	}
	return jobs, nil
}

// CreateJob adds an application by hand. The company and title pair must
// be new for this user.
func (s *JobService) CreateJob(ctx context.Context, userID uint, req *dtos.JobCreateRequest) (*models.JobApplication, error) {
	db := s.DB.WithContext(ctx)

	taken, err := s.pairTaken(db, userID, req.CompanyName, req.JobTitle, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, fmt.Errorf("%w: Job application for this company and title already exists.", ErrValidation)
	}

	status := models.StatusApplied
	if req.Status != "" {
		st, ok := models.ParseJobStatus(req.Status)
		if !ok {
			return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, req.Status)
		}
		status = st
	}

	applied := s.now().UTC()
	if req.DateApplied != nil {
		applied = req.DateApplied.UTC()
	}

	job := &models.JobApplication{
		UserID:          userID,
		CompanyName:     req.CompanyName,
		JobTitle:        req.JobTitle,
		Status:          status,
		DateApplied:     applied,
		EmailThreadLink: models.StringPtr(models.Deref(req.EmailThreadLink)),
		Notes:           req.Notes,
	}
	if err := db.Create(job).Error; err != nil {
		return nil, fmt.Errorf("%w: create job: %v", ErrPersistence, err)
	}
	s.log.Info("job created", slog.Uint64("job_id", uint64(job.ID)), slog.Uint64("user_id", uint64(userID)))
	return job, nil
}

// UpdateJob applies a partial update to one of the user's applications.
func (s *JobService) UpdateJob(ctx context.Context, userID, jobID uint, req *dtos.JobUpdateRequest) (*models.JobApplication, error) {
	db := s.DB.WithContext(ctx)

	job, err := s.find(db, userID, jobID)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if req.Status != nil && *req.Status != "" {
		st, ok := models.ParseJobStatus(*req.Status)
		if !ok {
			return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, *req.Status)
		}
		fields["status"] = st
	}
	if req.Notes != nil {
		fields["notes"] = *req.Notes
	}
	company, title := job.CompanyName, job.JobTitle
	if req.CompanyName != nil && *req.CompanyName != "" {
		company = *req.CompanyName
		fields["company_name"] = company
	}
	if req.JobTitle != nil && *req.JobTitle != "" {
		title = *req.JobTitle
		fields["job_title"] = title
	}
	if req.EmailThreadLink != nil {
		fields["email_thread_link"] = models.StringPtr(*req.EmailThreadLink)
	}
	if req.DateApplied != nil {
		fields["date_applied"] = req.DateApplied.UTC()
	}

	if company != job.CompanyName || title != job.JobTitle {
		taken, err := s.pairTaken(db, userID, company, title, job.ID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, fmt.Errorf("%w: Job application for this company and title already exists.", ErrValidation)
		}
	}

	if len(fields) > 0 {
		if err := db.Model(job).Updates(fields).Error; err != nil {
			return nil, fmt.Errorf("%w: update job %d: %v", ErrPersistence, jobID, err)
		}
	}
	return s.find(db, userID, jobID)
}

// DeleteJob removes one of the user's applications.
func (s *JobService) DeleteJob(ctx context.Context, userID, jobID uint) error {
	res := s.DB.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.JobApplication{}, jobID)
	if res.Error != nil {
		return fmt.Errorf("%w: delete job %d: %v", ErrPersistence, jobID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: Job not found", ErrNotFound)
	}
	s.log.Info("job deleted", slog.Uint64("job_id", uint64(jobID)), slog.Uint64("user_id", uint64(userID)))
	return nil
}

func (s *JobService) find(db *gorm.DB, userID, jobID uint) (*models.JobApplication, error) {
	var job models.JobApplication
	err := db.Where("user_id = ?", userID).First(&job, jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: Job not found", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load job %d: %v", ErrPersistence, jobID, err)
	}
	return &job, nil
}

func (s *JobService) pairTaken(db *gorm.DB, userID uint, company, title string, exceptID uint) (bool, error) {
	var count int64
	q := db.Model(&models.JobApplication{}).
		Where("user_id = ? AND company_name = ? AND job_title = ?", userID, company, title)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, fmt.Errorf("%w: duplicate check: %v", ErrPersistence, err)
	}
	return count > 0, nil
}
