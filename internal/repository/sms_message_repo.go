package repository

import (
	"context"
	"time"

	"sarnabroker/internal/model"

	"gorm.io/gorm"
)

type SMSMessageRepository interface {
	Create(ctx context.Context, m *model.SMSMessage) error
	Update(ctx context.Context, m *model.SMSMessage) error
	// ListPendingRetries returns pending messages whose retry time has passed,
	// oldest schedule first.
	ListPendingRetries(ctx context.Context, now time.Time, limit int) ([]model.SMSMessage, error)
}

type smsMessageRepo struct{ db *gorm.DB }

func NewSMSMessageRepository(db *gorm.DB) SMSMessageRepository {
	return &smsMessageRepo{db: db}
}

func (r *smsMessageRepo) Create(ctx context.Context, m *model.SMSMessage) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *smsMessageRepo) Update(ctx context.Context, m *model.SMSMessage) error {
	return r.db.WithContext(ctx).Save(m).Error
}

func (r *smsMessageRepo) ListPendingRetries(ctx context.Context, now time.Time, limit int) ([]model.SMSMessage, error) {
	var rows []model.SMSMessage
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?", model.SMSPending, now).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
