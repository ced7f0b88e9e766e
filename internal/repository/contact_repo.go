package repository

import (
	"context"

	"sarnabroker/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ContactRepository interface {
	Upsert(ctx context.Context, c *model.Contact) error
	FindByUserID(ctx context.Context, userID uuid.UUID) (*model.Contact, error)
}

type contactRepo struct{ db *gorm.DB }

func NewContactRepository(db *gorm.DB) ContactRepository { return &contactRepo{db: db} }

func (r *contactRepo) Upsert(ctx context.Context, c *model.Contact) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role", "name", "phone", "email", "updated_at"}),
	}).Create(c).Error
}

func (r *contactRepo) FindByUserID(ctx context.Context, userID uuid.UUID) (*model.Contact, error) {
	var c model.Contact
	err := r.db.WithContext(ctx).First(&c, "user_id = ?", userID).Error
	return &c, err
}
