package service

import (
	"context"
	"errors"
	"strings"

	"sarnabroker/internal/dto"
	"sarnabroker/internal/infra"
	"sarnabroker/internal/model"
	"sarnabroker/internal/repository"
)

// ContactService maintains the phone/email directory the notifier reads.
type ContactService interface {
	Upsert(ctx context.Context, actor ActingIdentity, req dto.UpsertContactRequest) (*dto.ContactResponse, error)
	Get(ctx context.Context, actor ActingIdentity) (*dto.ContactResponse, error)
}

type contactService struct {
	repo          repository.ContactRepository
	defaultRegion string
}

func NewContactService(repo repository.ContactRepository, defaultRegion string) ContactService {
	return &contactService{repo: repo, defaultRegion: defaultRegion}
}

func (s *contactService) Upsert(ctx context.Context, actor ActingIdentity, req dto.UpsertContactRequest) (*dto.ContactResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, validation("name is required")
	}
	phone, err := infra.NormalizePhone(req.Phone, s.defaultRegion)
	if err != nil {
		if errors.Is(err, infra.ErrInvalidPhone) {
			return nil, validation("phone %q is not a valid number", req.Phone)
		}
		return nil, err
	}

	c := &model.Contact{
		UserID: actor.UserID,
		Role:   actor.Role,
		Name:   name,
		Phone:  phone,
		Email:  req.Email,
	}
	if err := s.repo.Upsert(ctx, c); err != nil {
		return nil, err
	}
	return contactToResponse(c), nil
}

func (s *contactService) Get(ctx context.Context, actor ActingIdentity) (*dto.ContactResponse, error) {
	c, err := s.repo.FindByUserID(ctx, actor.UserID)
	if err != nil {
		return nil, notFound(err, "contact for user %s", actor.UserID)
	}
	return contactToResponse(c), nil
}

func contactToResponse(c *model.Contact) *dto.ContactResponse {
	return &dto.ContactResponse{
		UserID: c.UserID.String(),
		Role:   c.Role,
		Name:   c.Name,
		Phone:  c.Phone,
		Email:  c.Email,
	}
}
