package service

import (
	"context"

	"sarnabroker/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Notifier delivers a text message to a phone number. Implementations must
// not block on delivery; false means the message was not accepted.
type Notifier interface {
	Send(ctx context.Context, phone, message string) bool
}

// StatementQueue schedules the settlement statement (PDF + email) for a
// booking that has just been fully paid.
type StatementQueue interface {
	EnqueueStatement(ctx context.Context, bookingID uuid.UUID) error
}

// notifications resolves a user's phone from the contact directory and hands
// the message to the Notifier. Every failure is logged and swallowed: a
// committed transition is never undone by a notification problem.
type notifications struct {
	sender   Notifier
	contacts repository.ContactRepository
}

func newNotifications(sender Notifier, contacts repository.ContactRepository) *notifications {
	return &notifications{sender: sender, contacts: contacts}
}

func (n *notifications) toUser(ctx context.Context, userID uuid.UUID, event, message string) {
	if n == nil || n.sender == nil || n.contacts == nil {
		return
	}
	c, err := n.contacts.FindByUserID(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Str("event", event).
			Msg("notify: no contact on file, skipping")
		return
	}
	if !n.sender.Send(ctx, c.Phone, message) {
		log.Warn().Str("user_id", userID.String()).Str("event", event).
			Msg("notify: dispatch failed")
	}
}
