package services

import (
	"context"
	"errors"

	"ride-pool-backend/internal/models"

	"github.com/rs/zerolog/log"
)

// DeviceTokenStore is the device token persistence used by the services
type DeviceTokenStore interface {
	Register(ctx context.Context, userID, token string) error
	ListByUsers(ctx context.Context, userIDs []string) ([]models.DeviceToken, error)
	Delete(ctx context.Context, token string) error
}

// PushSender delivers a notification to a single device
type PushSender interface {
	Send(ctx context.Context, deviceToken string, n models.Notification) error
}

// Dispatcher fans a notification out to the recipients' devices and live sockets.
// Failures are logged and never returned.
type Dispatcher struct {
	tokens DeviceTokenStore
	push   PushSender
	hub    *WSHub
}

// NewDispatcher creates a dispatcher. push and hub may be nil.
func NewDispatcher(tokens DeviceTokenStore, push PushSender, hub *WSHub) *Dispatcher {
	return &Dispatcher{
		tokens: tokens,
		push:   push,
		hub:    hub,
	}
}

// Notify implements Notifier
func (d *Dispatcher) Notify(ctx context.Context, userIDs []string, n models.Notification) {
	if len(userIDs) == 0 {
		return
	}

	if d.hub != nil {
		for _, userID := range userIDs {
			if !d.hub.IsOnline(userID) {
				continue
			}
			if err := d.hub.SendNotification(userID, n); err != nil {
				log.Warn().Err(err).Str("user_id", userID).Str("action", n.Action).Msg("Failed to send live notification")
			}
		}
	}

	if d.push == nil {
		return
	}

	tokens, err := d.tokens.ListByUsers(ctx, userIDs)
	if err != nil {
		log.Error().Err(err).Str("ride_id", n.RideID).Str("action", n.Action).Msg("Failed to load device tokens")
		return
	}

	sent := 0
	for _, t := range tokens {
		err := d.push.Send(ctx, t.Token, n)
		if err == nil {
			sent++
			continue
		}
		if errors.Is(err, ErrTokenGone) {
			if err := d.tokens.Delete(ctx, t.Token); err != nil {
				log.Error().Err(err).Str("user_id", t.UserID).Msg("Failed to delete stale device token")
			}
			log.Info().Str("user_id", t.UserID).Msg("Stale device token removed")
			continue
		}
		log.Warn().Err(err).Str("user_id", t.UserID).Str("action", n.Action).Msg("Failed to push notification")
	}

	log.Debug().
		Str("ride_id", n.RideID).
		Str("action", n.Action).
		Int("recipients", len(userIDs)).
		Int("devices", len(tokens)).
		Int("sent", sent).
		Msg("Notification dispatched")
}
