package services

import (
	"context"
	"errors"
	"fmt"

	"ride-pool-backend/internal/models"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

// ErrTokenGone is returned when APNs reports a device token as no longer valid
var ErrTokenGone = errors.New("device token is no longer valid")

// APNsConfig holds the token-based credentials for Apple Push Notifications
type APNsConfig struct {
	KeyPath    string
	KeyID      string
	TeamID     string
	Topic      string
	Production bool
}

// apnsPusher is the part of *apns2.Client used here
type apnsPusher interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

// APNsSender delivers notifications to iOS devices
type APNsSender struct {
	client apnsPusher
	topic  string
}

// NewAPNsSender creates a sender authenticated with a .p8 signing key
func NewAPNsSender(cfg APNsConfig) (*APNsSender, error) {
	authKey, err := token.AuthKeyFromFile(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return &APNsSender{client: client, topic: cfg.Topic}, nil
}

// Send pushes n to a single device
func (s *APNsSender) Send(ctx context.Context, deviceToken string, n models.Notification) error {
	p := payload.NewPayload().
		AlertTitle(n.Title).
		AlertBody(n.Body).
		Sound("default").
		Custom("action", n.Action).
		Custom("userId", n.UserID).
		Custom("userName", n.UserName).
		Custom("rideId", n.RideID)

	res, err := s.client.PushWithContext(ctx, &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       s.topic,
		Payload:     p,
	})
	if err != nil {
		return fmt.Errorf("failed to push notification: %w", err)
	}
	if res.Sent() {
		return nil
	}

	switch res.Reason {
	case apns2.ReasonBadDeviceToken, apns2.ReasonUnregistered, apns2.ReasonDeviceTokenNotForTopic:
		return fmt.Errorf("apns rejected token (%s): %w", res.Reason, ErrTokenGone)
	}
	return fmt.Errorf("apns rejected notification: %d %s", res.StatusCode, res.Reason)
}
