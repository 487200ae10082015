package services

import (
	"fmt"

	"ride-pool-backend/internal/models"
)

// Notification actions understood by the clients
const (
	ActionRideRequest     = "rideRequest"
	ActionRequestAccepted = "requestAccepted"
	ActionRequestDeclined = "requestDeclined"
	ActionRequestRevoked  = "requestRevoked"
	ActionUserKicked      = "userKicked"
	ActionUserRemoved     = "userRemoved"
	ActionRideDeleted     = "rideDeleted"
	ActionRideUpdated     = "rideUpdated"
)

const viewRideBody = "View the ride for more details."

func notification(action, title, body string, actor *models.User, rideID string) models.Notification {
	return models.Notification{
		Title:    title,
		Body:     body,
		Action:   action,
		UserID:   actor.ID,
		UserName: actor.Name,
		RideID:   rideID,
	}
}

func rideRequestNotification(requester *models.User, rideID string) models.Notification {
	return notification(ActionRideRequest,
		fmt.Sprintf("%s Requested to Join Your Ride", requester.Name),
		"Review their request to join your ride.",
		requester, rideID)
}

func requestAcceptedNotification(owner *models.User, rideID string) models.Notification {
	return notification(ActionRequestAccepted,
		fmt.Sprintf("%s Accepted You into Their Ride", owner.Name),
		viewRideBody, owner, rideID)
}

func requestDeclinedNotification(owner *models.User, rideID string) models.Notification {
	return notification(ActionRequestDeclined,
		fmt.Sprintf("%s Declined Your Request to Join Their Ride", owner.Name),
		viewRideBody, owner, rideID)
}

func requestRevokedNotification(requester *models.User, rideID string) models.Notification {
	return notification(ActionRequestRevoked,
		fmt.Sprintf("%s Revoked Their Request to Join Your Ride", requester.Name),
		viewRideBody, requester, rideID)
}

func userKickedNotification(owner *models.User, rideID string) models.Notification {
	return notification(ActionUserKicked,
		fmt.Sprintf("%s Removed You From Their Ride", owner.Name),
		viewRideBody, owner, rideID)
}

func userRemovedNotification(participant *models.User, rideID string) models.Notification {
	return notification(ActionUserRemoved,
		fmt.Sprintf("%s Removed Themselves From Your Ride", participant.Name),
		viewRideBody, participant, rideID)
}

func rideDeletedNotification(owner *models.User, rideID string) models.Notification {
	return notification(ActionRideDeleted,
		fmt.Sprintf("%s Deleted Their Ride", owner.Name),
		"The ride you were part of is no longer available.",
		owner, rideID)
}

func rideUpdatedNotification(owner *models.User, rideID string) models.Notification {
	return notification(ActionRideUpdated,
		fmt.Sprintf("%s Updated Their Ride", owner.Name),
		viewRideBody, owner, rideID)
}
