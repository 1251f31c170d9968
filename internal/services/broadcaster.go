package services

import "splitsteal-backend/internal/models"

type Broadcaster interface {
	BroadcastGameUpdate(game *models.Game)
}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastGameUpdate(*models.Game) {}
