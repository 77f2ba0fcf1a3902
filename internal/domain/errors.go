package domain

import "errors"

var (
	ErrInvalidEnvelope = errors.New("invalid event envelope")
	ErrBrokerClosed    = errors.New("broker subscription closed")
	ErrHubStopped      = errors.New("hub stopped")
)
