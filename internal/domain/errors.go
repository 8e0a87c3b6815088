package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrRateLimited         = errors.New("rate limited")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrWSDisconnect        = errors.New("websocket disconnected")
	ErrInvalidTiers        = errors.New("invalid margin tiers")
	ErrUnknownCoin         = errors.New("unknown coin")
	ErrInvalidAddress      = errors.New("invalid account address")
	ErrInvalidSubscription = errors.New("invalid subscription")
	ErrInvalidOrder        = errors.New("invalid order parameters")
	ErrBadRequest          = errors.New("bad request")
)
