package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	IsBanned(ctx context.Context, voterKey string) (bool, error)
	Ban(ctx context.Context, req BanRequest) (*Response, error)
	Unban(ctx context.Context, voterKey string) error
	List(ctx context.Context) ([]Response, error)
}

type BanRequest struct {
	VoterKey string `json:"voterKey"`
	Reason   string `json:"reason"`
}

type Response struct {
	VoterKey  string    `json:"voterKey"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"createdAt"`
}

var (
	ErrInvalidVoter = errors.New("invalid_voter_key")
	ErrNotFound     = errors.New("ban_not_found")
	ErrBanned       = errors.New("voter_banned")
)
