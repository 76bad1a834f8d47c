package services

import "github.com/pkg/errors"

// Sentinel errors returned by the referral engine. Handlers map them to
// HTTP status codes; callers compare with errors.Is.
var (
	ErrInvalidCode        = errors.New("referral code not found")
	ErrSelfReferral       = errors.New("cannot sign up with your own referral code")
	ErrMissingIdentity    = errors.New("click carries neither customer_user_id nor visitor_id")
	ErrNotFound           = errors.New("reward not found or not owned by user")
	ErrAlreadyClaimed     = errors.New("reward already claimed")
	ErrRewardNotClaimable = errors.New("reward type cannot be claimed with a token")
	ErrRewardExpired      = errors.New("reward has expired")
	ErrInvalidToken       = errors.New("claim token not found")
	ErrExpiredToken       = errors.New("claim token has expired")
	ErrCodeExhausted      = errors.New("could not allocate a unique referral code")
)
