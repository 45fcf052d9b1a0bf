package identity

import "errors"

var (
	ErrNotFound          = errors.New("identity: not found")
	ErrAlreadyExists     = errors.New("identity: already exists")
	ErrBadCredentials    = errors.New("identity: bad credentials")
	ErrInvalidInput      = errors.New("identity: invalid input")
	ErrAdminQuotaReached = errors.New("identity: administrator quota reached")
)
