package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/acuvera/internal/common"
	"github.com/joseph-ayodele/acuvera/internal/entity"
)

// UserIDHeader carries the caller's user id for HeaderAuthenticator.
const UserIDHeader = "X-User-ID"

// Authenticator resolves the caller of a request.
type Authenticator interface {
	Authenticate(r *http.Request) (*entity.User, error)
}

// UserLookup is the part of the user repository authentication needs.
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*entity.User, error)
}

// HeaderAuthenticator trusts the X-User-ID header. It is meant for local
// development and for deployments behind an authenticating proxy.
type HeaderAuthenticator struct {
	users UserLookup
}

func NewHeaderAuthenticator(users UserLookup) *HeaderAuthenticator {
	return &HeaderAuthenticator{users: users}
}

func (a *HeaderAuthenticator) Authenticate(r *http.Request) (*entity.User, error) {
	raw := strings.TrimSpace(r.Header.Get(UserIDHeader))
	if raw == "" {
		return nil, common.Unauthorizedf("missing %s header", UserIDHeader)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, common.Unauthorizedf("%s must be a positive integer", UserIDHeader)
	}
	u, err := a.users.GetByID(r.Context(), id)
	if errors.Is(err, common.ErrNotFound) {
		return nil, common.Unauthorizedf("unknown user %d", id)
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, common.Unauthorizedf("user %d is inactive", id)
	}
	return u, nil
}
