package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/PavaniPriya06/CLOUTH-AG/internal/domain/auth"
	"github.com/PavaniPriya06/CLOUTH-AG/internal/domain/user"
)

// APIKeyHeader carries the client's API key.
const APIKeyHeader = "api_key"

// ScopeOperator marks keys allowed to act on any order.
const ScopeOperator = "operator"

// Identity is the authenticated caller resolved from an API key.
type Identity struct {
	User *user.User
	Key  *auth.APIKeyInfo
}

// Operator reports whether the caller may act on any order.
func (id *Identity) Operator() bool {
	return id.Key.HasScope(ScopeOperator) || id.User.Operator()
}

type identityKey struct{}

// IdentityFromContext returns the authenticated caller, if any.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok
}

// Security authenticates API requests via HMAC-SHA256 hashed API keys
// and resolves the acting user.
type Security struct {
	apikeys auth.Repository
	users   user.Repository
	pepper  []byte
}

// NewSecurity creates a Security with the given repositories and HMAC
// pepper.
func NewSecurity(apikeys auth.Repository, users user.Repository, pepper []byte) *Security {
	return &Security{
		apikeys: apikeys,
		users:   users,
		pepper:  pepper,
	}
}

// Authenticate wraps next, rejecting requests that do not carry a valid
// API key. On success the resolved Identity is placed in the request
// context.
func (s *Security) Authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(APIKeyHeader)
		if key == "" {
			respondError(w, http.StatusUnauthorized, "api key required")
			return
		}

		mac := hmac.New(sha256.New, s.pepper)
		mac.Write([]byte(key))
		hash := mac.Sum(nil)

		info, err := s.apikeys.FindByHash(r.Context(), hex.EncodeToString(hash))
		if err != nil {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		storedBytes, err := hex.DecodeString(info.KeyHash)
		if err != nil || subtle.ConstantTimeCompare(hash, storedBytes) != 1 {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		u, err := s.users.GetByID(r.Context(), info.UserID)
		if err != nil {
			zctx.From(r.Context()).Warn("resolve api key user",
				zap.String("key", info.ID), zap.Error(err))
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		ctx := context.WithValue(r.Context(), identityKey{}, &Identity{User: u, Key: info})
		next(w, r.WithContext(ctx))
	}
}

// RequireOperator wraps next, rejecting authenticated callers without
// operator rights. It must run inside Authenticate.
func (s *Security) RequireOperator(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok || !id.Operator() {
			respondError(w, http.StatusForbidden, "operator access required")
			return
		}
		next(w, r)
	}
}
