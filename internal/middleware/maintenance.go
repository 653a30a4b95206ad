package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"kixikila/internal/logging"
	"kixikila/internal/models"
)

type FlagReader interface {
	Bool(ctx context.Context, key string) (bool, error)
}

// Maintenance rejects writes from non-admins while the maintenance_mode
// setting is on. Reads keep working. The flag is cached for ttl and a
// failing lookup leaves the API open.
type Maintenance struct {
	flags FlagReader
	roles RoleLookup
	key   string
	ttl   time.Duration
	now   func() time.Time

	mu      sync.Mutex
	on      bool
	checked time.Time
}

func NewMaintenance(flags FlagReader, roles RoleLookup, key string, ttl time.Duration) *Maintenance {
	return &Maintenance{flags: flags, roles: roles, key: key, ttl: ttl, now: time.Now}
}

func (m *Maintenance) enabled(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.checked.IsZero() && m.now().Sub(m.checked) < m.ttl {
		return m.on
	}
	on, err := m.flags.Bool(ctx, m.key)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("maintenance flag unavailable")
		return m.on
	}
	m.on, m.checked = on, m.now()
	return on
}

func (m *Maintenance) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions || !m.enabled(r.Context()) {
			next.ServeHTTP(w, r)
			return
		}
		if userID, ok := UserIDFromContext(r.Context()); ok {
			role, err := m.roles.GetRole(r.Context(), userID)
			if err == nil && role == models.RoleAdmin {
				next.ServeHTTP(w, r)
				return
			}
		}
		w.Header().Set("Retry-After", "300")
		writeError(w, http.StatusServiceUnavailable, "maintenance", "the service is under maintenance, try again later")
	})
}
