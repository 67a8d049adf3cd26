// Package credential persists the access/refresh tokens of every role the
// client can be logged in as.
package credential

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gocomet/ride-realtime/internal/domain/identity"
	"github.com/gocomet/ride-realtime/pkg/cache"
)

// ErrNotFound is returned by Get for an absent key
var ErrNotFound = errors.New("credential not found")

// Store is the persistent key/value store credentials live in
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Key layout
const (
	suffixToken   = "_token"
	suffixRefresh = "_refresh_token"
	suffixID      = "_id"

	// KeyActiveRole names the role whose session the client runs.
	KeyActiveRole = "active_role"
)

// TokenKey is the key of role's access token
func TokenKey(role identity.Role) string { return string(role) + suffixToken }

// RefreshKey is the key of role's refresh token
func RefreshKey(role identity.Role) string { return string(role) + suffixRefresh }

// IDKey is the key of role's user id
func IDKey(role identity.Role) string { return string(role) + suffixID }

// Credentials are the stored values of one role
type Credentials struct {
	ID           string
	Token        string
	RefreshToken string
}

// Save stores creds for role and makes it the active role
func Save(ctx context.Context, s Store, role identity.Role, creds Credentials) error {
	if !role.IsValid() {
		return fmt.Errorf("cannot store credentials for role %q", role)
	}
	pairs := [][2]string{
		{IDKey(role), creds.ID},
		{TokenKey(role), creds.Token},
		{RefreshKey(role), creds.RefreshToken},
		{KeyActiveRole, string(role)},
	}
	for _, p := range pairs {
		if err := s.Set(ctx, p[0], p[1]); err != nil {
			return fmt.Errorf("failed to store %s: %w", p[0], err)
		}
	}
	return nil
}

// Load reads the credentials of role. Missing keys yield empty fields.
func Load(ctx context.Context, s Store, role identity.Role) (Credentials, error) {
	var creds Credentials
	fields := []struct {
		key string
		dst *string
	}{
		{IDKey(role), &creds.ID},
		{TokenKey(role), &creds.Token},
		{RefreshKey(role), &creds.RefreshToken},
	}
	for _, f := range fields {
		v, err := s.Get(ctx, f.key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return Credentials{}, fmt.Errorf("failed to read %s: %w", f.key, err)
		}
		*f.dst = v
	}
	return creds, nil
}

// Rotate replaces the token pair of role in place
func Rotate(ctx context.Context, s Store, role identity.Role, token, refreshToken string) error {
	if err := s.Set(ctx, TokenKey(role), token); err != nil {
		return fmt.Errorf("failed to store rotated token: %w", err)
	}
	if refreshToken == "" {
		return nil
	}
	if err := s.Set(ctx, RefreshKey(role), refreshToken); err != nil {
		return fmt.Errorf("failed to store rotated refresh token: %w", err)
	}
	return nil
}

// Logout removes every credential of role
func Logout(ctx context.Context, s Store, role identity.Role) error {
	var errs []error
	for _, k := range []string{TokenKey(role), RefreshKey(role), IDKey(role)} {
		if err := s.Remove(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	active, err := s.Get(ctx, KeyActiveRole)
	if err == nil && identity.ParseRole(active) == role {
		if err := s.Remove(ctx, KeyActiveRole); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogoutAll removes the credentials of every role
func LogoutAll(ctx context.Context, s Store) error {
	var errs []error
	for _, role := range identity.AllRoles {
		if err := Logout(ctx, s, role); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.Remove(ctx, KeyActiveRole); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LoggedIn lists the roles holding an access token
func LoggedIn(ctx context.Context, s Store) ([]identity.Role, error) {
	var roles []identity.Role
	for _, role := range identity.AllRoles {
		v, err := s.Get(ctx, TokenKey(role))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if v != "" {
			roles = append(roles, role)
		}
	}
	return roles, nil
}

// Binding assembles the identity binding of the active role
func Binding(ctx context.Context, s Store) (identity.Binding, error) {
	loggedIn, err := LoggedIn(ctx, s)
	if err != nil {
		return identity.Binding{}, err
	}
	b := identity.Binding{LoggedIn: loggedIn}

	active, err := s.Get(ctx, KeyActiveRole)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return identity.Binding{}, err
	}
	b.Role = identity.ParseRole(active)
	if b.Role == identity.RoleNone && len(loggedIn) == 1 {
		b.Role = loggedIn[0]
	}
	if b.Role == identity.RoleNone {
		return b, nil
	}

	creds, err := Load(ctx, s, b.Role)
	if err != nil {
		return identity.Binding{}, err
	}
	b.ID = creds.ID
	b.AuthToken = creds.Token
	b.RefreshToken = creds.RefreshToken
	if b.ID == "" && b.AuthToken != "" {
		if claims, err := ParseClaims(b.AuthToken); err == nil {
			b.ID = claims.Subject
		}
	}
	return b, nil
}

// MemoryStore keeps credentials in process memory
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get implements Store
func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set implements Store
func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// Remove implements Store
func (m *MemoryStore) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// RedisStore keeps credentials in Redis under a namespace
type RedisStore struct {
	kv *cache.KV
}

// NewRedisStore creates a store over kv
func NewRedisStore(kv *cache.KV) *RedisStore {
	return &RedisStore{kv: kv}
}

// Get implements Store
func (r *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, ok, err := r.kv.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set implements Store
func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	return r.kv.Set(ctx, key, value)
}

// Remove implements Store
func (r *RedisStore) Remove(ctx context.Context, key string) error {
	return r.kv.Delete(ctx, key)
}
