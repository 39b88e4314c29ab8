package apikey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/paperstack/paperstack/pkg/authz"
	"github.com/paperstack/paperstack/pkg/identity"
	"github.com/paperstack/paperstack/pkg/observability"
	"github.com/paperstack/paperstack/pkg/permcache"
	"github.com/paperstack/paperstack/pkg/permission"
	"github.com/paperstack/paperstack/pkg/store"
)

// createAttempts bounds the regenerate-on-collision loop. Hash collisions
// are vanishingly rare; exhausting the retries is an integrity anomaly.
const createAttempts = 5

// errUnverified marks a candidate that failed verification. It is internal;
// callers of Verify see "no identity", not an error.
var errUnverified = errors.New("api key not verified")

// CreateRequest describes a key to mint.
type CreateRequest struct {
	OwnerUUID uuid.UUID
	Name      string
	Comments  string
	ExpiresAt *time.Time
}

// CreatedKey carries the one and only exposure of the plaintext key. Only
// the salted hash is persisted; the key cannot be recovered later.
type CreatedKey struct {
	Key    string
	Record *store.APIKey
}

// Service mints and verifies API keys. Key management is gated by the
// authorization engine: a caller manages their own keys freely, and needs
// MANAGE_USERS to touch anyone else's. Successful verifications are cached
// so repeated requests bearing the same key skip the hash work.
type Service struct {
	engine    *authz.Engine
	keys      store.APIKeyStore
	users     store.UserStore
	generator *Generator
	verified  *permcache.LoadingCache[string, identity.UserRef]
	logger    *observability.Logger
	now       func() time.Time
}

func NewService(engine *authz.Engine, keys store.APIKeyStore, users store.UserStore, cacheCfg permcache.Config, metrics *permcache.Metrics, logger *observability.Logger) *Service {
	s := &Service{
		engine:    engine,
		keys:      keys,
		users:     users,
		generator: NewGenerator(),
		logger:    logger,
		now:       time.Now,
	}
	s.verified = permcache.NewLoadingCache("apikey_identity", cacheCfg, s.lookup, metrics)
	return s
}

// Create mints a key for the requested owner. On a stored-hash collision the
// key is regenerated; exhausting the bounded retries fails the request.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*CreatedKey, error) {
	return authz.SecureResult(ctx, s.engine, permission.AppPermissionManageAPIKeys, func(ctx context.Context) (*CreatedKey, error) {
		if err := s.checkOwner(ctx, req.OwnerUUID); err != nil {
			return nil, err
		}

		for attempt := 0; attempt < createAttempts; attempt++ {
			key, err := s.generator.GenerateKey()
			if err != nil {
				return nil, err
			}
			salt, err := s.generator.GenerateSalt()
			if err != nil {
				return nil, err
			}

			record := &store.APIKey{
				OwnerUUID: req.OwnerUUID,
				Name:      req.Name,
				Prefix:    ExtractPrefix(key),
				Hash:      HashKey(salt, key),
				Salt:      salt,
				Enabled:   true,
				Comments:  req.Comments,
				ExpiresAt: req.ExpiresAt,
			}
			err = s.keys.CreateAPIKey(ctx, record)
			if errors.Is(err, store.ErrDuplicateKey) {
				if s.logger != nil {
					s.logger.WithField("attempt", attempt+1).Warn("api key hash collision, regenerating")
				}
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("persisting api key: %w", err)
			}
			return &CreatedKey{Key: key, Record: record}, nil
		}
		return nil, authz.NewIntegrityError("exhausted %d attempts to mint a unique api key", createAttempts)
	})
}

// Verify resolves the user a candidate key authenticates as. A candidate
// that is malformed, unknown, expired or disabled yields ok=false with no
// error; more than one stored row matching the hash is an integrity error.
func (s *Service) Verify(ctx context.Context, candidate string) (identity.UserRef, bool, error) {
	var ref identity.UserRef
	err := s.engine.Secure(ctx, permission.AppPermissionVerifyAPIKey, func(ctx context.Context) error {
		if !IsWellFormed(candidate) {
			return errUnverified
		}
		found, err := s.verified.Get(ctx, candidate)
		if err != nil {
			return err
		}
		ref = found
		return nil
	})
	if errors.Is(err, errUnverified) {
		return identity.UserRef{}, false, nil
	}
	if err != nil {
		return identity.UserRef{}, false, err
	}
	return ref, true, nil
}

// lookup is the cache loader: prefix lookup, then a salted hash compare
// against every returned row. Only a unique match verifies.
func (s *Service) lookup(ctx context.Context, candidate string) (identity.UserRef, error) {
	rows, err := s.keys.FindAPIKeysByPrefix(ctx, ExtractPrefix(candidate))
	if err != nil {
		return identity.UserRef{}, fmt.Errorf("looking up api keys: %w", err)
	}

	now := s.now()
	var matches []*store.APIKey
	for _, row := range rows {
		if row.Expired(now) {
			continue
		}
		if HashKey(row.Salt, candidate) == row.Hash {
			matches = append(matches, row)
		}
	}
	switch len(matches) {
	case 0:
		return identity.UserRef{}, errUnverified
	case 1:
	default:
		return identity.UserRef{}, authz.NewIntegrityError(
			"%d api key rows share one hash for prefix %s", len(matches), ExtractPrefix(candidate))
	}

	owner, err := s.users.GetByUUID(ctx, matches[0].OwnerUUID)
	if err != nil {
		if errors.Is(err, authz.ErrNotFound) {
			return identity.UserRef{}, errUnverified
		}
		return identity.UserRef{}, err
	}
	if !owner.Enabled {
		return identity.UserRef{}, errUnverified
	}
	return owner.Ref(), nil
}

// Fetch returns one key record by id, gated on ownership.
func (s *Service) Fetch(ctx context.Context, id int64) (*store.APIKey, error) {
	return authz.SecureResult(ctx, s.engine, permission.AppPermissionManageAPIKeys, func(ctx context.Context) (*store.APIKey, error) {
		key, err := s.keys.FetchAPIKey(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := s.checkOwner(ctx, key.OwnerUUID); err != nil {
			return nil, err
		}
		return key, nil
	})
}

// Update persists mutable fields of a key record and drops any cached
// verification for its prefix.
func (s *Service) Update(ctx context.Context, key *store.APIKey) error {
	return s.engine.Secure(ctx, permission.AppPermissionManageAPIKeys, func(ctx context.Context) error {
		existing, err := s.keys.FetchAPIKey(ctx, key.ID)
		if err != nil {
			return err
		}
		if err := s.checkOwner(ctx, existing.OwnerUUID); err != nil {
			return err
		}
		if err := s.keys.UpdateAPIKey(ctx, key); err != nil {
			return err
		}
		s.invalidatePrefix(existing.Prefix)
		return nil
	})
}

// Delete removes a key row permanently.
func (s *Service) Delete(ctx context.Context, id int64) (bool, error) {
	return authz.SecureResult(ctx, s.engine, permission.AppPermissionManageAPIKeys, func(ctx context.Context) (bool, error) {
		existing, err := s.keys.FetchAPIKey(ctx, id)
		if err != nil {
			if errors.Is(err, authz.ErrNotFound) {
				return false, nil
			}
			return false, err
		}
		if err := s.checkOwner(ctx, existing.OwnerUUID); err != nil {
			return false, err
		}
		deleted, err := s.keys.DeleteAPIKey(ctx, id)
		if err != nil {
			return false, err
		}
		s.invalidatePrefix(existing.Prefix)
		return deleted, nil
	})
}

// Find lists key records. Without MANAGE_USERS the listing is forced to the
// caller's own keys regardless of the requested criteria.
func (s *Service) Find(ctx context.Context, criteria store.FindAPIKeysCriteria) ([]*store.APIKey, error) {
	return authz.SecureResult(ctx, s.engine, permission.AppPermissionManageAPIKeys, func(ctx context.Context) ([]*store.APIKey, error) {
		manager, err := s.engine.HasAppPermission(ctx, permission.AppPermissionManageUsers)
		if err != nil {
			return nil, err
		}
		if !manager {
			id, err := s.engine.CurrentIdentity(ctx)
			if err != nil {
				return nil, err
			}
			owner := id.Ref.UUID
			criteria.OwnerUUID = &owner
		}
		return s.keys.FindAPIKeys(ctx, criteria)
	})
}

// DisableExpired disables every enabled key whose expiry has passed. Run
// from the background sweeper under the processing identity.
func (s *Service) DisableExpired(ctx context.Context) (int64, error) {
	var count int64
	err := s.engine.AsProcessingUser(ctx, func(ctx context.Context) error {
		var err error
		count, err = s.keys.DisableExpiredAPIKeys(ctx)
		if err != nil {
			return err
		}
		if count > 0 {
			s.verified.Purge()
		}
		return nil
	})
	return count, err
}

// checkOwner allows a caller to act on their own keys; anyone else's
// require MANAGE_USERS.
func (s *Service) checkOwner(ctx context.Context, ownerUUID uuid.UUID) error {
	id, err := s.engine.CurrentIdentity(ctx)
	if err != nil {
		return err
	}
	if id.Ref.UUID == ownerUUID || id.IsProcessing() {
		return nil
	}
	manager, err := s.engine.HasAppPermission(ctx, permission.AppPermissionManageUsers)
	if err != nil {
		return err
	}
	if !manager {
		return &authz.PermissionDeniedError{
			User:       id.Ref,
			Permission: string(permission.AppPermissionManageUsers),
			Message:    "cannot manage another user's api keys",
		}
	}
	return nil
}

func (s *Service) invalidatePrefix(prefix string) {
	s.verified.InvalidateMatching(func(key string) bool {
		return ExtractPrefix(key) == prefix
	})
}
