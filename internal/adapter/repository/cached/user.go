package cached

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"user-service/internal/adapter/cache"
	domain "user-service/internal/domain/user"
	"user-service/internal/usecase/user"
)

// loadTimeout bounds a shared database read once it is detached from its callers.
const loadTimeout = 5 * time.Second

// generationStripes is the number of write counters ids are hashed onto.
const generationStripes = 64

// CachedUserRepository implements user.Repository with caching support.
// It wraps a persistent repository (DB) and a cache implementation.
type CachedUserRepository struct {
	dbRepo user.Repository
	cache  cache.UserCache
	log    *zap.Logger
	group  singleflight.Group

	// gens counts writes per id stripe. A read only fills the cache when no
	// write to its stripe landed while it was in flight.
	gens [generationStripes]atomic.Uint64
}

var _ user.Repository = (*CachedUserRepository)(nil)

// NewCachedUserRepository creates a new instance of CachedUserRepository.
func NewCachedUserRepository(dbRepo user.Repository, cache cache.UserCache, log *zap.Logger) *CachedUserRepository {
	return &CachedUserRepository{
		dbRepo: dbRepo,
		cache:  cache,
		log:    log,
	}
}

// Create delegates to the DB repository.
func (r *CachedUserRepository) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	return r.dbRepo.Create(ctx, u)
}

// FindByID retrieves a user by ID using Cache-Aside pattern.
func (r *CachedUserRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	if cachedUser, err := r.cache.Get(ctx, id); err != nil {
		r.log.Warn("cache get error, falling back to database", zap.Int64("id", id), zap.Error(err))
	} else if cachedUser != nil {
		return cachedUser, nil
	}

	// Concurrent misses for the same id share a single database read. The
	// read is detached from the caller that started it, so one caller going
	// away does not fail the others.
	ch := r.group.DoChan(groupKey(id), func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()

		gen := r.generation(id)
		u, err := r.dbRepo.FindByID(loadCtx, id)
		if err != nil {
			return nil, err
		}
		r.fill(loadCtx, u, gen)
		return u, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		// Callers may mutate the record; never hand out the shared pointer.
		u := *res.Val.(*domain.User)
		return &u, nil
	}
}

// fill caches u unless a write to its id landed after gen was read. The
// second check catches a write that raced the Set itself.
func (r *CachedUserRepository) fill(ctx context.Context, u *domain.User, gen uint64) {
	if r.generation(u.ID) != gen {
		return
	}
	if err := r.cache.Set(ctx, u); err != nil {
		r.log.Warn("failed to cache user", zap.Int64("id", u.ID), zap.Error(err))
		return
	}
	if r.generation(u.ID) != gen {
		r.invalidate(ctx, u.ID, "stale fill")
	}
}

// FindAllOrderedByCreatedDesc delegates to the DB repository.
func (r *CachedUserRepository) FindAllOrderedByCreatedDesc(ctx context.Context) ([]domain.User, error) {
	return r.dbRepo.FindAllOrderedByCreatedDesc(ctx)
}

// ExistsByID delegates to the DB repository.
func (r *CachedUserRepository) ExistsByID(ctx context.Context, id int64) (bool, error) {
	return r.dbRepo.ExistsByID(ctx, id)
}

// ExistsByEmail delegates to the DB repository.
func (r *CachedUserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.dbRepo.ExistsByEmail(ctx, email)
}

// Count delegates to the DB repository.
func (r *CachedUserRepository) Count(ctx context.Context) (int64, error) {
	return r.dbRepo.Count(ctx)
}

// Update updates the user in DB and invalidates the cache.
func (r *CachedUserRepository) Update(ctx context.Context, u *domain.User) (*domain.User, error) {
	updated, err := r.dbRepo.Update(ctx, u)
	if err != nil {
		return nil, err
	}

	r.written(u.ID)
	r.invalidate(ctx, u.ID, "update")
	return updated, nil
}

// DeleteByID deletes the user from DB and invalidates the cache.
func (r *CachedUserRepository) DeleteByID(ctx context.Context, id int64) error {
	if err := r.dbRepo.DeleteByID(ctx, id); err != nil {
		return err
	}

	r.written(id)
	r.invalidate(ctx, id, "delete")
	return nil
}

func (r *CachedUserRepository) invalidate(ctx context.Context, id int64, op string) {
	if err := r.cache.Delete(ctx, id); err != nil {
		r.log.Warn("failed to invalidate cache", zap.String("op", op), zap.Int64("id", id), zap.Error(err))
	}
}

// written records a committed write to id. Reads already in flight will not
// fill the cache and new callers start a fresh read.
func (r *CachedUserRepository) written(id int64) {
	r.stripe(id).Add(1)
	r.group.Forget(groupKey(id))
}

func (r *CachedUserRepository) generation(id int64) uint64 {
	return r.stripe(id).Load()
}

func (r *CachedUserRepository) stripe(id int64) *atomic.Uint64 {
	return &r.gens[uint64(id)%generationStripes]
}

func groupKey(id int64) string {
	return strconv.FormatInt(id, 10)
}
