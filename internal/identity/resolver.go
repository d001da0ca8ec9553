// Package identity maps an authenticated email to the acting user's profile.
// It stands in for the upstream identity service and caches lookups in redis.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"performa-system/internal/auth"
	"performa-system/internal/database/models"
	"performa-system/internal/errs"
)

const (
	PROFILE_CACHE_PREFIX = "identity:profile:"
	CACHE_TTL_SHORT      = 5 * time.Minute
)

type Profile struct {
	Name string `json:"name"`
	Dept string `json:"dept"`
	Role string `json:"role"`
}

type Resolver struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewResolver(db *gorm.DB, redisClient *redis.Client) *Resolver {
	return &Resolver{db: db, redis: redisClient}
}

func (r *Resolver) Resolve(ctx context.Context, email string) (*Profile, error) {
	cacheKey := PROFILE_CACHE_PREFIX + email
	if cached, err := r.redis.Get(ctx, cacheKey).Result(); err == nil {
		var profile Profile
		if err := json.Unmarshal([]byte(cached), &profile); err == nil {
			return &profile, nil
		}
	}

	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %s", errs.ErrNotFound, email)
		}
		return nil, err
	}

	profile := &Profile{Name: user.Name, Dept: user.Dept, Role: user.Role}
	if data, err := json.Marshal(profile); err == nil {
		_ = r.redis.Set(ctx, cacheKey, data, CACHE_TTL_SHORT)
	}
	return profile, nil
}

// Actor resolves the full acting identity. The role comes from the verified
// token claims, name and dept from the resolved profile.
func (r *Resolver) Actor(ctx context.Context, claims *auth.Claims) (auth.Actor, error) {
	profile, err := r.Resolve(ctx, claims.Email)
	if err != nil {
		return auth.Actor{}, err
	}
	return auth.Actor{
		Email: claims.Email,
		Name:  profile.Name,
		Dept:  profile.Dept,
		Role:  auth.Role(claims.Role),
	}, nil
}
