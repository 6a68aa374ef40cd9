package services

import (
	"context"
	"strings"

	"github.com/samber/lo"

	"trade-market/internal/models"
	"trade-market/internal/render"
	"trade-market/internal/repositories"
)

// UserDirectory provisions users from token claims and hydrates them for views.
type UserDirectory struct {
	repo       repositories.UserRepository
	avatarSize int
}

// NewUserDirectory builds a UserDirectory.
func NewUserDirectory(repo repositories.UserRepository, avatarSize int) *UserDirectory {
	return &UserDirectory{repo: repo, avatarSize: avatarSize}
}

// Ensure upserts the identity asserted by a verified token.
func (d *UserDirectory) Ensure(ctx context.Context, user models.User) (models.User, error) {
	user.Name = strings.TrimSpace(user.Name)
	user.Email = strings.TrimSpace(user.Email)
	saved, err := d.repo.UpsertUser(ctx, user)
	if err != nil {
		return models.User{}, err
	}
	return d.decorate(saved), nil
}

// Lookup loads the users by id. Ids without a row map to a bare User carrying only the id.
func (d *UserDirectory) Lookup(ctx context.Context, ids []int64) (map[int64]models.User, error) {
	ids = lo.Uniq(lo.Filter(ids, func(id int64, _ int) bool { return id != 0 }))
	users, err := d.repo.GetUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := lo.SliceToMap(users, func(u models.User) (int64, models.User) { return u.ID, d.decorate(u) })
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			byID[id] = models.User{ID: id}
		}
	}
	return byID, nil
}

func (d *UserDirectory) decorate(user models.User) models.User {
	if user.Email != "" {
		user.AvatarURL = render.AvatarURL(user.Email, d.avatarSize)
	}
	return user
}
