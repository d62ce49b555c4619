package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/goliatone/go-record-services/errs"
	"github.com/goliatone/go-record-services/repository"
	"github.com/goliatone/go-record-services/repositorycache"
	"github.com/goliatone/go-record-services/store"
)

// Users serves the user API. Reads may be cached; see repositorycache.
type Users struct {
	repo   repositorycache.Repository[repository.User]
	logger *slog.Logger
}

// NewUsers builds the user service over repo, which may be a cached
// repository.
func NewUsers(repo repositorycache.Repository[repository.User], logger *slog.Logger) *Users {
	if logger == nil {
		logger = slog.Default()
	}
	return &Users{repo: repo, logger: logger}
}

// Create inserts u and returns the stored record. A repeated cpf is
// AlreadyExists, naming the value.
func (s *Users) Create(ctx context.Context, u repository.User) (repository.User, error) {
	id, err := s.repo.Insert(ctx, u, "")
	if err != nil {
		var e *errs.Error
		if errors.As(err, &e) && e.Kind == errs.KindAlreadyExists {
			return repository.User{}, e.WithDetail("cpf " + repository.NormalizeCPF(u.CPF) + " is already registered")
		}
		return repository.User{}, err
	}
	s.logger.Info("user created", "id", id)
	return s.repo.FindByID(ctx, id)
}

// Get loads one user.
func (s *Users) Get(ctx context.Context, id int64) (repository.User, error) {
	return s.repo.FindByID(ctx, strconv.FormatInt(id, 10))
}

// Update applies patch.
func (s *Users) Update(ctx context.Context, id int64, patch repository.Patch) error {
	if _, err := s.repo.Update(ctx, strconv.FormatInt(id, 10), patch); err != nil {
		return err
	}
	s.logger.Info("user updated", "id", id)
	return nil
}

// Delete removes one user.
func (s *Users) Delete(ctx context.Context, id int64) (string, error) {
	res, err := s.repo.Delete(ctx, strconv.FormatInt(id, 10))
	if err != nil {
		return "", err
	}
	s.logger.Info("user deleted", "id", id)
	return res, nil
}

// List returns one page of users ordered by id.
func (s *Users) List(ctx context.Context, pageSize, pageNumber int) ([]repository.User, int64, error) {
	return s.repo.FindAll(ctx, store.MatchAll().SortBy("id_user", store.Asc), pageSize, pageNumber)
}
