// Package service holds the write paths of the order and user APIs.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/goliatone/go-record-services/aggregate"
	"github.com/goliatone/go-record-services/lookup"
	"github.com/goliatone/go-record-services/repository"
	"github.com/goliatone/go-record-services/store"
)

// Orders validates order owners against the user service before writing.
type Orders struct {
	repo     *repository.Orders
	users    lookup.Users
	pipeline *aggregate.Pipeline
	logger   *slog.Logger
}

// NewOrders builds the order service.
func NewOrders(repo *repository.Orders, users lookup.Users, pipeline *aggregate.Pipeline, logger *slog.Logger) *Orders {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orders{repo: repo, users: users, pipeline: pipeline, logger: logger}
}

// Create stores order under id in c, after checking its user exists. An
// empty id lets the store assign one.
func (s *Orders) Create(ctx context.Context, c store.Collection, id string, order repository.Order) (string, error) {
	if _, err := s.users.FetchUser(ctx, order.UserID); err != nil {
		return "", fmt.Errorf("validate owner of order: %w", err)
	}
	newID, err := s.repo.In(c).Insert(ctx, order, id)
	if err != nil {
		return "", err
	}
	s.logger.Info("order created", "collection", c.String(), "id", newID, "user_id", order.UserID)
	return newID, nil
}

// Get loads one order.
func (s *Orders) Get(ctx context.Context, c store.Collection, id string) (repository.Order, error) {
	return s.repo.In(c).FindByID(ctx, id)
}

// Update applies patch and returns the new version. A changed user_id is
// validated first.
func (s *Orders) Update(ctx context.Context, c store.Collection, id string, patch repository.Patch) (int64, error) {
	if uid, ok := patchedUserID(patch); ok {
		if _, err := s.users.FetchUser(ctx, uid); err != nil {
			return 0, fmt.Errorf("validate owner of order: %w", err)
		}
	}
	version, err := s.repo.In(c).Update(ctx, id, patch)
	if err != nil {
		return 0, err
	}
	s.logger.Info("order updated", "collection", c.String(), "id", id, "version", version)
	return version, nil
}

// Delete removes one order.
func (s *Orders) Delete(ctx context.Context, c store.Collection, id string) (string, error) {
	res, err := s.repo.In(c).Delete(ctx, id)
	if err != nil {
		return "", err
	}
	s.logger.Info("order deleted", "collection", c.String(), "id", id)
	return res, nil
}

// List returns one enriched page of orders.
func (s *Orders) List(ctx context.Context, q aggregate.Query) (aggregate.Page, error) {
	return s.pipeline.ListOrders(ctx, q)
}

func patchedUserID(patch repository.Patch) (int64, bool) {
	if p, ok := patch.(repository.OrderPatch); ok {
		if p.UserID == nil {
			return 0, false
		}
		return *p.UserID, true
	}
	v, ok := patch.Fields()["user_id"]
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case float64:
		return int64(t), true
	}
	return 0, false
}
