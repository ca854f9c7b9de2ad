package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goldenzaika/api/internal/repositories"
)

// FavoriteServiceDeps bundles collaborators required to construct the favorites service.
type FavoriteServiceDeps struct {
	Favorites repositories.FavoriteRepository
	Clock     func() time.Time
}

type favoriteService struct {
	favorites repositories.FavoriteRepository
	clock     func() time.Time
}

// NewFavoriteService wires dependencies into a concrete FavoriteService implementation.
func NewFavoriteService(deps FavoriteServiceDeps) (FavoriteService, error) {
	if deps.Favorites == nil {
		return nil, errors.New("favorite service: favorite repository is required")
	}
	return &favoriteService{favorites: deps.Favorites, clock: utcClock(deps.Clock)}, nil
}

func (s *favoriteService) List(ctx context.Context, userID string) ([]Favorite, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, newServiceError(ErrFavoriteInvalidInput, "invalid_request", "User is required")
	}
	favorites, err := s.favorites.List(ctx, userID)
	if err != nil {
		return nil, translateRepoError(err, nil)
	}
	return favorites, nil
}

func (s *favoriteService) Add(ctx context.Context, userID, productID string) error {
	productID = strings.TrimSpace(productID)
	if strings.TrimSpace(userID) == "" || productID == "" {
		return newServiceError(ErrFavoriteInvalidInput, "invalid_request", "Product ID is required")
	}
	if strings.Contains(productID, "/") {
		return newServiceError(ErrFavoriteInvalidInput, "invalid_request", "Invalid product ID")
	}
	if err := s.favorites.Add(ctx, userID, Favorite{ProductID: productID, AddedAt: s.clock()}); err != nil {
		return translateRepoError(err, nil)
	}
	return nil
}

func (s *favoriteService) Remove(ctx context.Context, userID, productID string) error {
	productID = strings.TrimSpace(productID)
	if strings.TrimSpace(userID) == "" || productID == "" {
		return newServiceError(ErrFavoriteInvalidInput, "invalid_request", "Product ID is required")
	}
	if err := s.favorites.Remove(ctx, userID, productID); err != nil {
		return translateRepoError(err, nil)
	}
	return nil
}
