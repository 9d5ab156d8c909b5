package dashboard

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-authgate/dashboard-cli/session"
)

func categoriesPath(restaurantID string) string {
	return "/admin/restaurants/" + url.PathEscape(restaurantID) + "/categories"
}

func categoryPath(restaurantID string, categoryID int64) string {
	return categoriesPath(restaurantID) + "/" + strconv.FormatInt(categoryID, 10)
}

// Categories lists the menu categories of a restaurant.
func (s *Service) Categories(ctx context.Context, restaurantID string) ([]Category, error) {
	if restaurantID == "" {
		return nil, ErrNoRestaurant
	}
	return session.FetchJSON[[]Category](ctx, s.client, http.MethodGet, categoriesPath(restaurantID), nil)
}

func (s *Service) Category(ctx context.Context, restaurantID string, categoryID int64) (*Category, error) {
	if restaurantID == "" {
		return nil, ErrNoRestaurant
	}
	return session.FetchJSON[*Category](ctx, s.client, http.MethodGet,
		categoryPath(restaurantID, categoryID), nil)
}

func (s *Service) CreateCategory(ctx context.Context, restaurantID string, req CategoryRequest) (*Category, error) {
	if restaurantID == "" {
		return nil, ErrNoRestaurant
	}
	return session.FetchJSON[*Category](ctx, s.client, http.MethodPost, categoriesPath(restaurantID), req)
}

func (s *Service) UpdateCategory(
	ctx context.Context,
	restaurantID string,
	categoryID int64,
	req CategoryRequest,
) (*Category, error) {
	if restaurantID == "" {
		return nil, ErrNoRestaurant
	}
	return session.FetchJSON[*Category](ctx, s.client, http.MethodPut,
		categoryPath(restaurantID, categoryID), req)
}

func (s *Service) DeleteCategory(ctx context.Context, restaurantID string, categoryID int64) error {
	if restaurantID == "" {
		return ErrNoRestaurant
	}
	return s.exec(ctx, http.MethodDelete,
		categoryPath(restaurantID, categoryID), nil)
}
