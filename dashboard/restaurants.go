package dashboard

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-authgate/dashboard-cli/session"
)

// Restaurants returns one page of every restaurant on the platform. Only a
// SUPER_ADMIN may call it.
func (s *Service) Restaurants(ctx context.Context, q RestaurantQuery) (*SpringPage[RestaurantSummary], error) {
	v := url.Values{}
	if q.Query != "" {
		v.Set("query", q.Query)
	}
	v.Set("page", strconv.Itoa(q.Page))
	size := q.Size
	if size <= 0 {
		size = defaultPageSize
	}
	v.Set("size", strconv.Itoa(size))

	return session.FetchJSON[*SpringPage[RestaurantSummary]](ctx, s.client, http.MethodGet,
		"/admin/restaurants?"+v.Encode(), nil)
}

func (s *Service) SponsoredPositions(ctx context.Context) (*SponsoredPositions, error) {
	return session.FetchJSON[*SponsoredPositions](ctx, s.client, http.MethodGet,
		"/admin/restaurants/sponsored-positions", nil)
}
