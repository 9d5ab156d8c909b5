// Package dashboard is the typed restaurant dashboard API. Every call goes
// through session.Client, so an expired access token is refreshed and the
// call retried without the caller noticing.
package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-authgate/dashboard-cli/session"
)

// ErrNoRestaurant is returned when a call needs a restaurant id and none is known.
var ErrNoRestaurant = errors.New("restaurant id is required")

// Service wraps a session client with the dashboard endpoints.
type Service struct {
	client *session.Client
}

// New creates a Service over client
func New(client *session.Client) *Service {
	return &Service{client: client}
}

// RestaurantDetails fetches a restaurant by id.
func (s *Service) RestaurantDetails(ctx context.Context, id string) (*RestaurantDetails, error) {
	if id == "" {
		return nil, ErrNoRestaurant
	}
	return session.FetchJSON[*RestaurantDetails](ctx, s.client, http.MethodGet,
		"/admin/restaurants/"+url.PathEscape(id), nil)
}

// PointsBalance returns the signed-in restaurant's loyalty points balance.
func (s *Service) PointsBalance(ctx context.Context) (float64, error) {
	return session.FetchJSON[float64](ctx, s.client, http.MethodGet, "/restaurant/points/balance", nil)
}

func (s *Service) AnalyticsOverview(ctx context.Context, period Period) (*AnalyticsOverview, error) {
	return session.FetchJSON[*AnalyticsOverview](ctx, s.client, http.MethodGet,
		analyticsPath("overview", period), nil)
}

func (s *Service) SalesTrend(ctx context.Context, period Period) (*SalesTrend, error) {
	return session.FetchJSON[*SalesTrend](ctx, s.client, http.MethodGet,
		analyticsPath("sales-trend", period), nil)
}

func (s *Service) TopDishes(ctx context.Context, period Period) (*TopDishes, error) {
	return session.FetchJSON[*TopDishes](ctx, s.client, http.MethodGet,
		analyticsPath("top-dishes", period), nil)
}

// analyticsPath omits the period parameter when none is given, leaving the
// backend default.
func analyticsPath(report string, period Period) string {
	p := "/restaurant/analytics/" + report
	if period != "" {
		p += "?" + url.Values{"period": {string(period)}}.Encode()
	}
	return p
}

// Orders

// OrderHistory lists a restaurant's past orders.
func (s *Service) OrderHistory(ctx context.Context, restaurantID string, q HistoryQuery) (*Page[Order], error) {
	if restaurantID == "" {
		return nil, ErrNoRestaurant
	}

	v := url.Values{}
	if q.Page != nil {
		v.Set("page", strconv.Itoa(*q.Page))
	}
	if q.PageSize != nil {
		v.Set("pageSize", strconv.Itoa(*q.PageSize))
	}
	if q.From != "" {
		v.Set("from", q.From)
	}
	if q.To != "" {
		v.Set("to", q.To)
	}

	path := fmt.Sprintf("/restaurant/history/%s/details?%s", url.PathEscape(restaurantID), v.Encode())
	return session.FetchJSON[*Page[Order]](ctx, s.client, http.MethodGet, path, nil)
}

func (s *Service) Order(ctx context.Context, orderID int64) (*Order, error) {
	return session.FetchJSON[*Order](ctx, s.client, http.MethodGet, historyItemPath(orderID), nil)
}

func (s *Service) DeleteOrder(ctx context.Context, orderID int64) error {
	return s.exec(ctx, http.MethodDelete, historyItemPath(orderID), nil)
}

func historyItemPath(orderID int64) string {
	return "/restaurant/history/" + strconv.FormatInt(orderID, 10)
}

// Invoices returns one page of the restaurant's invoices.
func (s *Service) Invoices(ctx context.Context, q InvoiceQuery) (*SpringPage[Invoice], error) {
	v := url.Values{}
	if q.StartDate != "" {
		v.Set("startDate", q.StartDate)
	}
	if q.EndDate != "" {
		v.Set("endDate", q.EndDate)
	}
	v.Set("page", strconv.Itoa(q.Page))
	size := q.Size
	if size <= 0 {
		size = defaultPageSize
	}
	v.Set("size", strconv.Itoa(size))

	return session.FetchJSON[*SpringPage[Invoice]](ctx, s.client, http.MethodGet,
		"/restaurant/invoices?"+v.Encode(), nil)
}

const defaultPageSize = 20

// exec sends a JSON request whose response body is not needed.
func (s *Service) exec(ctx context.Context, method, path string, in any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := s.client.NewRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	return session.CheckResponse(resp)
}
