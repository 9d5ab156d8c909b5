package dashboard

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-authgate/dashboard-cli/session"
)

// myOrdersPage is the raw my-orders envelope.
type myOrdersPage struct {
	Items      []Order `json:"items"`
	TotalItems int     `json:"totalItems"`
	Page       int     `json:"page"`
	PageSize   int     `json:"pageSize"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// MyOrders lists the signed-in restaurant's orders, flattened into summaries
// and wrapped in the same page envelope as the billing endpoint.
func (s *Service) MyOrders(ctx context.Context, q MyOrdersQuery) (*SpringPage[OrderSummary], error) {
	size := q.PageSize
	if size <= 0 {
		size = defaultPageSize
	}

	v := url.Values{}
	if q.StartDate != "" {
		v.Set("startDate", q.StartDate)
	}
	if q.EndDate != "" {
		v.Set("endDate", q.EndDate)
	}
	for _, st := range q.Status {
		if st != "" {
			v.Add("status", st)
		}
	}
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("pageSize", strconv.Itoa(size))

	raw, err := session.FetchJSON[*myOrdersPage](ctx, s.client, http.MethodGet,
		"/restaurant/my-orders?"+v.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		raw = &myOrdersPage{}
	}
	return raw.toPage(size), nil
}

// toPage maps the raw envelope. requested stands in for a missing pageSize.
func (p *myOrdersPage) toPage(requested int) *SpringPage[OrderSummary] {
	size := p.PageSize
	if size <= 0 {
		size = requested
	}
	totalPages := 0
	if size > 0 {
		totalPages = (p.TotalItems + size - 1) / size
	}

	content := make([]OrderSummary, 0, len(p.Items))
	for _, o := range p.Items {
		content = append(content, summarize(o))
	}

	return &SpringPage[OrderSummary]{
		Content:          content,
		TotalElements:    p.TotalItems,
		TotalPages:       totalPages,
		Size:             size,
		Number:           p.Page,
		First:            p.Page == 0,
		Last:             p.Page+1 >= totalPages,
		NumberOfElements: len(content),
		Empty:            len(content) == 0,
	}
}

func summarize(o Order) OrderSummary {
	sum := OrderSummary{
		ClientName: "N/A",
		RiderName:  "N/A",
		OrderDate:  o.Date,
		Status:     o.Status,
	}
	if o.OrderID != nil {
		sum.ID = *o.OrderID
	} else if o.ID != nil {
		sum.ID = *o.ID
	}
	if o.Client != nil && o.Client.Name != "" {
		sum.ClientName = o.Client.Name
	}
	if d := o.Delivery; d != nil {
		if d.Driver != nil && d.Driver.Name != "" {
			sum.RiderName = d.Driver.Name
		}
		if ms, ok := millisBetween(o.Date, d.EstimatedReadyAt); ok {
			sum.PreparationMillis = &ms
		}
	}
	if p := o.Payment; p != nil {
		if p.Total != nil {
			sum.Amount = *p.Total
		}
		if p.Commission != nil {
			sum.Commission = *p.Commission
		}
	}
	if r := o.Restaurant; r != nil {
		sum.RestaurantID = r.ID
		sum.RestaurantName = r.Name
	}
	return sum
}

// timestampLayouts covers zoned and local ISO timestamps.
var timestampLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05"}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func millisBetween(from, to string) (int64, bool) {
	if from == "" || to == "" {
		return 0, false
	}
	start, ok := parseTimestamp(from)
	if !ok {
		return 0, false
	}
	end, ok := parseTimestamp(to)
	if !ok {
		return 0, false
	}
	return end.Sub(start).Milliseconds(), true
}

// CancelOrder cancels an order with the admin's reason. The backend may
// answer with the updated order or with an empty body, in which case nil is
// returned.
func (s *Service) CancelOrder(ctx context.Context, orderID int64, reason string) (*Order, error) {
	order, err := session.FetchJSON[*Order](ctx, s.client, http.MethodPost,
		"/orders/"+strconv.FormatInt(orderID, 10)+"/cancel", cancelRequest{Reason: reason})
	if err != nil {
		return nil, fmt.Errorf("failed to cancel order #%d: %w", orderID, err)
	}
	return order, nil
}
