package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/go-authgate/dashboard-cli/dashboard"
	"github.com/go-authgate/dashboard-cli/proxy"
	"github.com/go-authgate/dashboard-cli/session"
)

// command is one CLI subcommand. run returns the value printed as JSON (nil
// prints nothing) and a one-line summary for the progress view.
type command struct {
	name string
	help string
	// auth commands restore or create a session before running.
	auth bool
	run  func(ctx context.Context, a *app, args []string) (any, string, error)
}

var commands = []command{
	{name: "status", help: "Show the current session (default)", run: runStatus},
	{name: "login", help: "Log in with -email and -password", run: runLogin},
	{name: "logout", help: "End the session and clear the cache", run: runLogout},
	{name: "restaurant", help: "Show restaurant details [-restaurant id]", auth: true, run: runRestaurant},
	{name: "menu", help: "List menu items", auth: true, run: runMenu},
	{name: "categories", help: "List menu categories [-restaurant id]", auth: true, run: runCategories},
	{name: "hours", help: "Show operating hours", auth: true, run: runHours},
	{name: "restaurants", help: "List all restaurants [-query -page -size -sponsored]", auth: true, run: runRestaurants},
	{name: "orders", help: "List order history [-page -page-size -from -to -id -mine -status -cancel -reason]", auth: true, run: runOrders},
	{name: "invoices", help: "List invoices [-start -end -page -size]", auth: true, run: runInvoices},
	{name: "analytics", help: "Show analytics [-period today|week|month]", auth: true, run: runAnalytics},
	{name: "points", help: "Show the points balance", auth: true, run: runPoints},
	{name: "proxy", help: "Serve the API locally with this session [-addr]", auth: true, run: runProxy},
}

func lookupCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// statusReport is what `status` prints.
type statusReport struct {
	Server     string              `json:"server"`
	Status     session.Status      `json:"status"`
	Degraded   bool                `json:"degraded,omitempty"`
	User       *session.User       `json:"user,omitempty"`
	Restaurant *session.Restaurant `json:"restaurant,omitempty"`
}

func runStatus(ctx context.Context, a *app, _ []string) (any, string, error) {
	a.d.Bootstrapping()
	status := a.session.Bootstrap(ctx)
	if status == session.StatusAuthenticated {
		a.d.SessionRestored(userLabel(a.session.User()), a.session.Degraded())
	} else {
		a.d.SessionMissing()
	}

	return statusReport{
		Server:     a.cfg.ServerURL,
		Status:     status,
		Degraded:   a.session.Degraded(),
		User:       a.session.User(),
		Restaurant: a.session.Restaurant(),
	}, status.String(), nil
}

func runLogin(ctx context.Context, a *app, _ []string) (any, string, error) {
	if err := a.login(ctx); err != nil {
		return nil, "", err
	}
	user := a.session.User()
	return statusReport{
		Server:     a.cfg.ServerURL,
		Status:     a.session.Status(),
		User:       user,
		Restaurant: a.session.Restaurant(),
	}, "logged in as " + userLabel(user), nil
}

func runLogout(ctx context.Context, a *app, _ []string) (any, string, error) {
	a.d.Bootstrapping()
	a.session.Bootstrap(ctx)
	if err := a.session.Logout(ctx); err != nil {
		// Local state is gone either way.
		a.logger.Warn("logout request failed", "error", err)
	}
	a.d.LoggedOut()
	return nil, "logged out", nil
}

func runRestaurant(ctx context.Context, a *app, args []string) (any, string, error) {
	fs := newFlagSet("restaurant")
	explicit := fs.String("restaurant", "", "restaurant id")
	if err := fs.Parse(args); err != nil {
		return nil, "", err
	}
	id, err := a.restaurantID(*explicit)
	if err != nil {
		return nil, "", err
	}

	details, err := fetch(a, "restaurant", func() (*dashboard.RestaurantDetails, error) {
		return a.api.RestaurantDetails(ctx, id)
	})
	if err != nil {
		return nil, "", err
	}
	return details, details.Name, nil
}

func runMenu(ctx context.Context, a *app, _ []string) (any, string, error) {
	items, err := fetch(a, "menu", func() ([]dashboard.MenuItem, error) {
		return a.api.MenuItems(ctx)
	})
	if err != nil {
		return nil, "", err
	}
	return items, fmt.Sprintf("%d menu items", len(items)), nil
}

func runCategories(ctx context.Context, a *app, args []string) (any, string, error) {
	fs := newFlagSet("categories")
	explicit := fs.String("restaurant", "", "restaurant id")
	if err := fs.Parse(args); err != nil {
		return nil, "", err
	}
	id, err := a.restaurantID(*explicit)
	if err != nil {
		return nil, "", err
	}

	cats, err := fetch(a, "categories", func() ([]dashboard.Category, error) {
		return a.api.Categories(ctx, id)
	})
	if err != nil {
		return nil, "", err
	}
	return cats, fmt.Sprintf("%d categories", len(cats)), nil
}

func runHours(ctx context.Context, a *app, _ []string) (any, string, error) {
	hours, err := fetch(a, "operating hours", func() (*dashboard.OperatingHours, error) {
		return a.api.OperatingHours(ctx)
	})
	if err != nil {
		return nil, "", err
	}
	return hours, fmt.Sprintf("%d special days", len(hours.SpecialDays)), nil
}

func runOrders(ctx context.Context, a *app, args []string) (any, string, error) {
	fs := newFlagSet("orders")
	explicit := fs.String("restaurant", "", "restaurant id")
	page := fs.Int("page", 0, "page number")
	pageSize := fs.Int("page-size", 20, "page size")
	from := fs.String("from", "", "start date (YYYY-MM-DD)")
	to := fs.String("to", "", "end date (YYYY-MM-DD)")
	orderID := fs.Int64("id", 0, "show a single order")
	mine := fs.Bool("mine", false, "list the signed-in restaurant's orders")
	status := fs.String("status", "", "comma-separated statuses, with -mine")
	cancelID := fs.Int64("cancel", 0, "cancel the order with this id")
	reason := fs.String("reason", "", "cancellation reason, with -cancel")
	if err := fs.Parse(args); err != nil {
		return nil, "", err
	}

	switch {
	case *cancelID > 0:
		if strings.TrimSpace(*reason) == "" {
			return nil, "", errors.New("-cancel needs a -reason")
		}
		order, err := fetch(a, "cancel order", func() (*dashboard.Order, error) {
			return a.api.CancelOrder(ctx, *cancelID, *reason)
		})
		if err != nil {
			return nil, "", err
		}
		return order, fmt.Sprintf("order %d canceled", *cancelID), nil

	case *orderID > 0:
		order, err := fetch(a, "order", func() (*dashboard.Order, error) {
			return a.api.Order(ctx, *orderID)
		})
		if err != nil {
			return nil, "", err
		}
		return order, fmt.Sprintf("order %d", *orderID), nil

	case *mine:
		q := dashboard.MyOrdersQuery{StartDate: *from, EndDate: *to, Page: *page, PageSize: *pageSize}
		if *status != "" {
			q.Status = strings.Split(*status, ",")
		}
		orders, err := fetch(a, "orders", func() (*dashboard.SpringPage[dashboard.OrderSummary], error) {
			return a.api.MyOrders(ctx, q)
		})
		if err != nil {
			return nil, "", err
		}
		return orders, fmt.Sprintf("%d of %d orders", len(orders.Content), orders.TotalElements), nil
	}

	id, err := a.restaurantID(*explicit)
	if err != nil {
		return nil, "", err
	}
	q := dashboard.HistoryQuery{Page: page, PageSize: pageSize, From: *from, To: *to}
	history, err := fetch(a, "order history", func() (*dashboard.Page[dashboard.Order], error) {
		return a.api.OrderHistory(ctx, id, q)
	})
	if err != nil {
		return nil, "", err
	}
	return history, fmt.Sprintf("%d of %d orders", len(history.Data), history.Total), nil
}

func runRestaurants(ctx context.Context, a *app, args []string) (any, string, error) {
	fs := newFlagSet("restaurants")
	query := fs.String("query", "", "name filter")
	page := fs.Int("page", 0, "page number")
	size := fs.Int("size", 20, "page size")
	sponsored := fs.Bool("sponsored", false, "show the taken sponsored positions instead")
	if err := fs.Parse(args); err != nil {
		return nil, "", err
	}

	if *sponsored {
		positions, err := fetch(a, "sponsored positions", func() (*dashboard.SponsoredPositions, error) {
			return a.api.SponsoredPositions(ctx)
		})
		if err != nil {
			return nil, "", err
		}
		return positions, fmt.Sprintf("%d sponsored positions taken", len(positions.Positions)), nil
	}

	q := dashboard.RestaurantQuery{Query: *query, Page: *page, Size: *size}
	list, err := fetch(a, "restaurants", func() (*dashboard.SpringPage[dashboard.RestaurantSummary], error) {
		return a.api.Restaurants(ctx, q)
	})
	if err != nil {
		return nil, "", err
	}
	return list, fmt.Sprintf("%d of %d restaurants", len(list.Content), list.TotalElements), nil
}

func runInvoices(ctx context.Context, a *app, args []string) (any, string, error) {
	fs := newFlagSet("invoices")
	start := fs.String("start", "", "start date (YYYY-MM-DD)")
	end := fs.String("end", "", "end date (YYYY-MM-DD)")
	page := fs.Int("page", 0, "page number")
	size := fs.Int("size", 20, "page size")
	if err := fs.Parse(args); err != nil {
		return nil, "", err
	}

	q := dashboard.InvoiceQuery{StartDate: *start, EndDate: *end, Page: *page, Size: *size}
	invoices, err := fetch(a, "invoices", func() (*dashboard.SpringPage[dashboard.Invoice], error) {
		return a.api.Invoices(ctx, q)
	})
	if err != nil {
		return nil, "", err
	}
	return invoices, fmt.Sprintf("%d of %d invoices", len(invoices.Content), invoices.TotalElements), nil
}

// analyticsReport bundles the three analytics endpoints.
type analyticsReport struct {
	Overview   *dashboard.AnalyticsOverview `json:"overview"`
	SalesTrend *dashboard.SalesTrend        `json:"salesTrend"`
	TopDishes  *dashboard.TopDishes         `json:"topDishes"`
}

func runAnalytics(ctx context.Context, a *app, args []string) (any, string, error) {
	fs := newFlagSet("analytics")
	periodFlag := fs.String("period", "week", "today, week or month")
	if err := fs.Parse(args); err != nil {
		return nil, "", err
	}
	period, err := dashboard.ParsePeriod(*periodFlag)
	if err != nil {
		return nil, "", err
	}

	var report analyticsReport
	if report.Overview, err = fetch(a, "analytics overview", func() (*dashboard.AnalyticsOverview, error) {
		return a.api.AnalyticsOverview(ctx, period)
	}); err != nil {
		return nil, "", err
	}
	if report.SalesTrend, err = fetch(a, "sales trend", func() (*dashboard.SalesTrend, error) {
		return a.api.SalesTrend(ctx, period)
	}); err != nil {
		return nil, "", err
	}
	if report.TopDishes, err = fetch(a, "top dishes", func() (*dashboard.TopDishes, error) {
		return a.api.TopDishes(ctx, period)
	}); err != nil {
		return nil, "", err
	}
	return report, "analytics for " + string(period), nil
}

func runPoints(ctx context.Context, a *app, _ []string) (any, string, error) {
	balance, err := fetch(a, "points balance", func() (float64, error) {
		return a.api.PointsBalance(ctx)
	})
	if err != nil {
		return nil, "", err
	}
	return map[string]float64{"balance": balance}, fmt.Sprintf("%g points", balance), nil
}

func runProxy(ctx context.Context, a *app, args []string) (any, string, error) {
	fs := newFlagSet("proxy")
	addr := fs.String("addr", a.cfg.ProxyAddr, "listen address")
	if err := fs.Parse(args); err != nil {
		return nil, "", err
	}

	handler, err := proxy.New(a.cfg.ServerURL, a.client.Transport(), proxy.WithLogger(a.logger))
	if err != nil {
		return nil, "", err
	}
	a.d.ProxyListening(*addr)
	if err := proxy.Serve(ctx, *addr, handler, a.logger); err != nil {
		return nil, "", err
	}
	return nil, "proxy stopped", nil
}
