package dashboard

import (
	"fmt"
	"strings"
)

// RestaurantAdmin is the account that manages a restaurant
type RestaurantAdmin struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// RestaurantDetails is the full restaurant record from the admin API.
type RestaurantDetails struct {
	ID             int64            `json:"id"`
	Name           string           `json:"name"`
	NameEn         *string          `json:"nameEn"`
	NameFr         *string          `json:"nameFr"`
	NameAr         *string          `json:"nameAr"`
	Address        string           `json:"address"`
	Phone          string           `json:"phone"`
	Description    string           `json:"description"`
	DescriptionEn  *string          `json:"descriptionEn"`
	DescriptionFr  *string          `json:"descriptionFr"`
	DescriptionAr  *string          `json:"descriptionAr"`
	Categories     []string         `json:"categories"`
	Latitude       float64          `json:"latitude"`
	Longitude      float64          `json:"longitude"`
	LicenseNumber  string           `json:"licenseNumber"`
	TaxID          string           `json:"taxId"`
	CommissionRate float64          `json:"commissionRate"`
	Sponsored      bool             `json:"sponsored"`
	Position       *int             `json:"position"`
	ImageURL       string           `json:"imageUrl"`
	IconURL        string           `json:"iconUrl"`
	Rating         *float64         `json:"rating"`
	Admin          *RestaurantAdmin `json:"admin,omitempty"`
}

// RestaurantSummary is one row of the admin restaurant list.
type RestaurantSummary struct {
	ID            int64    `json:"id"`
	Name          string   `json:"name"`
	ImageURL      string   `json:"imageUrl"`
	Categories    []string `json:"categories"`
	Rating        *float64 `json:"rating"`
	TodaySchedule *string  `json:"todaySchedule"`
}

// RestaurantQuery filters the admin restaurant list. Query is omitted when empty.
type RestaurantQuery struct {
	Query string
	Page  int
	Size  int
}

// SponsoredPositions lists the sponsored slots already taken.
type SponsoredPositions struct {
	Positions []int `json:"positions"`
}

// Menu

type ExtraItem struct {
	ID      *int64  `json:"id,omitempty"`
	Name    string  `json:"name"`
	NameEn  string  `json:"nameEn"`
	NameFr  string  `json:"nameFr"`
	NameAr  string  `json:"nameAr"`
	Price   float64 `json:"price"`
	Default bool    `json:"default"`
}

type OptionGroup struct {
	ID        *int64      `json:"id,omitempty"`
	Name      string      `json:"name"`
	NameEn    string      `json:"nameEn"`
	NameFr    string      `json:"nameFr"`
	NameAr    string      `json:"nameAr"`
	MinSelect int         `json:"minSelect"`
	MaxSelect int         `json:"maxSelect"`
	Required  bool        `json:"required"`
	Extras    []ExtraItem `json:"extras"`
}

type CategorySummary struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	NameEn string `json:"nameEn,omitempty"`
	NameFr string `json:"nameFr,omitempty"`
	NameAr string `json:"nameAr,omitempty"`
}

// MenuItem is a dish as returned by the menu endpoints.
type MenuItem struct {
	ID              int64             `json:"id"`
	Name            string            `json:"name"`
	NameEn          string            `json:"nameEn"`
	NameFr          string            `json:"nameFr"`
	NameAr          string            `json:"nameAr"`
	Description     string            `json:"description"`
	DescriptionEn   string            `json:"descriptionEn"`
	DescriptionFr   string            `json:"descriptionFr"`
	DescriptionAr   string            `json:"descriptionAr"`
	Price           float64           `json:"price"`
	PromotionPrice  float64           `json:"promotionPrice"`
	PromotionActive bool              `json:"promotionActive"`
	PromotionLabel  string            `json:"promotionLabel"`
	Available       bool              `json:"available"`
	Popular         bool              `json:"popular"`
	RestaurantID    int64             `json:"restaurantId"`
	CategoryIDs     []int64           `json:"categoryIds"`
	Categories      []CategorySummary `json:"categories,omitempty"`
	OptionGroups    []OptionGroup     `json:"optionGroups"`
	ImageURLs       []string          `json:"imageUrls"`
}

// normalize fills the slices the backend may omit; category ids fall back
// to the nested categories.
func (m *MenuItem) normalize() {
	if m.ImageURLs == nil {
		m.ImageURLs = []string{}
	}
	if m.OptionGroups == nil {
		m.OptionGroups = []OptionGroup{}
	}
	if m.CategoryIDs == nil {
		m.CategoryIDs = make([]int64, 0, len(m.Categories))
		for _, c := range m.Categories {
			m.CategoryIDs = append(m.CategoryIDs, c.ID)
		}
	}
}

// MenuItemRequest is the "menu" part of a create or update upload.
type MenuItemRequest struct {
	Name            string        `json:"name"`
	NameEn          string        `json:"nameEn"`
	NameFr          string        `json:"nameFr"`
	NameAr          string        `json:"nameAr"`
	Description     string        `json:"description"`
	DescriptionEn   string        `json:"descriptionEn"`
	DescriptionFr   string        `json:"descriptionFr"`
	DescriptionAr   string        `json:"descriptionAr"`
	Price           float64       `json:"price"`
	PromotionPrice  float64       `json:"promotionPrice"`
	PromotionActive bool          `json:"promotionActive"`
	PromotionLabel  string        `json:"promotionLabel"`
	Available       bool          `json:"available"`
	Popular         bool          `json:"popular"`
	RestaurantID    int64         `json:"restaurantId"`
	CategoryIDs     []int64       `json:"categoryIds"`
	OptionGroups    []OptionGroup `json:"optionGroups"`
	ImageURLs       []string      `json:"imageUrls"`
}

// Categories

type Category struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	NameEn       string `json:"nameEn,omitempty"`
	NameFr       string `json:"nameFr,omitempty"`
	NameAr       string `json:"nameAr,omitempty"`
	RestaurantID int64  `json:"restaurantId"`
}

type CategoryRequest struct {
	Name   string `json:"name"`
	NameEn string `json:"nameEn,omitempty"`
	NameFr string `json:"nameFr,omitempty"`
	NameAr string `json:"nameAr,omitempty"`
}

// Operating hours

type DayOfWeek string

const (
	Monday    DayOfWeek = "MONDAY"
	Tuesday   DayOfWeek = "TUESDAY"
	Wednesday DayOfWeek = "WEDNESDAY"
	Thursday  DayOfWeek = "THURSDAY"
	Friday    DayOfWeek = "FRIDAY"
	Saturday  DayOfWeek = "SATURDAY"
	Sunday    DayOfWeek = "SUNDAY"
)

type WeeklyScheduleEntry struct {
	Day      DayOfWeek `json:"day"`
	Open     bool      `json:"open"`
	OpensAt  *string   `json:"opensAt"`
	ClosesAt *string   `json:"closesAt"`
}

type SpecialDay struct {
	ID       *int64 `json:"id,omitempty"`
	Name     string `json:"name"`
	Date     string `json:"date"`
	Open     bool   `json:"open"`
	OpensAt  string `json:"opensAt,omitempty"`
	ClosesAt string `json:"closesAt,omitempty"`
}

type OperatingHours struct {
	WeeklySchedule []WeeklyScheduleEntry `json:"weeklySchedule"`
	SpecialDays    []SpecialDay          `json:"specialDays"`
}

// Order history

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type OrderLine struct {
	MenuItemID          int64    `json:"menuItemId"`
	MenuItemName        string   `json:"menuItemName"`
	Quantity            int      `json:"quantity"`
	Extras              []string `json:"extras,omitempty"`
	SpecialInstructions *string  `json:"specialInstructions,omitempty"`
	UnitBasePrice       *float64 `json:"unitBasePrice,omitempty"`
	UnitPrice           *float64 `json:"unitPrice,omitempty"`
	UnitExtrasPrice     *float64 `json:"unitExtrasPrice,omitempty"`
	LineSubtotal        *float64 `json:"lineSubtotal,omitempty"`
	PromotionDiscount   *float64 `json:"promotionDiscount,omitempty"`
	LineItemsTotal      *float64 `json:"lineItemsTotal,omitempty"`
	ExtrasTotal         *float64 `json:"extrasTotal,omitempty"`
	LineTotal           float64  `json:"lineTotal"`
}

type OrderParty struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name"`
	Phone *string `json:"phone,omitempty"`
}

type OrderRestaurant struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Address  string  `json:"address,omitempty"`
	Phone    string  `json:"phone,omitempty"`
	ImageURL string  `json:"imageUrl,omitempty"`
	IconURL  string  `json:"iconUrl,omitempty"`
	Location *LatLng `json:"location,omitempty"`
}

type OrderDelivery struct {
	ID                    int64       `json:"id"`
	Driver                *OrderParty `json:"driver,omitempty"`
	EstimatedPickupTime   *float64    `json:"estimatedPickupTime,omitempty"`
	EstimatedDeliveryTime *float64    `json:"estimatedDeliveryTime,omitempty"`
	EstimatedReadyAt      string      `json:"estimatedReadyAt,omitempty"`
	PickupTime            string      `json:"pickupTime,omitempty"`
	DeliveredTime         string      `json:"deliveredTime,omitempty"`
	DriverLocation        *LatLng     `json:"driverLocation,omitempty"`
	Address               string      `json:"address,omitempty"`
	Location              *LatLng     `json:"location,omitempty"`
}

type OrderRating struct {
	Timing          float64 `json:"timing"`
	FoodCondition   float64 `json:"foodCondition"`
	Professionalism float64 `json:"professionalism"`
	Overall         float64 `json:"overall"`
	Comments        string  `json:"comments,omitempty"`
	CreatedAt       string  `json:"createdAt"`
	UpdatedAt       string  `json:"updatedAt"`
}

type OrderPayment struct {
	Subtotal          *float64 `json:"subtotal,omitempty"`
	ExtrasTotal       *float64 `json:"extrasTotal,omitempty"`
	Total             *float64 `json:"total,omitempty"`
	ItemsSubtotal     *float64 `json:"itemsSubtotal,omitempty"`
	PromotionDiscount *float64 `json:"promotionDiscount,omitempty"`
	CouponDiscount    *float64 `json:"couponDiscount,omitempty"`
	ItemsTotal        *float64 `json:"itemsTotal,omitempty"`
	DeliveryFee       *float64 `json:"deliveryFee,omitempty"`
	ServiceFee        *float64 `json:"serviceFee,omitempty"`
	TipPercentage     *float64 `json:"tipPercentage,omitempty"`
	TipAmount         *float64 `json:"tipAmount,omitempty"`
	TotalBeforeTip    *float64 `json:"totalBeforeTip,omitempty"`
	CashToCollect     *float64 `json:"cashToCollect,omitempty"`
	Commission        *float64 `json:"commission,omitempty"`
	Status            string   `json:"status,omitempty"`
	PaymentURL        string   `json:"paymentUrl,omitempty"`
	PaymentReference  string   `json:"paymentReference,omitempty"`
	Environment       string   `json:"environment,omitempty"`
}

// Order is one entry of the order history.
type Order struct {
	ID               *int64           `json:"id,omitempty"`
	OrderID          *int64           `json:"orderId,omitempty"`
	OrderDate        any              `json:"orderDate,omitempty"`
	Date             string           `json:"date"`
	Status           string           `json:"status"`
	DeliveryAddress  string           `json:"deliveryAddress"`
	PaymentMethod    string           `json:"paymentMethod"`
	Items            []OrderLine      `json:"items"`
	Client           *OrderParty      `json:"client,omitempty"`
	DeliveryLocation *LatLng          `json:"deliveryLocation,omitempty"`
	Restaurant       *OrderRestaurant `json:"restaurant,omitempty"`
	Delivery         *OrderDelivery   `json:"delivery,omitempty"`
	Rating           *OrderRating     `json:"rating,omitempty"`
	Payment          *OrderPayment    `json:"payment,omitempty"`
	CouponCode       string           `json:"couponCode,omitempty"`
	EstimatedReadyAt string           `json:"estimatedReadyAt,omitempty"`
	ClientName       string           `json:"clientName,omitempty"`
	RiderName        string           `json:"riderName,omitempty"`
	RestaurantName   string           `json:"restaurantName,omitempty"`
	Amount           *float64         `json:"amount,omitempty"`
}

// Page is the history endpoint's pagination envelope
type Page[T any] struct {
	Data       []T `json:"data"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalPages int `json:"totalPages"`
}

// HistoryQuery filters the order history. Zero fields are omitted.
type HistoryQuery struct {
	Page     *int
	PageSize *int
	From     string
	To       string
}

// OrderSummary is the flat row the my-orders listing is mapped to.
// PreparationMillis is the time from the order to its estimated ready time.
type OrderSummary struct {
	ID                int64   `json:"id"`
	ClientName        string  `json:"clientName"`
	RiderName         string  `json:"riderName"`
	Amount            float64 `json:"amount"`
	OrderDate         string  `json:"orderDate"`
	Status            string  `json:"status"`
	PreparationMillis *int64  `json:"preparationTime,omitempty"`
	RestaurantID      int64   `json:"restaurantId"`
	RestaurantName    string  `json:"restaurantName"`
	Commission        float64 `json:"commission"`
}

// MyOrdersQuery filters the signed-in restaurant's orders. Empty dates and
// statuses are omitted; PageSize defaults to 20.
type MyOrdersQuery struct {
	StartDate string
	EndDate   string
	Status    []string
	Page      int
	PageSize  int
}

// Billing

type Invoice struct {
	ID              int64   `json:"id"`
	InvoiceNumber   string  `json:"invoiceNumber"`
	InvoiceURL      string  `json:"invoiceUrl"`
	RestaurantID    int64   `json:"restaurantId"`
	RestaurantName  string  `json:"restaurantName"`
	ReceivedAmount  float64 `json:"receivedAmount"`
	GenerationDate  string  `json:"generationDate"`
	EmailSentAt     string  `json:"emailSentAt"`
	PeriodStartDate string  `json:"periodStartDate"`
	PeriodEndDate   string  `json:"periodEndDate"`
}

// SpringPage is the Spring Data page envelope used by the billing endpoint.
type SpringPage[T any] struct {
	Content          []T  `json:"content"`
	TotalElements    int  `json:"totalElements"`
	TotalPages       int  `json:"totalPages"`
	Size             int  `json:"size"`
	Number           int  `json:"number"`
	First            bool `json:"first"`
	Last             bool `json:"last"`
	NumberOfElements int  `json:"numberOfElements"`
	Empty            bool `json:"empty"`
}

type InvoiceQuery struct {
	StartDate string
	EndDate   string
	Page      int
	Size      int
}

// Analytics

// Period is an analytics window
type Period string

const (
	PeriodToday Period = "TODAY"
	PeriodWeek  Period = "WEEK"
	PeriodMonth Period = "MONTH"
)

// ParsePeriod accepts a period name in any case.
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToUpper(strings.TrimSpace(s)))
	switch p {
	case PeriodToday, PeriodWeek, PeriodMonth:
		return p, nil
	}
	return "", fmt.Errorf("invalid period %q (want today, week or month)", s)
}

type OverviewValue struct {
	Current          float64 `json:"current"`
	Previous         float64 `json:"previous"`
	Change           float64 `json:"change"`
	PercentageChange float64 `json:"percentageChange"`
}

type OverviewPreparationTime struct {
	CurrentMinutes   float64 `json:"currentMinutes"`
	PreviousMinutes  float64 `json:"previousMinutes"`
	ChangeMinutes    float64 `json:"changeMinutes"`
	PercentageChange float64 `json:"percentageChange"`
}

type OverviewRating struct {
	CurrentStars     float64 `json:"currentStars"`
	PreviousStars    float64 `json:"previousStars"`
	ChangeStars      float64 `json:"changeStars"`
	PercentageChange float64 `json:"percentageChange"`
}

type AnalyticsOverview struct {
	Period          string                  `json:"period"`
	Revenue         OverviewValue           `json:"revenue"`
	Orders          OverviewValue           `json:"orders"`
	PreparationTime OverviewPreparationTime `json:"preparationTime"`
	Rating          OverviewRating          `json:"rating"`
}

type SalesTrendPoint struct {
	Date       string  `json:"date"`
	Revenue    float64 `json:"revenue"`
	OrderCount int     `json:"orderCount"`
}

type SalesTrend struct {
	Period string            `json:"period"`
	Data   []SalesTrendPoint `json:"data"`
}

type TopDish struct {
	MenuItemID   int64  `json:"menuItemId"`
	MenuItemName string `json:"menuItemName"`
	OrderCount   int    `json:"orderCount"`
	QuantitySold int    `json:"quantitySold"`
}

type TopDishes struct {
	Period    string    `json:"period"`
	TopDishes []TopDish `json:"topDishes"`
}
