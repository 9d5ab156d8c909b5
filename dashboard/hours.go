package dashboard

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-authgate/dashboard-cli/session"
)

const (
	operatingHoursPath = "/restaurant/operating-hours"
	weeklySchedulePath = operatingHoursPath + "/weekly"
	specialDaysPath    = operatingHoursPath + "/special-days"
)

// OperatingHours returns the weekly schedule and special days.
func (s *Service) OperatingHours(ctx context.Context) (*OperatingHours, error) {
	return session.FetchJSON[*OperatingHours](ctx, s.client, http.MethodGet, operatingHoursPath, nil)
}

// UpdateWeeklySchedule replaces the weekly schedule.
func (s *Service) UpdateWeeklySchedule(ctx context.Context, days []WeeklyScheduleEntry) error {
	body := struct {
		Days []WeeklyScheduleEntry `json:"days"`
	}{Days: days}
	return s.exec(ctx, http.MethodPut, weeklySchedulePath, body)
}

// AddSpecialDay creates a special day; any id on day is ignored.
func (s *Service) AddSpecialDay(ctx context.Context, day SpecialDay) (*SpecialDay, error) {
	day.ID = nil
	return session.FetchJSON[*SpecialDay](ctx, s.client, http.MethodPost, specialDaysPath, day)
}

func (s *Service) UpdateSpecialDay(ctx context.Context, id int64, day SpecialDay) (*SpecialDay, error) {
	day.ID = nil
	return session.FetchJSON[*SpecialDay](ctx, s.client, http.MethodPut, specialDayPath(id), day)
}

func (s *Service) DeleteSpecialDay(ctx context.Context, id int64) error {
	return s.exec(ctx, http.MethodDelete, specialDayPath(id), nil)
}

func specialDayPath(id int64) string {
	return specialDaysPath + "/" + strconv.FormatInt(id, 10)
}
