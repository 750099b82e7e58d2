package domain

import (
	"fmt"
	"strings"
	"time"
)

// PeriodUnit задаёт длину периода публикации.
type PeriodUnit string

const (
	PeriodMonth PeriodUnit = "month"
	PeriodWeek  PeriodUnit = "week"
)

// ParsePeriodUnit разбирает значение из конфигурации.
func ParsePeriodUnit(raw string) (PeriodUnit, error) {
	switch PeriodUnit(strings.ToLower(strings.TrimSpace(raw))) {
	case "", PeriodMonth:
		return PeriodMonth, nil
	case PeriodWeek:
		return PeriodWeek, nil
	}
	return "", fmt.Errorf("unknown period unit %q", raw)
}

// DefaultCacheTTL возвращает TTL кэша ленты для единицы периода.
func (u PeriodUnit) DefaultCacheTTL() time.Duration {
	if u == PeriodWeek {
		return 30 * time.Second
	}
	return 5 * time.Minute
}

// Period: полуинтервал [Start, End).
type Period struct {
	Unit   PeriodUnit
	Start  time.Time
	End    time.Time
	Label  string
	Number int
	Year   int
}

// Contains сообщает, попадает ли момент в период.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// SameStart сравнивает начало периода с моментом независимо от часового пояса.
func (p Period) SameStart(t time.Time) bool {
	return p.Start.Equal(t)
}

// Pointer строит указатель на пост этого периода.
func (p Period) Pointer(postID string, now time.Time) *PeriodPointer {
	return &PeriodPointer{
		PostID:      postID,
		PeriodStart: p.Start,
		Label:       p.Label,
		Number:      p.Number,
		Year:        p.Year,
		UpdatedAt:   now,
	}
}

// PostTitle возвращает заголовок ReLink за период.
func (p Period) PostTitle() string {
	return p.Label + " ReLink"
}

// PeriodCalendar вычисляет периоды в заданном часовом поясе.
type PeriodCalendar struct {
	Unit     PeriodUnit
	Location *time.Location
}

// NewPeriodCalendar создаёт календарь; nil location означает UTC.
func NewPeriodCalendar(unit PeriodUnit, loc *time.Location) PeriodCalendar {
	if loc == nil {
		loc = time.UTC
	}
	if unit == "" {
		unit = PeriodMonth
	}
	return PeriodCalendar{Unit: unit, Location: loc}
}

// At возвращает период, содержащий момент t.
func (c PeriodCalendar) At(t time.Time) Period {
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	if c.Unit == PeriodWeek {
		return isoWeek(local, loc)
	}
	start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	return Period{
		Unit:   PeriodMonth,
		Start:  start,
		End:    start.AddDate(0, 1, 0),
		Label:  fmt.Sprintf("%s %d", start.Month().String(), start.Year()),
		Number: int(start.Month()),
		Year:   start.Year(),
	}
}

func isoWeek(local time.Time, loc *time.Location) Period {
	offset := (int(local.Weekday()) + 6) % 7
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	start := day.AddDate(0, 0, -offset)
	year, week := start.ISOWeek()
	return Period{
		Unit:   PeriodWeek,
		Start:  start,
		End:    start.AddDate(0, 0, 7),
		Label:  fmt.Sprintf("Week %d %d", week, year),
		Number: week,
		Year:   year,
	}
}
