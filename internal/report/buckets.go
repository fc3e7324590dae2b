// Package report builds calendar-aligned sales and expense series.
package report

import (
	"time"

	"optikpos/backend/internal/domain"
	"optikpos/backend/internal/store"
)

const (
	hourLayout  = "2006-01-02 15:00"
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
)

// Window is the ordered set of buckets covering one dashboard period.
type Window struct {
	Period domain.Period
	Start  time.Time
	Labels []string
	layout string
}

// NewWindow computes the buckets for period ending at now. All arithmetic is UTC.
//
//	day   24 hourly buckets, the last one containing now
//	week  7 daily buckets
//	month 30 daily buckets
//	year  12 monthly buckets
func NewWindow(period domain.Period, now time.Time) (Window, error) {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var (
		start  time.Time
		count  int
		layout string
		step   func(time.Time, int) time.Time
	)
	switch period {
	case domain.PeriodDay:
		start, count, layout = now.Truncate(time.Hour).Add(-23*time.Hour), 24, hourLayout
		step = func(t time.Time, i int) time.Time { return t.Add(time.Duration(i) * time.Hour) }
	case domain.PeriodWeek:
		start, count, layout = midnight.AddDate(0, 0, -6), 7, dayLayout
		step = func(t time.Time, i int) time.Time { return t.AddDate(0, 0, i) }
	case domain.PeriodMonth:
		start, count, layout = midnight.AddDate(0, 0, -29), 30, dayLayout
		step = func(t time.Time, i int) time.Time { return t.AddDate(0, 0, i) }
	case domain.PeriodYear:
		firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		start, count, layout = firstOfMonth.AddDate(0, -11, 0), 12, monthLayout
		step = func(t time.Time, i int) time.Time { return t.AddDate(0, i, 0) }
	default:
		return Window{}, store.ErrInvalidPeriod
	}

	labels := make([]string, count)
	for i := range labels {
		labels[i] = step(start, i).Format(layout)
	}
	return Window{Period: period, Start: start, Labels: labels, layout: layout}, nil
}

// Label returns the bucket label t falls into. The label may be outside the window.
func (w Window) Label(t time.Time) string {
	return t.UTC().Format(w.layout)
}

// Anchor identifies the newest bucket; two windows with the same period and
// anchor have identical labels.
func (w Window) Anchor() string {
	if len(w.Labels) == 0 {
		return ""
	}
	return w.Labels[len(w.Labels)-1]
}

// Range is the inclusive lower bound used to load records for the window.
func (w Window) Range() domain.DateRange {
	start := w.Start
	return domain.DateRange{From: &start}
}

// Aggregate sums order totals and expense amounts into the window's buckets.
// Records before Start, or whose label falls outside the window, are ignored.
// Every slice in the result has len(w.Labels) entries.
func Aggregate(w Window, sales []domain.OrderTotal, expenses []domain.Expense) domain.BucketSeries {
	index := make(map[string]int, len(w.Labels))
	for i, label := range w.Labels {
		index[label] = i
	}

	series := domain.BucketSeries{
		Labels:   append([]string(nil), w.Labels...),
		Sales:    make([]int64, len(w.Labels)),
		Expenses: make([]int64, len(w.Labels)),
		Profit:   make([]int64, len(w.Labels)),
	}
	for _, order := range sales {
		if order.OrderDate.Before(w.Start) {
			continue
		}
		if i, ok := index[w.Label(order.OrderDate)]; ok {
			series.Sales[i] += order.Total
		}
	}
	for _, expense := range expenses {
		if expense.ExpenseDate.Before(w.Start) {
			continue
		}
		if i, ok := index[w.Label(expense.ExpenseDate)]; ok {
			series.Expenses[i] += expense.Amount
		}
	}
	for i := range series.Profit {
		series.Profit[i] = series.Sales[i] - series.Expenses[i]
	}
	return series
}
