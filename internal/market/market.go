// Package market standardizes payloads shared between producers and fusion consumers.
package market

import "time"

// Event types emitted by the bundled producers.
const (
	EventPriceTick         = "price_tick"
	EventNews              = "news"
	EventCalendarProximity = "calendar_proximity"
)

// Tick models the essential pieces of market data.
type Tick struct {
	Symbol string
	Price  float64
	Size   float64
	Side   int // +1 buy, -1 sell (aggressor)
	Ts     time.Time
}

// Data flattens the tick into an event payload.
func (t Tick) Data() map[string]any {
	return map[string]any{
		"symbol": t.Symbol,
		"price":  t.Price,
		"size":   t.Size,
		"side":   t.Side,
	}
}

// Headline is a single news item.
type Headline struct {
	ID        string
	Title     string
	Source    string
	Published time.Time
}

// Data flattens the headline into an event payload.
func (h Headline) Data() map[string]any {
	return map[string]any{
		"id":        h.ID,
		"title":     h.Title,
		"source":    h.Source,
		"published": h.Published,
	}
}

// CalendarWarning flags a scheduled economic release that is about to happen.
type CalendarWarning struct {
	Name       string
	Currency   string
	Impact     string
	ScheduleAt time.Time
	Until      time.Duration
}

// Data flattens the warning into an event payload.
func (w CalendarWarning) Data() map[string]any {
	return map[string]any{
		"name":          w.Name,
		"currency":      w.Currency,
		"impact":        w.Impact,
		"scheduled_at":  w.ScheduleAt,
		"minutes_until": w.Until.Minutes(),
	}
}
