package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/hdtickets/scout/internal/domain"
	"github.com/shopspring/decimal"
)

const funzoneBaseURL = "https://funzone.example.com/api/search"

type FunZoneAdapter struct {
	baseURL string
	client  *client
}

func NewFunZoneAdapter(baseURL string, timeout time.Duration) *FunZoneAdapter {
	if baseURL == "" {
		baseURL = funzoneBaseURL
	}
	return &FunZoneAdapter{baseURL: baseURL, client: newClient(timeout)}
}

func (a *FunZoneAdapter) Platform() domain.Platform { return domain.PlatformFunZone }

// FunZone returns either an object-wrapped or a bare-array payload
// depending on endpoint version, so both are accepted.
type funzoneEvent struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Venue       string          `json:"venue"`
	City        string          `json:"city"`
	Category    string          `json:"category"`
	Section     string          `json:"section"`
	Date        time.Time       `json:"date"`
	PriceFrom   decimal.Decimal `json:"price_from"`
	PriceTo     decimal.Decimal `json:"price_to"`
	Currency    string          `json:"currency"`
	TicketCount int             `json:"ticket_count"`
	URL         string          `json:"url"`
}

func (a *FunZoneAdapter) Fetch(ctx context.Context, q Query, ident domain.Identity) ([]RawListing, error) {
	params := url.Values{}
	params.Set("search", q.Keyword)
	params.Set("sort", "date")
	params.Set("limit", "50")
	if !q.DateFrom.IsZero() {
		params.Set("date_from", q.DateFrom.Format("2006-01-02"))
	}
	if !q.DateTo.IsZero() {
		params.Set("date_to", q.DateTo.Format("2006-01-02"))
	}

	body, err := a.client.get(ctx, a.Platform(), ident, a.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var events []funzoneEvent

	var wrapped struct {
		Events []funzoneEvent `json:"events"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && len(wrapped.Events) > 0 {
		events = wrapped.Events
	} else if err := json.Unmarshal(body, &events); err != nil {
		return nil, &PermanentError{Platform: a.Platform(), Err: fmt.Errorf("decode: %w", err)}
	}

	out := make([]RawListing, 0, len(events))
	for _, ev := range events {
		out = append(out, RawListing{
			Platform:     a.Platform(),
			ExternalID:   ev.ID,
			Title:        ev.Name,
			Sport:        ev.Category,
			Venue:        ev.Venue,
			Section:      ev.Section,
			Location:     ev.City,
			EventDate:    ev.Date,
			MinPrice:     ev.PriceFrom,
			MaxPrice:     ev.PriceTo,
			Currency:     orDefault(ev.Currency, "USD"),
			Availability: ev.TicketCount,
			URL:          ev.URL,
		})
	}

	return out, nil
}
