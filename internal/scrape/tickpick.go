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

const tickpickBaseURL = "https://www.tickpick.com/api/events"

type TickPickAdapter struct {
	baseURL string
	client  *client
}

func NewTickPickAdapter(baseURL string, timeout time.Duration) *TickPickAdapter {
	if baseURL == "" {
		baseURL = tickpickBaseURL
	}
	return &TickPickAdapter{baseURL: baseURL, client: newClient(timeout)}
}

func (a *TickPickAdapter) Platform() domain.Platform { return domain.PlatformTickPick }

// TickPick quotes both fee-inclusive and no-fee prices; the no-fee range is
// what a buyer actually pays, so it wins when present.
type tickpickResponse struct {
	Events []struct {
		ID                string          `json:"id"`
		Name              string          `json:"name"`
		Venue             string          `json:"venue"`
		Location          string          `json:"location"`
		Category          string          `json:"category"`
		Date              time.Time       `json:"date"`
		PriceMin          decimal.Decimal `json:"price_min"`
		PriceMax          decimal.Decimal `json:"price_max"`
		NoFeePriceMin     decimal.Decimal `json:"no_fee_price_min"`
		NoFeePriceMax     decimal.Decimal `json:"no_fee_price_max"`
		AvailableListings int             `json:"available_listings"`
		URL               string          `json:"url"`
	} `json:"events"`
}

func (a *TickPickAdapter) Fetch(ctx context.Context, q Query, ident domain.Identity) ([]RawListing, error) {
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

	var resp tickpickResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &PermanentError{Platform: a.Platform(), Err: fmt.Errorf("decode: %w", err)}
	}

	out := make([]RawListing, 0, len(resp.Events))
	for _, ev := range resp.Events {
		minPrice, maxPrice := ev.PriceMin, ev.PriceMax
		if ev.NoFeePriceMin.IsPositive() {
			minPrice, maxPrice = ev.NoFeePriceMin, ev.NoFeePriceMax
		}

		out = append(out, RawListing{
			Platform:     a.Platform(),
			ExternalID:   ev.ID,
			Title:        ev.Name,
			Sport:        ev.Category,
			Venue:        ev.Venue,
			Location:     ev.Location,
			EventDate:    ev.Date,
			MinPrice:     minPrice,
			MaxPrice:     maxPrice,
			Currency:     "USD",
			Availability: ev.AvailableListings,
			URL:          ev.URL,
		})
	}

	return out, nil
}
