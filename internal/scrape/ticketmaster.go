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

const ticketmasterBaseURL = "https://app.ticketmaster.com/discovery/v2/events.json"

// TicketmasterAdapter talks to the Discovery v2 API. Unlike the scraped
// platforms it needs an API key, carried on the identity username.
type TicketmasterAdapter struct {
	baseURL string
	client  *client
}

func NewTicketmasterAdapter(baseURL string, timeout time.Duration) *TicketmasterAdapter {
	if baseURL == "" {
		baseURL = ticketmasterBaseURL
	}
	return &TicketmasterAdapter{baseURL: baseURL, client: newClient(timeout)}
}

func (a *TicketmasterAdapter) Platform() domain.Platform { return domain.PlatformTicketmaster }

type ticketmasterResponse struct {
	Embedded struct {
		Events []struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			URL      string `json:"url"`
			Embedded struct {
				Venues []struct {
					Name string `json:"name"`
					City struct {
						Name string `json:"name"`
					} `json:"city"`
					Country struct {
						Name string `json:"name"`
					} `json:"country"`
				} `json:"venues"`
			} `json:"_embedded"`
			Dates struct {
				Start struct {
					DateTime time.Time `json:"dateTime"`
				} `json:"start"`
			} `json:"dates"`
			Classifications []struct {
				Segment struct {
					Name string `json:"name"`
				} `json:"segment"`
			} `json:"classifications"`
			PriceRanges []struct {
				Min      decimal.Decimal `json:"min"`
				Max      decimal.Decimal `json:"max"`
				Currency string          `json:"currency"`
			} `json:"priceRanges"`
		} `json:"events"`
	} `json:"_embedded"`
}

func (a *TicketmasterAdapter) Fetch(ctx context.Context, q Query, ident domain.Identity) ([]RawListing, error) {
	if ident.Username == "" {
		return nil, &PermanentError{Platform: a.Platform(), Err: fmt.Errorf("missing api key")}
	}

	params := url.Values{}
	params.Set("keyword", q.Keyword)
	params.Set("apikey", ident.Username)
	params.Set("size", "50")
	params.Set("sort", "date,asc")
	params.Set("classificationName", "sports")
	if !q.DateFrom.IsZero() {
		params.Set("startDateTime", q.DateFrom.UTC().Format("2006-01-02T15:04:05Z"))
	}

	body, err := a.client.get(ctx, a.Platform(), ident, a.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp ticketmasterResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &PermanentError{Platform: a.Platform(), Err: fmt.Errorf("decode: %w", err)}
	}

	out := make([]RawListing, 0, len(resp.Embedded.Events))
	for _, ev := range resp.Embedded.Events {
		raw := RawListing{
			Platform:   a.Platform(),
			ExternalID: ev.ID,
			Title:      ev.Name,
			URL:        ev.URL,
			EventDate:  ev.Dates.Start.DateTime,
			Currency:   "USD",
		}

		if len(ev.Embedded.Venues) > 0 {
			v := ev.Embedded.Venues[0]
			raw.Venue = v.Name
			raw.Location = v.City.Name + ", " + v.Country.Name
		}
		if len(ev.Classifications) > 0 {
			raw.Sport = ev.Classifications[0].Segment.Name
		}
		if len(ev.PriceRanges) > 0 {
			pr := ev.PriceRanges[0]
			raw.MinPrice = pr.Min
			raw.MaxPrice = pr.Max
			raw.Currency = orDefault(pr.Currency, "USD")
		}

		out = append(out, raw)
	}

	return out, nil
}
