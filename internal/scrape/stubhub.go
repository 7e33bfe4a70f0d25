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

const stubhubBaseURL = "https://www.stubhub.com/api/search/catalog/events/v3"

type StubHubAdapter struct {
	baseURL string
	client  *client
}

func NewStubHubAdapter(baseURL string, timeout time.Duration) *StubHubAdapter {
	if baseURL == "" {
		baseURL = stubhubBaseURL
	}
	return &StubHubAdapter{baseURL: baseURL, client: newClient(timeout)}
}

func (a *StubHubAdapter) Platform() domain.Platform { return domain.PlatformStubHub }

// stubhubResponse mirrors the catalog search payload: events carry the
// venue and a ticketInfo block with the list-price range.
type stubhubResponse struct {
	Events []struct {
		ID    json.Number `json:"id"`
		Name  string      `json:"name"`
		Venue struct {
			Name string `json:"name"`
			City string `json:"city"`
		} `json:"venue"`
		EventDateLocal string `json:"eventDateLocal"`
		CategoryName   string `json:"categoryName"`
		SectionName    string `json:"sectionName"`
		TicketInfo     struct {
			MinListPrice decimal.Decimal `json:"minListPrice"`
			MaxListPrice decimal.Decimal `json:"maxListPrice"`
			CurrencyCode string          `json:"currencyCode"`
			TotalTickets int             `json:"totalTickets"`
		} `json:"ticketInfo"`
		WebURI string `json:"webURI"`
	} `json:"events"`
}

func (a *StubHubAdapter) Fetch(ctx context.Context, q Query, ident domain.Identity) ([]RawListing, error) {
	params := url.Values{}
	params.Set("q", q.Keyword)
	params.Set("sort", "price_asc")
	params.Set("rows", "50")
	params.Set("start", "0")
	if q.MaxPrice.IsPositive() {
		params.Set("maxPrice", q.MaxPrice.String())
	}
	if !q.DateFrom.IsZero() {
		params.Set("dateLocal", q.DateFrom.Format("2006-01-02"))
	}

	body, err := a.client.get(ctx, a.Platform(), ident, a.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp stubhubResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &PermanentError{Platform: a.Platform(), Err: fmt.Errorf("decode: %w", err)}
	}

	out := make([]RawListing, 0, len(resp.Events))
	for _, ev := range resp.Events {
		eventDate, _ := time.Parse("2006-01-02T15:04:05", ev.EventDateLocal)

		out = append(out, RawListing{
			Platform:     a.Platform(),
			ExternalID:   ev.ID.String(),
			Title:        ev.Name,
			Sport:        ev.CategoryName,
			Venue:        ev.Venue.Name,
			Section:      ev.SectionName,
			Location:     ev.Venue.City,
			EventDate:    eventDate,
			MinPrice:     ev.TicketInfo.MinListPrice,
			MaxPrice:     ev.TicketInfo.MaxListPrice,
			Currency:     orDefault(ev.TicketInfo.CurrencyCode, "USD"),
			Availability: ev.TicketInfo.TotalTickets,
			URL:          ev.WebURI,
		})
	}

	return out, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
