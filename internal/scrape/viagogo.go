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

const viagogoBaseURL = "https://www.viagogo.com/api/v2/search"

type ViagogoAdapter struct {
	baseURL string
	client  *client
}

func NewViagogoAdapter(baseURL string, timeout time.Duration) *ViagogoAdapter {
	if baseURL == "" {
		baseURL = viagogoBaseURL
	}
	return &ViagogoAdapter{baseURL: baseURL, client: newClient(timeout)}
}

func (a *ViagogoAdapter) Platform() domain.Platform { return domain.PlatformViagogo }

type viagogoResponse struct {
	Items []struct {
		ID    string `json:"id"`
		Event struct {
			Name      string    `json:"name"`
			StartDate time.Time `json:"start_date"`
			Genre     string    `json:"genre"`
		} `json:"event"`
		Venue struct {
			Name string `json:"name"`
			City string `json:"city"`
		} `json:"venue"`
		Section  string `json:"section"`
		MinPrice struct {
			Amount   decimal.Decimal `json:"amount"`
			Currency string          `json:"currency"`
		} `json:"min_ticket_price"`
		MaxPrice struct {
			Amount   decimal.Decimal `json:"amount"`
			Currency string          `json:"currency"`
		} `json:"max_ticket_price"`
		AvailableTickets int    `json:"available_tickets"`
		WebPageURL       string `json:"web_page_url"`
	} `json:"items"`
}

func (a *ViagogoAdapter) Fetch(ctx context.Context, q Query, ident domain.Identity) ([]RawListing, error) {
	params := url.Values{}
	params.Set("q", q.Keyword)
	params.Set("sort", "price")
	params.Set("limit", "50")
	if q.MaxPrice.IsPositive() {
		params.Set("max_price", q.MaxPrice.String())
	}

	// Viagogo authenticates with a bearer token tied to the identity.
	headers := map[string]string{}
	if ident.Username != "" {
		headers["Authorization"] = "Bearer " + ident.Username
	}

	body, err := a.client.get(ctx, a.Platform(), ident, a.baseURL+"?"+params.Encode(), headers)
	if err != nil {
		return nil, err
	}

	var resp viagogoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &PermanentError{Platform: a.Platform(), Err: fmt.Errorf("decode: %w", err)}
	}

	out := make([]RawListing, 0, len(resp.Items))
	for _, it := range resp.Items {
		out = append(out, RawListing{
			Platform:     a.Platform(),
			ExternalID:   it.ID,
			Title:        it.Event.Name,
			Sport:        it.Event.Genre,
			Venue:        it.Venue.Name,
			Section:      it.Section,
			Location:     it.Venue.City,
			EventDate:    it.Event.StartDate,
			MinPrice:     it.MinPrice.Amount,
			MaxPrice:     it.MaxPrice.Amount,
			Currency:     orDefault(it.MinPrice.Currency, "GBP"),
			Availability: it.AvailableTickets,
			URL:          it.WebPageURL,
		})
	}

	return out, nil
}
