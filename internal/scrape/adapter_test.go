package scrape

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hdtickets/scout/internal/domain"
	"github.com/shopspring/decimal"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		status    int
		transient bool
		permanent bool
	}{
		{200, false, false},
		{204, false, false},
		{401, false, true},
		{403, false, true},
		{404, false, true},
		{429, true, false},
		{500, true, false},
		{503, true, false},
	}

	for _, c := range cases {
		err := classifyStatus(domain.PlatformStubHub, c.status)
		if c.transient != IsTransient(err) {
			t.Errorf("status %d: IsTransient = %v, want %v", c.status, IsTransient(err), c.transient)
		}
		if c.permanent != IsPermanent(err) {
			t.Errorf("status %d: IsPermanent = %v, want %v", c.status, IsPermanent(err), c.permanent)
		}
		if !c.transient && !c.permanent && err != nil {
			t.Errorf("status %d: unexpected error %v", c.status, err)
		}
	}
}

func TestOutcome(t *testing.T) {
	if got := Outcome(nil); got != domain.FetchSuccess {
		t.Errorf("Outcome(nil) = %v", got)
	}
	if got := Outcome(&PermanentError{Platform: domain.PlatformViagogo}); got != domain.FetchPermanent {
		t.Errorf("permanent error: Outcome = %v", got)
	}
	if got := Outcome(&TransientError{Platform: domain.PlatformViagogo}); got != domain.FetchTransient {
		t.Errorf("transient error: Outcome = %v", got)
	}
	if got := Outcome(errors.New("who knows")); got != domain.FetchTransient {
		t.Errorf("unknown error: Outcome = %v, want transient", got)
	}
}

func TestStubHubAdapterFetch(t *testing.T) {
	var gotQuery, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"events": [{
				"id": 104421,
				"name": "Manchester United vs Arsenal",
				"venue": {"name": "Old Trafford", "city": "Manchester"},
				"eventDateLocal": "2026-09-12T15:00:00",
				"categoryName": "Soccer",
				"sectionName": "Sir Alex Ferguson Stand",
				"ticketInfo": {
					"minListPrice": 120.50,
					"maxListPrice": 310,
					"currencyCode": "GBP",
					"totalTickets": 42
				},
				"webURI": "manchester-united-tickets/event/104421"
			}]
		}`))
	}))
	defer srv.Close()

	a := NewStubHubAdapter(srv.URL, time.Second)
	ident := domain.Identity{ID: 1, UserAgent: "scout-test/1.0"}

	got, err := a.Fetch(context.Background(), Query{Keyword: "Manchester United"}, ident)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if gotQuery != "Manchester United" {
		t.Errorf("q param = %q", gotQuery)
	}
	if gotUA != "scout-test/1.0" {
		t.Errorf("identity user agent not applied, got %q", gotUA)
	}

	if len(got) != 1 {
		t.Fatalf("got %d listings, want 1", len(got))
	}
	l := got[0]
	if l.Platform != domain.PlatformStubHub {
		t.Errorf("platform = %s", l.Platform)
	}
	if l.ExternalID != "104421" {
		t.Errorf("external id = %q", l.ExternalID)
	}
	if l.Title != "Manchester United vs Arsenal" || l.Venue != "Old Trafford" {
		t.Errorf("title/venue = %q/%q", l.Title, l.Venue)
	}
	if l.Section != "Sir Alex Ferguson Stand" || l.Location != "Manchester" {
		t.Errorf("section/location = %q/%q", l.Section, l.Location)
	}
	if !l.MinPrice.Equal(mustDecimal(t, "120.50")) || !l.MaxPrice.Equal(mustDecimal(t, "310")) {
		t.Errorf("prices = %s..%s", l.MinPrice, l.MaxPrice)
	}
	if l.Currency != "GBP" || l.Availability != 42 {
		t.Errorf("currency/availability = %q/%d", l.Currency, l.Availability)
	}
	if l.EventDate.IsZero() {
		t.Error("event date not parsed")
	}
}

func TestStubHubAdapterErrorStatuses(t *testing.T) {
	status := http.StatusTooManyRequests
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	a := NewStubHubAdapter(srv.URL, time.Second)

	_, err := a.Fetch(context.Background(), Query{Keyword: "derby"}, domain.Identity{})
	if !IsTransient(err) {
		t.Errorf("429 should be transient, got %v", err)
	}

	status = http.StatusForbidden
	_, err = a.Fetch(context.Background(), Query{Keyword: "derby"}, domain.Identity{})
	if !IsPermanent(err) {
		t.Errorf("403 should be permanent, got %v", err)
	}
}

func TestStubHubAdapterMalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>captcha</html>`))
	}))
	defer srv.Close()

	a := NewStubHubAdapter(srv.URL, time.Second)

	_, err := a.Fetch(context.Background(), Query{Keyword: "derby"}, domain.Identity{})
	if !IsPermanent(err) {
		t.Errorf("undecodable payload should be permanent, got %v", err)
	}
}

func TestTicketmasterAdapterFetch(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("apikey")
		w.Write([]byte(`{
			"_embedded": {
				"events": [{
					"id": "vvG1iZ94q5",
					"name": "Premier League: City vs United",
					"url": "https://www.ticketmaster.com/event/vvG1iZ94q5",
					"_embedded": {
						"venues": [{"name": "Etihad Stadium", "city": {"name": "Manchester"}, "country": {"name": "United Kingdom"}}]
					},
					"dates": {"start": {"dateTime": "2026-10-03T16:30:00Z"}},
					"classifications": [{"segment": {"name": "Sports"}}],
					"priceRanges": [{"min": 85, "max": 420, "currency": "GBP"}]
				}]
			}
		}`))
	}))
	defer srv.Close()

	a := NewTicketmasterAdapter(srv.URL, time.Second)
	ident := domain.Identity{ID: 2, Username: "tm-api-key"}

	got, err := a.Fetch(context.Background(), Query{Keyword: "United"}, ident)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotKey != "tm-api-key" {
		t.Errorf("apikey param = %q", gotKey)
	}

	if len(got) != 1 {
		t.Fatalf("got %d listings, want 1", len(got))
	}
	l := got[0]
	if l.Venue != "Etihad Stadium" || l.Location != "Manchester, United Kingdom" {
		t.Errorf("venue/location = %q/%q", l.Venue, l.Location)
	}
	if l.Sport != "Sports" {
		t.Errorf("sport = %q", l.Sport)
	}
	if !l.MinPrice.Equal(mustDecimal(t, "85")) || l.Currency != "GBP" {
		t.Errorf("min price/currency = %s/%q", l.MinPrice, l.Currency)
	}
}

func TestTicketmasterAdapterMissingKey(t *testing.T) {
	a := NewTicketmasterAdapter("http://127.0.0.1:1", time.Second)

	_, err := a.Fetch(context.Background(), Query{Keyword: "United"}, domain.Identity{})
	if !IsPermanent(err) {
		t.Errorf("missing api key should be permanent, got %v", err)
	}
}

func TestFunZoneAdapterAcceptsBothPayloadShapes(t *testing.T) {
	event := `{
		"id": "fz-991",
		"name": "FA Cup Semi Final",
		"venue": "Wembley Stadium",
		"city": "London",
		"category": "Football",
		"section": "Block 112",
		"date": "2026-04-18T15:00:00Z",
		"price_from": "75",
		"price_to": "240",
		"currency": "GBP",
		"ticket_count": 8,
		"url": "https://funzone.example.com/e/fz-991"
	}`

	for name, body := range map[string]string{
		"wrapped": `{"events": [` + event + `]}`,
		"bare":    `[` + event + `]`,
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		}))

		a := NewFunZoneAdapter(srv.URL, time.Second)
		got, err := a.Fetch(context.Background(), Query{Keyword: "cup"}, domain.Identity{})
		srv.Close()

		if err != nil {
			t.Fatalf("%s: Fetch: %v", name, err)
		}
		if len(got) != 1 {
			t.Fatalf("%s: got %d listings, want 1", name, len(got))
		}
		l := got[0]
		if l.ExternalID != "fz-991" || l.Venue != "Wembley Stadium" || l.Section != "Block 112" {
			t.Errorf("%s: parsed %q/%q/%q", name, l.ExternalID, l.Venue, l.Section)
		}
		if !l.MinPrice.Equal(mustDecimal(t, "75")) || l.Availability != 8 {
			t.Errorf("%s: price/availability = %s/%d", name, l.MinPrice, l.Availability)
		}
	}
}

func TestProxyURLValidation(t *testing.T) {
	a := NewStubHubAdapter("http://127.0.0.1:1", time.Second)
	ident := domain.Identity{ProxyURL: "://bad"}

	_, err := a.Fetch(context.Background(), Query{Keyword: "derby"}, ident)
	if !IsPermanent(err) {
		t.Errorf("invalid proxy url should be permanent, got %v", err)
	}
}
