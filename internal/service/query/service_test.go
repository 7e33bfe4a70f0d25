package query

import (
	"testing"

	"github.com/hdtickets/scout/internal/domain"
	postgresrepo "github.com/hdtickets/scout/internal/repository/postgres"
)

func TestFilterHashKeysDistinctFilters(t *testing.T) {
	base := postgresrepo.SearchFilter{
		Platform:      domain.PlatformStubHub,
		OnlyAvailable: true,
		MaxPrice:      "200",
		Limit:         50,
	}

	if filterHash(base) != filterHash(base) {
		t.Fatal("same filter must produce the same cache key")
	}

	variants := []postgresrepo.SearchFilter{
		{Platform: domain.PlatformViagogo, OnlyAvailable: true, MaxPrice: "200", Limit: 50},
		{Platform: domain.PlatformStubHub, MaxPrice: "200", Limit: 50},
		{Platform: domain.PlatformStubHub, OnlyAvailable: true, MaxPrice: "150", Limit: 50},
		{Platform: domain.PlatformStubHub, OnlyAvailable: true, MaxPrice: "200", Limit: 50, Offset: 50},
	}
	for _, v := range variants {
		if filterHash(v) == filterHash(base) {
			t.Errorf("filter %+v must not share a cache key with the base filter", v)
		}
	}
}
