package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/hdtickets/scout/internal/domain"
)

// Fingerprint derives the stable identity of a listing from the fields that
// survive re-scraping: platform, event title, venue and section. The input
// is case-folded and whitespace-collapsed first, so cosmetic differences
// between scrapes ("Old  Trafford" vs "old trafford") hash identically.
func Fingerprint(platform domain.Platform, title, venue, section string) string {
	key := strings.Join([]string{
		normalize(string(platform)),
		normalize(title),
		normalize(venue),
		normalize(section),
	}, "|")

	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
