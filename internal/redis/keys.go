package redisx

import "fmt"

const ns = "scout:v1"

func KeyListing(fingerprint string) string {
	return fmt.Sprintf("%s:listing:%s", ns, fingerprint)
}

func KeyListingSearch(hash string) string {
	return fmt.Sprintf("%s:listings:search:%s", ns, hash)
}

func KeyPriceHistory(fingerprint string) string {
	return fmt.Sprintf("%s:listing:%s:prices", ns, fingerprint)
}

func KeyPlatformReliability(platform string) string {
	return fmt.Sprintf("%s:platform:%s:reliability", ns, platform)
}

func KeyPlatformHealth(platform string) string {
	return fmt.Sprintf("%s:platform:%s:health", ns, platform)
}

// RateLimitPrefix namespaces a limiter's keys; the limiter appends its own
// per-client suffix.
func RateLimitPrefix(scope string) string {
	return fmt.Sprintf("%s:rl:%s", ns, scope)
}

func ChannelAlertTriggers() string {
	return ns + ":alerts:triggered"
}
