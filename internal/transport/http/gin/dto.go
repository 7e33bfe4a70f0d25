package httpgin

type CreateAlertRequest struct {
	UserID    int64    `json:"user_id" binding:"required"`
	Keyword   string   `json:"keyword"`
	Venue     string   `json:"venue"`
	MaxPrice  string   `json:"max_price"`
	Platforms []string `json:"platforms"`
}

type CreateAlertResponse struct {
	AlertID int64 `json:"alert_id"`
}

type UpdateAlertStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type AdmitRequest struct {
	Fingerprint string `json:"fingerprint" binding:"required"`
	UserID      int64  `json:"user_id" binding:"required"`
}

type ClaimRequest struct {
	Claimant string `json:"claimant" binding:"required"`
}

type ClaimResponse struct {
	EntryID       string `json:"entry_id"`
	Fingerprint   string `json:"fingerprint"`
	Status        string `json:"status"`
	ReservedBy    string `json:"reserved_by"`
	ReservedUntil string `json:"reserved_until,omitempty"`
}

type CreateIdentityRequest struct {
	Platform  string `json:"platform" binding:"required"`
	Purpose   string `json:"purpose"`
	Username  string `json:"username" binding:"required"`
	UserAgent string `json:"user_agent"`
	ProxyURL  string `json:"proxy_url"`
}

type CreateIdentityResponse struct {
	IdentityID int64 `json:"identity_id"`
}

type PlatformHealthResponse struct {
	Platform    string  `json:"platform"`
	Reliability float64 `json:"reliability"`
	Successes   int64   `json:"successes"`
	Failures    int64   `json:"failures"`
	BreakerOpen bool    `json:"breaker_open"`
	LastFetch   string  `json:"last_fetch,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
