package utils

import (
	"time"
)

// Token and session time constants
const (
	// AccessTokenTTL is the time-to-live for access tokens (24 hours)
	AccessTokenTTL = 24 * time.Hour

	// AccessTokenTTLSeconds is the time-to-live for access tokens in seconds (86400 seconds = 24 hours)
	AccessTokenTTLSeconds = 86400

	// RefreshTokenTTL is the time-to-live for refresh tokens (7 days)
	RefreshTokenTTL = 7 * 24 * time.Hour

	// SessionTimeout is the default session timeout (24 hours)
	SessionTimeout = 24 * time.Hour
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

// Settlement constants
const (
	VNDCurrency = "VND"

	// ReleaseDisputeGraceWindow is how long after a release a buyer may
	// still open a dispute against the released milestone.
	ReleaseDisputeGraceWindow = 72 * time.Hour

	// MaxMilestonesPerQuote caps the length of a payment schedule.
	MaxMilestonesPerQuote = 20

	// PriceListCacheTTL is how long resolved price lists stay in Redis
	// before the next read goes back to the database.
	PriceListCacheTTL = 5 * time.Minute
)

// DefaultMilestoneSplits is the deposit/progress/completion split applied
// when a quote is accepted without an explicit payment schedule.
var DefaultMilestoneSplits = []float64{0.30, 0.40, 0.30}

// DefaultMilestoneNames labels the milestones created from DefaultMilestoneSplits.
var DefaultMilestoneNames = []string{"Tạm ứng", "Triển khai", "Nghiệm thu"}

// Request metadata context keys shared between handlers and flows.
const (
	RequestIDKey = "X-Request-ID"
	UserAgentKey = "User-Agent"
	IPAddressKey = "IP-Address"
	EndpointKey  = "Endpoint"
	TimeoutKey   = "Timeout"
	CancelFuncKey = "Cancel-Func"
)
