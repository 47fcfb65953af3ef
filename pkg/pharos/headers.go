package pharos

import "math/rand"

const (
	// LoginMessage is the plain text every account signs to log in.
	LoginMessage = "pharos"
	// DefaultBaseURL is the public task API.
	DefaultBaseURL = "https://api.pharosnetwork.xyz"
	// DefaultInviteCode is sent with every login.
	DefaultInviteCode = "S6NGMzXSCDBxhnwo"
	// DefaultVerifyTaskID identifies the native transfer task.
	DefaultVerifyTaskID = 103
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/136.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36 Edg/135.0.0.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/136.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/134.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:137.0) Gecko/20100101 Firefox/137.0",
	"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:136.0) Gecko/20100101 Firefox/136.0",
}

// RandomUserAgent returns a browser user agent string.
func RandomUserAgent() string {
	return userAgents[rand.Intn(len(userAgents))]
}

// BaseHeaders returns the unauthenticated browser-like header set.
func BaseHeaders(userAgent string) map[string]string {
	if userAgent == "" {
		userAgent = RandomUserAgent()
	}
	return map[string]string{
		"accept":             "application/json, text/plain, */*",
		"accept-language":    "en-US,en;q=0.8",
		"authorization":      "Bearer null",
		"sec-ch-ua":          `"Chromium";v="136", "Brave";v="136", "Not.A/Brand";v="99"`,
		"sec-ch-ua-mobile":   "?0",
		"sec-ch-ua-platform": `"Windows"`,
		"sec-fetch-dest":     "empty",
		"sec-fetch-mode":     "cors",
		"sec-fetch-site":     "same-site",
		"sec-gpc":            "1",
		"Referer":            "https://testnet.pharosnetwork.xyz/",
		"Referrer-Policy":    "strict-origin-when-cross-origin",
		"User-Agent":         userAgent,
	}
}

// WithBearer copies headers and sets the authorization token.
func WithBearer(headers map[string]string, token string) map[string]string {
	out := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		out[k] = v
	}
	out["authorization"] = "Bearer " + token
	return out
}
