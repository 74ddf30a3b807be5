package github

import (
	"net/url"
	"strings"
)

// CacheKey returns the response cache key for a GET request: the endpoint
// followed by the canonical query. Values are trimmed, empty values are
// dropped, and url.Values.Encode sorts by key, so equal logical requests
// share a key regardless of parameter order.
func CacheKey(endpoint string, params url.Values) string {
	return endpoint + "?" + canonical(params).Encode()
}

func canonical(params url.Values) url.Values {
	out := make(url.Values, len(params))
	for key, values := range params {
		for _, v := range values {
			if v = strings.TrimSpace(v); v != "" {
				out.Add(key, v)
			}
		}
	}
	return out
}
