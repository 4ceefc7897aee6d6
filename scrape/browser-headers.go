package scrape

import "net/http"

// Used when the extractor does not run on behalf of a browser request.
const (
	fallbackAccept     = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	fallbackConnection = "keep-alive"
	fallbackUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

var browserHeaderNames = []string{"Accept", "Connection", "User-Agent"}

// BrowserHeaders returns the Accept, Connection and User-Agent headers of the
// incoming request r. Missing headers, or all of them when r is nil, are
// replaced by those of a desktop browser.
func BrowserHeaders(r *http.Request) http.Header {
	headers := http.Header{
		"Accept":     {fallbackAccept},
		"Connection": {fallbackConnection},
		"User-Agent": {fallbackUserAgent},
	}
	if r == nil {
		return headers
	}
	for _, name := range browserHeaderNames {
		if v := r.Header.Get(name); v != "" {
			headers.Set(name, v)
		}
	}
	return headers
}
