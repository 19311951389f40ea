package downloader

import "net/http"

// DefaultUserAgent is sent when the configured headers carry none.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"

// CloneHeader returns a deep copy of h.
func CloneHeader(h http.Header) http.Header {
	if h == nil {
		return nil
	}
	out := make(http.Header, len(h))
	for k, vals := range h {
		cp := make([]string, len(vals))
		copy(cp, vals)
		out[k] = cp
	}
	return out
}

// RequestHeaders copies h and fills in a User-Agent when absent.
func RequestHeaders(h http.Header) http.Header {
	out := CloneHeader(h)
	if out == nil {
		out = make(http.Header)
	}
	if out.Get("User-Agent") == "" {
		out.Set("User-Agent", DefaultUserAgent)
	}
	return out
}

func applyRequestHeaders(req *http.Request, headers http.Header) {
	for k, vals := range headers {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
}
