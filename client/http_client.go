package client

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/famomatic/tvdl/internal/cookies"
)

func defaultHTTPClient(proxyURL string) *http.Client {
	if strings.TrimSpace(proxyURL) == "" {
		return &http.Client{}
	}
	parsed, err := url.Parse(proxyURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return &http.Client{}
	}
	baseTransport, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return &http.Client{}
	}
	transport := baseTransport.Clone()
	transport.Proxy = http.ProxyURL(parsed)
	return &http.Client{Transport: transport}
}

// jobHTTPClient copies base and gives it a private cookie jar so that the
// session cookies of one job never leak into another.
func jobHTTPClient(base *http.Client, seed []*http.Cookie) *http.Client {
	jar, _ := cookiejar.New(nil)
	cookies.Seed(jar, seed, time.Now())
	c := *base
	c.Jar = jar
	return &c
}
