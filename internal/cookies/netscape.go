// Package cookies loads Netscape cookies.txt files into per-job cookie jars.
package cookies

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const httpOnlyPrefix = "#HttpOnly_"

// ParseNetscape parses the tab-separated cookies.txt format:
// domain, include-subdomains, path, secure, expiry, name, value.
// Malformed lines are skipped. Domain carries a leading dot only when
// include-subdomains is TRUE; a bare host marks a host-only cookie.
func ParseNetscape(r io.Reader) ([]*http.Cookie, error) {
	var out []*http.Cookie
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		httpOnly := false
		if strings.HasPrefix(line, httpOnlyPrefix) {
			httpOnly = true
			line = strings.TrimPrefix(line, httpOnlyPrefix)
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, "\t")
		if len(parts) < 7 {
			continue
		}
		domain := strings.TrimPrefix(parts[0], ".")
		if strings.EqualFold(parts[1], "TRUE") {
			domain = "." + domain
		}
		c := &http.Cookie{
			Domain:   domain,
			Path:     parts[2],
			Secure:   strings.EqualFold(parts[3], "TRUE"),
			Name:     parts[5],
			Value:    parts[6],
			HttpOnly: httpOnly,
		}
		if expires, err := strconv.ParseInt(parts[4], 10, 64); err == nil && expires > 0 {
			c.Expires = time.Unix(expires, 0)
		}
		out = append(out, c)
	}
	return out, scanner.Err()
}

// LoadFile parses the cookies file at path.
func LoadFile(path string) ([]*http.Cookie, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cookies file: %w", err)
	}
	defer f.Close()
	return ParseNetscape(f)
}

// Seed stores cookies in jar, keyed by the URL their domain and path imply.
// Cookies whose Domain lacks a leading dot are stored host-only. Expired
// cookies are dropped.
func Seed(jar http.CookieJar, list []*http.Cookie, now time.Time) {
	if jar == nil {
		return
	}
	grouped := make(map[string][]*http.Cookie)
	urls := make(map[string]*url.URL)
	for _, c := range list {
		if !c.Expires.IsZero() && c.Expires.Before(now) {
			continue
		}
		host := strings.TrimPrefix(c.Domain, ".")
		if host == "" {
			continue
		}
		scheme := "http"
		if c.Secure {
			scheme = "https"
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		u := &url.URL{Scheme: scheme, Host: host, Path: path}
		key := u.String()
		urls[key] = u
		cp := *c
		if !strings.HasPrefix(c.Domain, ".") {
			cp.Domain = ""
		}
		grouped[key] = append(grouped[key], &cp)
	}
	for key, cs := range grouped {
		jar.SetCookies(urls[key], cs)
	}
}
