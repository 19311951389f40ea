package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/famomatic/tvdl/internal/metrics"
	"github.com/famomatic/tvdl/internal/types"
)

// PlaylistResolver locates the master playlist of an episode.
type PlaylistResolver interface {
	ResolvePlaylist(ctx context.Context, f Fetcher, episode Episode) (string, error)
}

// ResolverFunc adapts a function to PlaylistResolver.
type ResolverFunc func(ctx context.Context, f Fetcher, episode Episode) (string, error)

func (fn ResolverFunc) ResolvePlaylist(ctx context.Context, f Fetcher, episode Episode) (string, error) {
	return fn(ctx, f, episode)
}

// JSONResolver queries a JSON validation endpoint with idMedia=<MediaID>.
type JSONResolver struct {
	Endpoint string
	Params   map[string]string
	Metrics  *metrics.Recorder
}

type playlistLookupResponse struct {
	ErrorCode json.RawMessage `json:"errorCode"`
	Message   string          `json:"message"`
	URL       string          `json:"url"`
}

// ResolvePlaylist implements PlaylistResolver.
func (r *JSONResolver) ResolvePlaylist(ctx context.Context, f Fetcher, episode Episode) (string, error) {
	lookupURL, err := r.lookupURL(episode)
	if err != nil {
		return "", err
	}

	started := time.Now()
	body, err := f.Fetch(ctx, lookupURL)
	r.Metrics.ObserveFetch(metrics.FetchManifest, time.Since(started))
	if err != nil {
		return "", err
	}

	var resp playlistLookupResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &types.TransportError{URL: lookupURL, Err: fmt.Errorf("decode playlist lookup: %w", err)}
	}
	if lookupFailed(resp.ErrorCode) {
		msg := strings.TrimSpace(resp.Message)
		if msg == "" {
			msg = "playlist lookup rejected: errorCode=" + string(resp.ErrorCode)
		}
		return "", &types.TransportError{URL: lookupURL, Err: errors.New(msg)}
	}
	if strings.TrimSpace(resp.URL) == "" {
		return "", &types.TransportError{URL: lookupURL, Err: errors.New("playlist lookup returned no url")}
	}
	return resp.URL, nil
}

func (r *JSONResolver) lookupURL(episode Episode) (string, error) {
	u, err := url.Parse(r.Endpoint)
	if err != nil {
		return "", &types.TransportError{URL: r.Endpoint, Err: fmt.Errorf("invalid playlist endpoint: %w", err)}
	}
	q := u.Query()
	for k, v := range r.Params {
		q.Set(k, v)
	}
	q.Set("idMedia", strconv.FormatInt(episode.MediaID, 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// lookupFailed treats absent, null, 0 and false as success.
func lookupFailed(code json.RawMessage) bool {
	code = bytes.TrimSpace(code)
	switch string(code) {
	case "", "null", "0", "false", `""`, `"0"`:
		return false
	default:
		return true
	}
}
