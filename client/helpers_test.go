package client

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	grafov "github.com/grafov/m3u8"
)

const testKey = "0123456789abcdef"

// fakeService serves the playlist lookup, a master playlist, one media
// playlist per bandwidth, a key and encrypted segments.
type fakeService struct {
	t          *testing.T
	server     *httptest.Server
	bandwidths []uint32
	plain      [][]byte
	requests   atomic.Int64
	keyHits    atomic.Int64
	// rotateKey switches the second half of the media playlist to /key2.
	rotateKey bool

	mu         sync.Mutex
	segHits    map[int]int
	segDelay   time.Duration
	onSegment  func(index int)
	cookieSeen []string
}

func newFakeService(t *testing.T, segments int, bandwidths ...uint32) *fakeService {
	t.Helper()
	if len(bandwidths) == 0 {
		bandwidths = []uint32{800000, 1200000}
	}
	fs := &fakeService{t: t, bandwidths: bandwidths, segHits: make(map[int]int)}
	for i := 1; i <= segments; i++ {
		fs.plain = append(fs.plain, bytes.Repeat([]byte{byte(i)}, 32*i))
	}
	fs.server = httptest.NewServer(http.HandlerFunc(fs.serve))
	t.Cleanup(fs.server.Close)
	return fs
}

func (fs *fakeService) serve(w http.ResponseWriter, r *http.Request) {
	fs.requests.Add(1)
	if c, err := r.Cookie("session"); err == nil {
		fs.mu.Lock()
		fs.cookieSeen = append(fs.cookieSeen, r.URL.Path+"="+c.Value)
		fs.mu.Unlock()
	}
	switch {
	case r.URL.Path == "/lookup":
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "s-" + r.URL.Query().Get("idMedia"), Path: "/"})
		_ = json.NewEncoder(w).Encode(map[string]any{"errorCode": 0, "url": fs.server.URL + "/master.m3u8"})
	case r.URL.Path == "/master.m3u8":
		_, _ = w.Write([]byte(fs.master()))
	case strings.HasSuffix(r.URL.Path, "/index.m3u8"):
		_, _ = w.Write([]byte(fs.media()))
	case r.URL.Path == "/key" || r.URL.Path == "/key2":
		fs.keyHits.Add(1)
		_, _ = w.Write([]byte(testKey))
	case strings.HasPrefix(r.URL.Path, "/v/seg-"):
		var index int
		if _, err := fmt.Sscanf(r.URL.Path, "/v/seg-%d.ts", &index); err != nil || index < 1 || index > len(fs.plain) {
			http.NotFound(w, r)
			return
		}
		fs.mu.Lock()
		fs.segHits[index]++
		delay, hook := fs.segDelay, fs.onSegment
		fs.mu.Unlock()
		if hook != nil {
			hook(index)
		}
		if delay > 0 {
			time.Sleep(delay)
		}
		_, _ = w.Write(encryptSegment(fs.t, fs.plain[index-1], index))
	default:
		http.NotFound(w, r)
	}
}

func (fs *fakeService) master() string {
	master := grafov.NewMasterPlaylist()
	for _, bw := range fs.bandwidths {
		chunk, err := grafov.NewMediaPlaylist(0, 1)
		if err != nil {
			fs.t.Fatalf("NewMediaPlaylist() error = %v", err)
		}
		master.Append(fmt.Sprintf("v/%d/index.m3u8", bw), chunk, grafov.VariantParams{Bandwidth: bw})
	}
	return master.Encode().String()
}

func (fs *fakeService) media() string {
	media, err := grafov.NewMediaPlaylist(0, uint(len(fs.plain)))
	if err != nil {
		fs.t.Fatalf("NewMediaPlaylist() error = %v", err)
	}
	media.Key = &grafov.Key{Method: "AES-128", URI: fs.server.URL + "/key"}
	for i := range fs.plain {
		if err := media.Append(fmt.Sprintf("%s/v/seg-%d.ts", fs.server.URL, i+1), 6, ""); err != nil {
			fs.t.Fatalf("Append() error = %v", err)
		}
	}
	media.Close()
	text := media.Encode().String()
	if !fs.rotateKey {
		return text
	}
	// Insert a second key before the segment in the middle of the list.
	mid := fmt.Sprintf("%s/v/seg-%d.ts", fs.server.URL, len(fs.plain)/2+1)
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if line == mid {
			key := fmt.Sprintf(`#EXT-X-KEY:METHOD=AES-128,URI="%s/key2"`, fs.server.URL)
			// lines[i-1] is the segment's EXTINF.
			lines = append(lines[:i-1], append([]string{key}, lines[i-1:]...)...)
			break
		}
	}
	return strings.Join(lines, "\n")
}

func (fs *fakeService) hits(index int) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.segHits[index]
}

func (fs *fakeService) config() Config {
	return Config{
		HTTPClient:       fs.server.Client(),
		PlaylistEndpoint: fs.server.URL + "/lookup",
		RequestTimeout:   2 * time.Second,
	}
}

func (fs *fakeService) plaintext() []byte {
	return bytes.Join(fs.plain, nil)
}

func encryptSegment(t *testing.T, plain []byte, index int) []byte {
	t.Helper()
	block, err := aes.NewCipher([]byte(testKey))
	if err != nil {
		t.Fatalf("aes.NewCipher() error = %v", err)
	}
	var iv [aes.BlockSize]byte
	binary.BigEndian.PutUint32(iv[12:], uint32(index))
	out := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, iv[:]).CryptBlocks(out, plain)
	return out
}
