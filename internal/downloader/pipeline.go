package downloader

import (
	"context"
	"crypto/cipher"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/famomatic/tvdl/internal/m3u8"
	"github.com/famomatic/tvdl/internal/metrics"
	"github.com/famomatic/tvdl/internal/types"
)

// Result summarizes one pipeline run. Status is completed, cancelled or
// failed; the counters cover what reached the sink.
type Result struct {
	Status   types.JobStatus
	Segments int
	Bytes    int64
}

// Pipeline fetches, decrypts and appends segments strictly in order on the
// calling goroutine.
type Pipeline struct {
	Fetcher      Fetcher
	StripPadding bool
	Metrics      *metrics.Recorder
}

// Run processes every segment of playlist into sink. key may be nil for
// unencrypted playlists. cancel is polled before each segment; an in-flight
// segment always completes first. On cancellation the returned error wraps
// types.ErrCancelled. Bytes already written stay in sink on every exit path.
func (p *Pipeline) Run(ctx context.Context, playlist m3u8.MediaPlaylist, key []byte, sink io.Writer, progress ProgressFunc, cancel CancelFlag) (Result, error) {
	res := Result{Status: types.JobStatusFailed}

	var block cipher.Block
	if key != nil {
		b, err := NewKeyCipher(key)
		if err != nil {
			return res, err
		}
		block = b
	}

	for _, seg := range playlist {
		if cancel != nil && cancel.Load() {
			res.Status = types.JobStatusCancelled
			return res, types.ErrCancelled
		}
		if err := ctx.Err(); err != nil {
			res.Status = types.JobStatusCancelled
			return res, fmt.Errorf("%w: %v", types.ErrCancelled, err)
		}

		// IV index is the count of segments completed so far, plus one.
		index := res.Segments + 1

		started := time.Now()
		data, err := p.Fetcher.Fetch(ctx, seg.URI)
		p.Metrics.ObserveFetch(metrics.FetchSegment, time.Since(started))
		if err != nil {
			if errors.Is(err, types.ErrCancelled) {
				res.Status = types.JobStatusCancelled
			}
			return res, err
		}

		if seg.Encrypted() {
			if block == nil {
				return res, &types.DecryptError{Segment: index, Reason: "segment references a key but none was provided"}
			}
			data, err = DecryptSegment(block, index, data, p.StripPadding)
			if err != nil {
				return res, err
			}
		}

		n, err := sink.Write(data)
		res.Bytes += int64(n)
		if err != nil {
			return res, &types.WriteError{Path: sinkName(sink), Err: err}
		}
		res.Segments++
		p.Metrics.SegmentWritten(n)

		if progress != nil {
			progress(res.Segments, res.Bytes)
		}
	}

	res.Status = types.JobStatusCompleted
	return res, nil
}

func sinkName(w io.Writer) string {
	if named, ok := w.(interface{ Name() string }); ok {
		return named.Name()
	}
	return fmt.Sprintf("%T", w)
}
