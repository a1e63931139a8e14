// Package inputstream implements the HTTP-backed InputStream the
// bridge opens via Bridge.OpenUri — a buffered, background-downloading
// reader grounded on the teacher's internal/audio.StreamReader, but
// rewired to share its lock/condvar with the decoder.Control it is
// opened against (spec.md §4.5), rather than owning a private one, and
// to use hashicorp/go-retryablehttp and golang.org/x/time/rate instead
// of a bare http.Client.
package inputstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/outpost-audio/bridge/internal/decoder"
	"github.com/outpost-audio/bridge/internal/tag"
)

// minBufferSize is how much of the stream must be downloaded before
// IsReady reports true, matching the teacher's 256KiB pre-roll.
const minBufferSize = 256 * 1024

// Client bundles the retryablehttp client and limiter an Opener
// closes over; one Client can open many streams.
type Client struct {
	http    *retryablehttp.Client
	limiter *rate.Limiter
	userAgent string
}

// NewClient builds a Client with retries/backoff and a token-bucket
// cap on request rate, per spec.md §4.11 domain-stack wiring.
func NewClient(retries int, timeout time.Duration, requestsPerSecond, burst int, userAgent string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = retries
	rc.HTTPClient.Timeout = timeout
	rc.Logger = nil

	return &Client{
		http:      rc,
		limiter:   rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		userAgent: userAgent,
	}
}

// Opener adapts the Client into a decoder.Opener.
func (c *Client) Opener() decoder.Opener {
	return func(uri string, dc *decoder.Control) (decoder.InputStream, error) {
		return c.open(uri, dc)
	}
}

// Stream is a decoder.InputStream whose lock/condvar are literally the
// decoder.Control's own mutex/cond (spec.md §4.5), downloading uri in
// the background into an in-memory buffer.
type Stream struct {
	dc *decoder.Control

	buffer     []byte
	totalSize  int64
	downloaded int64
	position   int64
	done       bool
	err        error
	tag        *tag.Tag

	cancel context.CancelFunc
}

func (c *Client) open(uri string, dc *decoder.Control) (decoder.InputStream, error) {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Stream{dc: dc, cancel: cancel}

	go c.download(ctx, uri, s)

	return s, nil
}

func (c *Client) download(ctx context.Context, uri string, s *Stream) {
	defer func() {
		s.dc.Lock()
		s.done = true
		s.dc.Unlock()
		s.dc.Cond.Broadcast()
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		s.dc.Lock()
		s.err = err
		s.dc.Unlock()
		return
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		s.dc.Lock()
		s.err = err
		s.dc.Unlock()
		return
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "audio/mpeg, audio/mp4, audio/*")
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := c.http.Do(req)
	if err != nil {
		s.dc.Lock()
		s.err = err
		s.dc.Unlock()
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		s.dc.Lock()
		s.err = fmt.Errorf("inputstream: HTTP %d: %s", resp.StatusCode, resp.Status)
		s.dc.Unlock()
		return
	}

	if cl := resp.ContentLength; cl > 0 {
		s.dc.Lock()
		s.totalSize = cl
		s.dc.Unlock()
	}

	buf := make([]byte, 64*1024)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			s.dc.Lock()
			s.buffer = append(s.buffer, buf[:n]...)
			s.downloaded += int64(n)
			s.dc.Unlock()
			s.dc.Cond.Broadcast()
		}

		if rerr != nil {
			if rerr != io.EOF {
				s.dc.Lock()
				s.err = rerr
				s.dc.Unlock()
			}
			return
		}
	}
}

// Update is a no-op: Stream's state is pushed by the background
// downloader rather than polled.
func (s *Stream) Update() {}

// IsReady reports whether enough of the stream has buffered to safely
// start decoding, or the stream has already finished/failed.
func (s *Stream) IsReady() bool {
	return s.done || s.err != nil || s.downloaded >= minBufferSize || (s.totalSize > 0 && s.downloaded >= s.totalSize)
}

// IsAvailable reports whether at least one more byte can be read
// without blocking.
func (s *Stream) IsAvailable() bool {
	return int64(len(s.buffer))-s.position > 0 || s.done || s.err != nil
}

func (s *Stream) IsEOF() bool {
	return s.done && int64(len(s.buffer))-s.position <= 0
}

// Read assumes the caller holds dc's lock (spec.md §4.5).
func (s *Stream) Read(p []byte) (int, error) {
	if s.err != nil && s.err != io.EOF {
		return 0, s.err
	}

	available := int64(len(s.buffer)) - s.position
	if available <= 0 {
		if s.done {
			return 0, io.EOF
		}
		return 0, nil
	}

	n := int64(len(p))
	if n > available {
		n = available
	}
	copy(p, s.buffer[s.position:s.position+n])
	s.position += n
	return int(n), nil
}

// LockReadTag returns (and clears) a one-shot stream tag, e.g. ICY
// metadata; HTTP streams here carry none, matching spec.md's "stream
// tag may be nil" case.
func (s *Stream) LockReadTag() *tag.Tag {
	t := s.tag
	s.tag = nil
	return t
}

func (s *Stream) Lock()       { s.dc.Lock() }
func (s *Stream) Unlock()     { s.dc.Unlock() }
func (s *Stream) Wait()       { s.dc.Cond.Wait() }
func (s *Stream) Broadcast()  { s.dc.Cond.Broadcast() }

// Close cancels the background download.
func (s *Stream) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}
