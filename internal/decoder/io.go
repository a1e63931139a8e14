package decoder

import (
	"errors"
	"io"

	"github.com/outpost-audio/bridge/internal/tag"
)

// InputStream is the contract the bridge consumes from its input
// collaborator (spec.md §6). Update/IsReady/IsAvailable/IsEOF/Read
// assume the caller already holds whatever lock protects the stream's
// internal state; Lock/Unlock/Wait/Broadcast expose that lock/condvar
// pair directly so decoder_read and OpenUri can wait on it. For
// streams opened through Bridge.OpenUri this lock is literally
// DecoderControl's own mutex/cond (spec.md §4.5: "opens an input
// stream sharing dc.mutex/dc.cond"), which is why CancelRead below can
// read dc.Command without taking any additional lock.
type InputStream interface {
	Update()
	IsReady() bool
	IsAvailable() bool
	IsEOF() bool
	Read(buf []byte) (int, error)
	LockReadTag() *tag.Tag

	Lock()
	Unlock()
	Wait()
	Broadcast()
}

// Opener opens an input stream that shares the given Control's
// mutex/condvar, as spec.md §4.5 requires of streams opened via
// Bridge.OpenUri.
type Opener func(uri string, dc *Control) (InputStream, error)

// Client is the capability decoder_read and friends need from
// whatever owns decode-cancellation and error-capture state — the
// typed-capability reimplementation of the original's DecoderClient
// cast (spec.md §9). *Bridge implements it; nil is also accepted,
// matching the original's "or nil" client (reads just log instead of
// capturing).
type Client interface {
	CancelRead() bool
	CaptureError(kind ErrorKind, err error)
}

// Read is decoder_read: a cancellable, blocking read of up to
// len(buf) bytes from is. Returns 0 on EOF, on a short read caused by
// a runtime error (captured into client, or logged if client is nil),
// or immediately if client reports the read should be cancelled.
func Read(client Client, is InputStream, buf []byte, logger Logger) int {
	if len(buf) == 0 {
		return 0
	}

	is.Lock()
	defer is.Unlock()

	for {
		if client != nil && client.CancelRead() {
			return 0
		}
		if is.IsAvailable() {
			break
		}
		is.Wait()
	}

	n, err := is.Read(buf)
	if errors.Is(err, io.EOF) {
		return n
	}
	if err != nil {
		if client != nil {
			client.CaptureError(ErrorKindIO, err)
		} else if logger != nil {
			logger.Error("decoder: input stream read failed", "err", err)
		}
		return 0
	}
	return n
}

// ReadFull repeats Read until buf is entirely filled, or returns false
// on a short read.
func ReadFull(client Client, is InputStream, buf []byte, logger Logger) bool {
	for len(buf) > 0 {
		n := Read(client, is, buf, logger)
		if n == 0 {
			return false
		}
		buf = buf[n:]
	}
	return true
}

// Skip discards size bytes from is using a small fixed scratch
// buffer, same contract as ReadFull.
func Skip(client Client, is InputStream, size int, logger Logger) bool {
	var scratch [1024]byte
	for size > 0 {
		n := len(scratch)
		if size < n {
			n = size
		}
		got := Read(client, is, scratch[:n], logger)
		if got == 0 {
			return false
		}
		size -= got
	}
	return true
}

// Logger is the small subset of charmbracelet/log's Logger this
// package needs, kept as an interface so tests can pass nil/a fake
// without pulling the real logging stack into the decoder package.
type Logger interface {
	Error(msg interface{}, keyvals ...interface{})
	Warn(msg interface{}, keyvals ...interface{})
	Debug(msg interface{}, keyvals ...interface{})
}
