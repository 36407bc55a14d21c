// Package source opens the MJPEG byte streams a viewer session reads from.
// Every source here satisfies stream.Opener.
package source

import (
	"context"
	"io"
	"sync"
)

// ctxReader closes rc when ctx is cancelled so a blocked Read returns.
type ctxReader struct {
	rc   io.ReadCloser
	stop func() bool
	once sync.Once
	err  error
}

func closeOnCancel(ctx context.Context, rc io.ReadCloser) io.ReadCloser {
	r := &ctxReader{rc: rc}
	r.stop = context.AfterFunc(ctx, func() { r.Close() })
	return r
}

func (r *ctxReader) Read(p []byte) (int, error) {
	return r.rc.Read(p)
}

func (r *ctxReader) Close() error {
	r.once.Do(func() {
		if r.stop != nil {
			r.stop()
		}
		r.err = r.rc.Close()
	})
	return r.err
}
