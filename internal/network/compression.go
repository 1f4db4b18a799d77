// internal/network/compression.go
package network

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

var (
	gzipReaders   = sync.Pool{New: func() any { return new(gzip.Reader) }}
	brotliReaders = sync.Pool{New: func() any { return brotli.NewReader(nil) }}
)

// CompressionMiddleware advertises br/gzip/deflate on outgoing requests and
// transparently decodes the response body. Observation payloads are large
// HTML documents plus a base64 screenshot, so servers that compress save a lot.
type CompressionMiddleware struct {
	Transport http.RoundTripper
}

// NewCompressionMiddleware wraps transport, or http.DefaultTransport when nil.
func NewCompressionMiddleware(transport http.RoundTripper) *CompressionMiddleware {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &CompressionMiddleware{Transport: transport}
}

// RoundTrip implements http.RoundTripper.
func (cm *CompressionMiddleware) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("Accept-Encoding", "br, gzip, deflate")
	}

	resp, err := cm.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if err := DecompressResponse(resp); err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to initialize response decompression: %w", err)
	}
	return resp, nil
}

// decodedBody closes the decoder, releases pooled state and closes the wrapped body.
type decodedBody struct {
	io.Reader
	closeDecoder func() error
	underlying   io.ReadCloser
}

func (b *decodedBody) Close() error {
	var decErr error
	if b.closeDecoder != nil {
		decErr = b.closeDecoder()
		b.closeDecoder = nil
	}
	return errors.Join(decErr, b.underlying.Close())
}

// DecompressResponse replaces resp.Body with a decoding reader according to
// Content-Encoding. Stacked encodings are undone in reverse order. On error the
// body may be partly consumed and the response must be discarded.
func DecompressResponse(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}
	encodings := resp.Header.Values("Content-Encoding")
	if len(encodings) == 0 {
		return nil
	}

	for i := len(encodings) - 1; i >= 0; i-- {
		for _, layer := range splitEncodings(encodings[i]) {
			body, err := decodeLayer(layer, resp.Body)
			if err != nil {
				return err
			}
			if body != nil {
				resp.Body = body
			}
		}
	}

	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

// splitEncodings returns the comma separated layers of one header value, last applied first.
func splitEncodings(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for i := len(parts) - 1; i >= 0; i-- {
		out = append(out, strings.ToLower(strings.TrimSpace(parts[i])))
	}
	return out
}

func decodeLayer(encoding string, body io.ReadCloser) (io.ReadCloser, error) {
	switch encoding {
	case "", "identity":
		return nil, nil

	case "gzip", "x-gzip":
		zr := gzipReaders.Get().(*gzip.Reader)
		if err := zr.Reset(body); err != nil {
			gzipReaders.Put(zr)
			return nil, fmt.Errorf("gzip initialization error: %w", err)
		}
		return &decodedBody{Reader: zr, underlying: body, closeDecoder: func() error {
			err := zr.Close()
			gzipReaders.Put(zr)
			return err
		}}, nil

	case "br":
		br := brotliReaders.Get().(*brotli.Reader)
		if err := br.Reset(body); err != nil {
			brotliReaders.Put(br)
			return nil, fmt.Errorf("brotli initialization error: %w", err)
		}
		return &decodedBody{Reader: br, underlying: body, closeDecoder: func() error {
			brotliReaders.Put(br)
			return nil
		}}, nil

	case "deflate":
		rc, err := newDeflateReader(body)
		if err != nil {
			return nil, fmt.Errorf("deflate initialization error: %w", err)
		}
		return &decodedBody{Reader: rc, underlying: body, closeDecoder: rc.Close}, nil
	}
	return nil, fmt.Errorf("unsupported Content-Encoding layer: %s", encoding)
}

// newDeflateReader accepts both zlib-wrapped (RFC 1950) and raw (RFC 1951)
// deflate streams, since servers disagree on what "deflate" means.
func newDeflateReader(r io.Reader) (io.ReadCloser, error) {
	buffered := bufio.NewReader(r)
	header, err := buffered.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if isZlibHeader(header) {
		return zlib.NewReader(buffered)
	}
	return flate.NewReader(buffered), nil
}

// isZlibHeader checks the CMF/FLG pair: deflate method and a valid check sum.
func isZlibHeader(h []byte) bool {
	if len(h) < 2 {
		return false
	}
	cmf, flg := uint16(h[0]), uint16(h[1])
	return cmf&0x0f == 8 && (cmf<<8|flg)%31 == 0
}
