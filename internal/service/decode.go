package service

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"io"
	"strings"
)

// decodeBody wraps body with a decoder for the given Content-Encoding.
// It reports false for encodings it cannot decode, in which case body is
// returned unchanged and the encoding must be relayed as-is.
func decodeBody(encoding string, body io.ReadCloser) (io.ReadCloser, bool) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return body, true
	case "gzip", "x-gzip":
		return &decodingReader{src: body, open: func(r io.Reader) (io.Reader, error) {
			return gzip.NewReader(r)
		}}, true
	case "deflate":
		return &decodingReader{src: body, open: openDeflate}, true
	default:
		return body, false
	}
}

// openDeflate accepts both zlib-wrapped and raw deflate streams; servers
// disagree on what "deflate" means.
func openDeflate(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(2)
	if err != nil {
		return nil, err
	}
	if head[0]&0x0f == 8 && (uint16(head[0])<<8|uint16(head[1]))%31 == 0 {
		return zlib.NewReader(br)
	}
	return flate.NewReader(br), nil
}

// decodingReader opens its decoder on first read so empty bodies (HEAD,
// 204, 304) never fail on a missing compression header.
type decodingReader struct {
	src  io.ReadCloser
	open func(io.Reader) (io.Reader, error)
	r    io.Reader
	err  error
}

func (d *decodingReader) Read(p []byte) (int, error) {
	if d.r == nil && d.err == nil {
		d.r, d.err = d.open(d.src)
	}
	if d.err != nil {
		return 0, d.err
	}
	return d.r.Read(p)
}

func (d *decodingReader) Close() error {
	if c, ok := d.r.(io.Closer); ok {
		_ = c.Close()
	}
	return d.src.Close()
}
