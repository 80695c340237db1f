package http11

// Limits bounds the sizes a Parser enforces while reading a request. The
// zero value is not useful; construct via DefaultLimits and override
// individual fields as each is overridable per deployment.
//
// The inline storage thresholds in Header (MaxHeaderName, MaxHeaderValue)
// are a distinct, lower-level concern: they decide when a header moves
// from zero-allocation inline storage to the overflow map, not whether a
// request is accepted. Limits is the accept/reject policy layered on top.
type Limits struct {
	// MaxURILength caps the Request-URI (path + query), default 2048.
	MaxURILength int

	// MaxRequestLineSize caps the full "METHOD URI HTTP/1.1" line.
	MaxRequestLineSize int

	// MaxHeaderCount caps the total number of headers, inline plus
	// overflow combined, default 100.
	MaxHeaderCount int

	// MaxHeadersSize caps the combined byte size of the header block.
	MaxHeadersSize int

	// MaxBodySize is the default body size cap, default 1 MiB. A handler
	// can override it per-request via Stream.Limit (body_limit).
	MaxBodySize int64
}

// DefaultLimits returns the baseline: a 2048-byte URI, a 100-header cap,
// 8KB of header bytes per header's share of the block, and a 1 MiB body.
func DefaultLimits() Limits {
	return Limits{
		MaxURILength:       2048,
		MaxRequestLineSize: 2048 + MaxHeaderName + 16,
		MaxHeaderCount:     100,
		MaxHeadersSize:     100 * 8192,
		MaxBodySize:        1 << 20,
	}
}
