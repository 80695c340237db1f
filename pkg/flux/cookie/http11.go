package cookie

import "github.com/fluxhttp/flux/pkg/flux/http11"

var setCookieHeader = []byte("Set-Cookie")
var cookieHeader = []byte("Cookie")

// FromRequest parses all cookies off req's Cookie header.
func FromRequest(req *http11.Request) []Cookie {
	return Parse(string(req.GetHeader(cookieHeader)))
}

// SetOn appends a Set-Cookie header to res for name=value under opts. Each
// call adds an independent header entry; multiple cookies on one response
// are never merged into one header line.
func SetOn(res *http11.ResponseWriter, name, value string, opts Options) error {
	return res.Header().Add(setCookieHeader, []byte(New(name, value, opts)))
}
