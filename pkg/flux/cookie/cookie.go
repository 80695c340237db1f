// Package cookie provides a thin encode/decode layer over the Cookie and
// Set-Cookie header values — request parsing and response composition, not
// a session store. Grounded on original_source/plugins/cookie.c.
package cookie

import (
	"fmt"
	"strconv"
	"strings"
)

// Cookie is one name/value pair parsed from a request's Cookie header.
type Cookie struct {
	Name  string
	Value string
}

// Parse splits a request's raw Cookie header value ("a=1; b=2") into its
// individual name/value pairs. Malformed segments (no '=') are skipped.
func Parse(header string) []Cookie {
	if header == "" {
		return nil
	}
	parts := strings.Split(header, ";")
	out := make([]Cookie, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		eq := strings.IndexByte(p, '=')
		if eq < 0 {
			continue
		}
		out = append(out, Cookie{Name: p[:eq], Value: p[eq+1:]})
	}
	return out
}

// Get returns the value of the first cookie named name in header, and
// whether it was present.
func Get(header, name string) (string, bool) {
	for _, c := range Parse(header) {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

// SameSite is the SameSite attribute of a Set-Cookie header.
type SameSite int

const (
	SameSiteDefault SameSite = iota
	SameSiteLax
	SameSiteStrict
	SameSiteNone
)

func (s SameSite) String() string {
	switch s {
	case SameSiteLax:
		return "Lax"
	case SameSiteStrict:
		return "Strict"
	case SameSiteNone:
		return "None"
	default:
		return ""
	}
}

// Options configures the attributes of a composed Set-Cookie value. The
// zero value sets no attributes; DefaultOptions returns cookie.c's
// set_cookie defaults: Path=/, HttpOnly, Secure, SameSite=Lax.
type Options struct {
	MaxAge   int // seconds; <= 0 omits Max-Age
	Path     string
	Domain   string
	HTTPOnly bool
	Secure   bool
	SameSite SameSite
}

// DefaultOptions mirrors cookie.c's hardcoded attribute set.
func DefaultOptions() Options {
	return Options{
		Path:     "/",
		HTTPOnly: true,
		Secure:   true,
		SameSite: SameSiteLax,
	}
}

// New composes a single Set-Cookie header value for name=value under opts.
// CR/LF in name or value are rejected by the caller via Header.Add's own
// validation; New itself does not scan for them.
func New(name, value string, opts Options) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s=%s", name, value)
	if opts.MaxAge > 0 {
		b.WriteString("; Max-Age=")
		b.WriteString(strconv.Itoa(opts.MaxAge))
	}
	if opts.Path != "" {
		b.WriteString("; Path=")
		b.WriteString(opts.Path)
	}
	if opts.Domain != "" {
		b.WriteString("; Domain=")
		b.WriteString(opts.Domain)
	}
	if opts.HTTPOnly {
		b.WriteString("; HttpOnly")
	}
	if opts.Secure {
		b.WriteString("; Secure")
	}
	if s := opts.SameSite.String(); s != "" {
		b.WriteString("; SameSite=")
		b.WriteString(s)
	}
	return b.String()
}
