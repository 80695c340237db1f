package cors

import (
	"strconv"

	"github.com/fluxhttp/flux/pkg/flux/http11"
)

// Config is the documented default CORS policy, grounded on ecewo's Cors
// struct (include/ecewo/cors.h). It supplements the bare Preflight/Augment
// contract above with a concrete, commonly-wanted implementation; composing
// CORS headers beyond what this documented default does remains an
// external concern.
type Config struct {
	Origin      string // default "*"
	Methods     string // default "GET, POST, PUT, DELETE, PATCH, OPTIONS"
	Headers     string // default "Content-Type"
	Credentials bool   // default false
	MaxAge      int    // seconds, default 3600
}

// DefaultConfig returns ecewo's documented CORS defaults.
func DefaultConfig() Config {
	return Config{
		Origin:  "*",
		Methods: "GET, POST, PUT, DELETE, PATCH, OPTIONS",
		Headers: "Content-Type",
		MaxAge:  3600,
	}
}

type fromConfig struct {
	cfg Config
}

// FromConfig builds a Collaborator that answers preflight requests and
// augments responses according to cfg.
func FromConfig(cfg Config) Collaborator {
	return fromConfig{cfg: cfg}
}

var (
	headerOrigin      = []byte("Access-Control-Allow-Origin")
	headerMethods     = []byte("Access-Control-Allow-Methods")
	headerHeaders     = []byte("Access-Control-Allow-Headers")
	headerCredentials = []byte("Access-Control-Allow-Credentials")
	headerMaxAge      = []byte("Access-Control-Max-Age")
)

func (c fromConfig) apply(res *http11.ResponseWriter) {
	h := res.Header()
	if c.cfg.Origin != "" {
		h.Set(headerOrigin, []byte(c.cfg.Origin))
	}
	if c.cfg.Headers != "" {
		h.Set(headerHeaders, []byte(c.cfg.Headers))
	}
	if c.cfg.Credentials {
		h.Set(headerCredentials, []byte("true"))
	}
}

func (c fromConfig) Preflight(req, res interface{}) bool {
	r, ok1 := req.(*http11.Request)
	w, ok2 := res.(*http11.ResponseWriter)
	if !ok1 || !ok2 || !r.IsOPTIONS() {
		return false
	}
	c.apply(w)
	if c.cfg.Methods != "" {
		w.Header().Set(headerMethods, []byte(c.cfg.Methods))
	}
	if c.cfg.MaxAge > 0 {
		w.Header().Set(headerMaxAge, []byte(strconv.Itoa(c.cfg.MaxAge)))
	}
	w.WriteHeader(204)
	_, _ = w.Write(nil)
	_ = w.Flush()
	return true
}

func (c fromConfig) Augment(req, res interface{}) {
	if w, ok := res.(*http11.ResponseWriter); ok {
		c.apply(w)
	}
}
