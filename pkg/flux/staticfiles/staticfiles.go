// Package staticfiles adapts net/http's own static file serving
// (http.FileServer) to the http11 request/response types, rather than
// reimplementing range requests, ETags, and MIME sniffing from scratch.
// Grounded on original_source/include/ecewo/static.h's Static options.
package staticfiles

import (
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"path"
	"strconv"

	"github.com/fluxhttp/flux/pkg/flux/http11"
)

// Options mirrors ecewo's Static configuration struct.
type Options struct {
	IndexFile     string // default "index.html"; other values are not applied (http.FileServer always serves index.html)
	EnableETag    bool   // default true
	EnableCache   bool   // default true
	MaxAge        int    // seconds, default 3600
	ServeDotFiles bool   // default false
}

// DefaultOptions matches static.h's documented defaults.
func DefaultOptions() Options {
	return Options{
		IndexFile:   "index.html",
		EnableETag:  true,
		EnableCache: true,
		MaxAge:      3600,
	}
}

// Handler serves files under dir at requests whose path has mountPath
// stripped, using http.FileServer underneath. Returned as a
// server.RouteHandler-shaped function so it registers directly via
// Router.Get(mountPath+"/*", staticfiles.Handler(...)).
func Handler(mountPath, dir string, opts Options) func(req *http11.Request, res *http11.ResponseWriter) {
	if opts.IndexFile == "" {
		opts.IndexFile = "index.html"
	}
	fileServer := http.FileServer(http.Dir(dir))
	stripped := http.StripPrefix(mountPath, fileServer)

	return func(req *http11.Request, res *http11.ResponseWriter) {
		if !opts.ServeDotFiles && containsDotFile(req.Path()) {
			res.WriteError(404, "not found")
			return
		}

		httpReq, err := http.NewRequest(req.Method(), req.Path(), nil)
		if err != nil {
			res.WriteError(500, "internal error")
			return
		}
		rec := httptest.NewRecorder()
		stripped.ServeHTTP(rec, httpReq)

		if opts.EnableCache && rec.Code == 200 {
			res.Header().Set([]byte("Cache-Control"), []byte("public, max-age="+strconv.Itoa(opts.MaxAge)))
		}
		if opts.EnableETag && rec.Code == 200 {
			res.Header().Set([]byte("ETag"), []byte(weakETag(rec.Body.Bytes())))
		}
		for k, vs := range rec.Header() {
			for _, v := range vs {
				res.Header().Add([]byte(k), []byte(v))
			}
		}
		res.WriteHeader(rec.Code)
		_, _ = res.Write(rec.Body.Bytes())
		_ = res.Flush()
	}
}

// weakETag derives a content hash ETag. http.FileServer doesn't set one
// itself (only Last-Modified), so when EnableETag is on we compute it from
// the buffered response body.
func weakETag(body []byte) string {
	sum := sha1.Sum(body)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

func containsDotFile(p string) bool {
	for _, seg := range splitPath(p) {
		if len(seg) > 1 && seg[0] == '.' {
			return true
		}
	}
	return false
}

func splitPath(p string) []string {
	p = path.Clean("/" + p)
	var segs []string
	start := 1
	for i := 1; i <= len(p); i++ {
		if i == len(p) || p[i] == '/' {
			if i > start {
				segs = append(segs, p[start:i])
			}
			start = i + 1
		}
	}
	return segs
}
