package server

import (
	"crypto/tls"

	"golang.org/x/crypto/acme/autocert"
)

// ListenAndServeAutocert listens on Config.Addr (normally ":443") serving
// TLS certificates obtained and renewed automatically via ACME/Let's
// Encrypt for the given hostnames, caching issued certificates under
// cacheDir. This is an operational convenience layered on top of the core's
// TLS support — it does not make the core a TLS-terminating reverse proxy,
// it just saves embedders who do want direct TLS from hand-rolling
// certificate management.
func (s *BaseServer) ListenAndServeAutocert(cacheDir string, hostnames ...string) error {
	m := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(hostnames...),
	}
	if cacheDir != "" {
		m.Cache = autocert.DirCache(cacheDir)
	}

	tlsConfig := &tls.Config{GetCertificate: m.GetCertificate}
	if s.config.TLSConfig != nil {
		clone := s.config.TLSConfig.Clone()
		clone.GetCertificate = m.GetCertificate
		tlsConfig = clone
	}

	l, err := tls.Listen("tcp", s.config.Addr, tlsConfig)
	if err != nil {
		return err
	}
	return s.Serve(l)
}
