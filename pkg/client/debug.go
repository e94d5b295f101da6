package client

import (
	"net/http"
	"net/http/httputil"

	"github.com/rs/zerolog"
)

// debugTransport dumps every request and response at debug level.
//
// It sits between the OAuth1 signer and the base transport, so dumps show the
// signed request. The Authorization header is redacted before dumping.
// Bodies are included; do not enable in production.
type debugTransport struct {
	base   http.RoundTripper
	logger zerolog.Logger
}

func (dt *debugTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	redacted := req.Clone(req.Context())
	if redacted.Header.Get("Authorization") != "" {
		redacted.Header.Set("Authorization", "OAuth [redacted]")
	}
	if reqDump, err := httputil.DumpRequestOut(redacted, false); err == nil {
		dt.logger.Debug().Str("method", req.Method).Str("url", req.URL.String()).Str("request_dump", string(reqDump)).Msg("HTTP request")
	}

	resp, err := dt.base.RoundTrip(req)
	if err != nil {
		dt.logger.Debug().Err(err).Str("method", req.Method).Str("url", req.URL.String()).Msg("HTTP request failed")
		return nil, err
	}

	if respDump, err := httputil.DumpResponse(resp, true); err == nil {
		dt.logger.Debug().Str("method", req.Method).Str("url", req.URL.String()).Int("status", resp.StatusCode).Str("response_dump", string(respDump)).Msg("HTTP response")
	}
	return resp, nil
}
