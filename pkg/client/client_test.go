package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/pdir/immobilienscout-api/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCredentials = Credentials{
	ConsumerKey:    "consumer-key",
	ConsumerSecret: "consumer-secret",
	TokenKey:       "token-key",
	TokenSecret:    "token-secret",
}

// newTestClient creates a client pointed at the mock server.
func newTestClient(t *testing.T, mock *testutil.MockIS24, mutate ...func(*Config)) *Client {
	t.Helper()

	nop := zerolog.Nop()
	cfg := DefaultConfig(testCredentials)
	cfg.BaseURL = mock.URL()
	cfg.Timeout = 5 * time.Second
	cfg.Logger = &nop
	for _, m := range mutate {
		m(&cfg)
	}

	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func newMock(t *testing.T) *testutil.MockIS24 {
	t.Helper()
	mock := testutil.NewMockIS24()
	t.Cleanup(mock.Close)
	return mock
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid config",
			config: DefaultConfig(testCredentials),
		},
		{
			name:   "empty credentials are allowed",
			config: DefaultConfig(Credentials{}),
		},
		{
			name: "empty base url falls back to default",
			config: Config{
				APIVersion: DefaultAPIVersion,
			},
		},
		{
			name: "empty api version",
			config: Config{
				BaseURL: DefaultBaseURL,
			},
			expectError: true,
			errorMsg:    "api version is required",
		},
		{
			name: "relative base url",
			config: Config{
				BaseURL:    "rest.immobilienscout24.de",
				APIVersion: DefaultAPIVersion,
			},
			expectError: true,
			errorMsg:    `base url must be absolute (got "rest.immobilienscout24.de")`,
		},
		{
			name: "negative timeout",
			config: Config{
				BaseURL:    DefaultBaseURL,
				APIVersion: DefaultAPIVersion,
				Timeout:    -time.Second,
			},
			expectError: true,
			errorMsg:    "timeout must be >= 0 (got -1s)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.config)

			if tt.expectError {
				require.Error(t, err)
				if tt.errorMsg != "" {
					assert.Equal(t, tt.errorMsg, err.Error())
				}
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, client)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(testCredentials)

	assert.Equal(t, testCredentials, cfg.Credentials)
	assert.Equal(t, "https://rest.immobilienscout24.de", cfg.BaseURL)
	assert.Equal(t, "v1.0", cfg.APIVersion)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Zero(t, cfg.RequestsPerSecond, "pacing is opt-in")
	assert.False(t, cfg.Debug)
}

func TestNew_NoNetworkIO(t *testing.T) {
	mock := newMock(t)
	newTestClient(t, mock)

	assert.Zero(t, mock.RequestCount())
}

func TestURL(t *testing.T) {
	c, err := New(DefaultConfig(testCredentials))
	require.NoError(t, err)

	tests := []struct {
		resource string
		want     string
	}{
		{"user/me/realestate", "https://rest.immobilienscout24.de/restapi/api/offer/v1.0/user/me/realestate"},
		{"/user/me/contact/7", "https://rest.immobilienscout24.de/restapi/api/offer/v1.0/user/me/contact/7"},
		{"", "https://rest.immobilienscout24.de/restapi/api/offer/v1.0/"},
	}

	for _, tt := range tests {
		t.Run(tt.resource, func(t *testing.T) {
			assert.Equal(t, tt.want, c.URL(tt.resource))
		})
	}
}

func TestURL_TrailingSlashBase(t *testing.T) {
	cfg := DefaultConfig(testCredentials)
	cfg.BaseURL = "https://sandbox.immobilienscout24.de/"

	c, err := New(cfg)
	require.NoError(t, err)

	assert.Equal(t, "https://sandbox.immobilienscout24.de/restapi/api/offer/v1.0/user/me/realestate", c.URL("user/me/realestate"))
}

func TestClient_SignsRequests(t *testing.T) {
	mock := newMock(t)
	mock.SetJSON("user/me/realestate/1", map[string]any{"a": 1})
	c := newTestClient(t, mock, func(cfg *Config) {
		cfg.UserAgent = "is24-test/1.0"
	})

	_, err := c.Get(context.Background(), "user/me/realestate/1")
	require.NoError(t, err)

	header := mock.LastRequestHeader()
	auth := header.Get("Authorization")
	assert.True(t, strings.HasPrefix(auth, "OAuth "), "Authorization = %q", auth)
	assert.Contains(t, auth, `oauth_consumer_key="consumer-key"`)
	assert.Contains(t, auth, `oauth_token="token-key"`)
	assert.Contains(t, auth, `oauth_signature_method="HMAC-SHA1"`)
	assert.Contains(t, auth, "oauth_signature=")
	assert.NotContains(t, auth, "consumer-secret")
	assert.NotContains(t, auth, "token-secret")

	assert.Equal(t, "application/json", header.Get("Accept"))
	assert.Equal(t, "is24-test/1.0", header.Get("User-Agent"))
}

func TestGet_StatusContract(t *testing.T) {
	tests := []struct {
		name     string
		response testutil.MockResponse
		wantDoc  Document
	}{
		{
			name:     "200 decodes object",
			response: testutil.MockResponse{StatusCode: http.StatusOK, Body: `{"a":1}`},
			wantDoc:  Document{"a": float64(1)},
		},
		{
			name:     "200 nested object",
			response: testutil.MockResponse{StatusCode: http.StatusOK, Body: `{"realestates.apartmentRent":{"@id":"9"}}`},
			wantDoc:  Document{"realestates.apartmentRent": map[string]any{"@id": "9"}},
		},
		{
			name:     "204 is no data",
			response: testutil.MockResponse{StatusCode: http.StatusNoContent},
		},
		{
			name:     "304 is no data",
			response: testutil.MockResponse{StatusCode: http.StatusNotModified},
		},
		{
			name:     "404 is no data",
			response: testutil.MockResponse{StatusCode: http.StatusNotFound, Body: `{"common.messages":[]}`},
		},
		{
			name:     "401 is no data",
			response: testutil.MockResponse{StatusCode: http.StatusUnauthorized},
		},
		{
			name:     "500 is no data",
			response: testutil.MockResponse{StatusCode: http.StatusInternalServerError, Body: "oops"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			mock.SetResponse("user/me/realestate/1", tt.response)
			c := newTestClient(t, mock)

			doc, err := c.Get(context.Background(), "user/me/realestate/1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantDoc, doc)
		})
	}
}

func TestGet_RateLimited(t *testing.T) {
	mock := newMock(t)
	mock.SetResponse("user/me/realestate", testutil.NewRateLimitResponse(""))
	c := newTestClient(t, mock)

	doc, err := c.Get(context.Background(), "user/me/realestate?pagenumber=1")
	require.Error(t, err)
	assert.Nil(t, doc)
	assert.True(t, errors.Is(err, ErrRateLimitExceeded))
	assert.True(t, IsRateLimited(err))

	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr), "rate limiting is not an APIError")

	state := c.RateLimitState()
	assert.Equal(t, 1, state.LimitedCount)
	assert.Zero(t, state.RetryAfter)
}

func TestGet_RateLimitedWithRetryAfter(t *testing.T) {
	mock := newMock(t)
	mock.SetResponse("user/me/contact/5", testutil.NewRateLimitResponse("60"))
	c := newTestClient(t, mock)

	_, err := c.Get(context.Background(), "user/me/contact/5")
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
	assert.Contains(t, err.Error(), "retry after")
	assert.Contains(t, err.Error(), "user/me/contact/{id}")

	state := c.RateLimitState()
	assert.Equal(t, time.Minute, state.RetryAfter)
	assert.True(t, state.IsLimited(time.Now()))

	// Another request is not blocked by the client: no backoff policy.
	mock.SetJSON("user/me/contact/5", map[string]any{"id": 5})
	doc, err := c.Get(context.Background(), "user/me/contact/5")
	require.NoError(t, err)
	assert.NotNil(t, doc)
}

func TestGet_DecodeError(t *testing.T) {
	mock := newMock(t)
	mock.SetResponse("user/me/realestate/3", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       "<html>maintenance</html>",
	})
	c := newTestClient(t, mock)

	doc, err := c.Get(context.Background(), "user/me/realestate/3")
	require.Error(t, err)
	assert.Nil(t, doc)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, ErrorClassDecode, apiErr.Class)
	assert.Equal(t, http.StatusOK, apiErr.StatusCode)
	assert.Equal(t, "<html>maintenance</html>", apiErr.Body)
	assert.Equal(t, "user/me/realestate/{id}", apiErr.Resource)
	assert.False(t, IsRateLimited(err))
}

func TestGet_EmptyBodyIsDecodeError(t *testing.T) {
	mock := newMock(t)
	mock.SetResponse("user/me/realestate/3", testutil.MockResponse{StatusCode: http.StatusOK})
	c := newTestClient(t, mock)

	_, err := c.Get(context.Background(), "user/me/realestate/3")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, ErrorClassDecode, apiErr.Class)
	assert.Empty(t, apiErr.Body)
}

func TestGet_NetworkError(t *testing.T) {
	mock := testutil.NewMockIS24()
	c := newTestClient(t, mock)
	mock.Close()

	doc, err := c.Get(context.Background(), "user/me/realestate/1")
	require.Error(t, err)
	assert.Nil(t, doc)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, ErrorClassNetwork, apiErr.Class)
	assert.Zero(t, apiErr.StatusCode)
	assert.Empty(t, apiErr.Body, "no response, no diagnostic body")
	assert.False(t, IsRateLimited(err))
}

func TestGet_ContextCancelled(t *testing.T) {
	mock := newMock(t)
	mock.SetResponse("user/me/realestate/1", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{}`,
		Delay:      200 * time.Millisecond,
	})
	c := newTestClient(t, mock)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Get(ctx, "user/me/realestate/1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRequest_EscapeHatch(t *testing.T) {
	mock := newMock(t)
	mock.SetJSON("user/me/realestate/1/attachment", map[string]any{"common.attachments": []any{}})
	c := newTestClient(t, mock)

	resp, err := c.Request(context.Background(), "get", "user/me/realestate/1/attachment")
	require.NoError(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"common.attachments":[]}`, string(body))

	resp, err = c.Request(context.Background(), http.MethodGet, "user/me/unknown")
	require.NoError(t, err)
	assert.Nil(t, resp, "404 is no data")
}

func TestDebugTransport_RedactsAuthorization(t *testing.T) {
	mock := newMock(t)
	mock.SetJSON("user/me/contact/1", map[string]any{"name": "Jane"})

	buf := &bytes.Buffer{}
	logger := zerolog.New(buf).Level(zerolog.DebugLevel)
	c := newTestClient(t, mock, func(cfg *Config) {
		cfg.Debug = true
		cfg.Logger = &logger
	})

	doc, err := c.Get(context.Background(), "user/me/contact/1")
	require.NoError(t, err)
	assert.Equal(t, "Jane", doc.String("name"))

	output := buf.String()
	assert.Contains(t, output, "request_dump")
	assert.Contains(t, output, "response_dump")
	assert.Contains(t, output, "OAuth [redacted]")
	assert.NotContains(t, output, "oauth_signature")

	// The server still received a signed request.
	assert.Contains(t, mock.LastRequestHeader().Get("Authorization"), "oauth_signature=")
}

func TestClient_Pacing(t *testing.T) {
	mock := newMock(t)
	mock.SetJSON("user/me/contact/1", map[string]any{})
	c := newTestClient(t, mock, func(cfg *Config) {
		cfg.RequestsPerSecond = 10
	})

	start := time.Now()
	for i := 0; i < 12; i++ {
		_, err := c.Get(context.Background(), "user/me/contact/1")
		require.NoError(t, err)
	}

	// 10 burst tokens, two more at 10/s.
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	assert.Equal(t, 12, mock.RequestCount())
}

func TestEndpointLabel(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/restapi/api/offer/v1.0/user/me/realestate", "user/me/realestate"},
		{"/restapi/api/offer/v1.0/user/me/realestate/12345", "user/me/realestate/{id}"},
		{"/restapi/api/offer/v1.0/user/me/realestate/12345/attachment", "user/me/realestate/{id}/attachment"},
		{"/restapi/api/offer/v1.0/user/me/contact/7", "user/me/contact/{id}"},
		{"/restapi/api/offer/v1.0", ""},
		{"user/me/contact/7", "user/me/contact/{id}"},
		{"/other/v2x/path", "other/v2x/path"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, endpointLabel(tt.path))
		})
	}
}
