package client

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the environment variable prefix read by EnvCredentials:
// IS24_CONSUMER_KEY, IS24_CONSUMER_SECRET, IS24_TOKEN_KEY, IS24_TOKEN_SECRET.
const EnvPrefix = "IS24"

// Credentials holds the OAuth1 consumer and access token secrets.
type Credentials struct {
	ConsumerKey    string `split_words:"true"`
	ConsumerSecret string `split_words:"true"`
	TokenKey       string `split_words:"true"`
	TokenSecret    string `split_words:"true"`
}

// String masks the secrets so credentials can be logged safely.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{ConsumerKey:%s ConsumerSecret:%s TokenKey:%s TokenSecret:%s}",
		mask(c.ConsumerKey), mask(c.ConsumerSecret), mask(c.TokenKey), mask(c.TokenSecret))
}

// Complete reports whether all four secrets are set.
func (c Credentials) Complete() bool {
	return c.ConsumerKey != "" && c.ConsumerSecret != "" && c.TokenKey != "" && c.TokenSecret != ""
}

func mask(s string) string {
	if s == "" {
		return `""`
	}
	return "***"
}

// CredentialSource supplies fallback credentials.
type CredentialSource interface {
	Credentials() (Credentials, error)
}

// CredentialSourceFunc adapts a function to CredentialSource.
type CredentialSourceFunc func() (Credentials, error)

// Credentials implements CredentialSource.
func (f CredentialSourceFunc) Credentials() (Credentials, error) {
	return f()
}

// EnvCredentials reads credentials from the IS24_* environment variables.
// Unset variables resolve to empty strings.
var EnvCredentials CredentialSource = CredentialSourceFunc(func() (Credentials, error) {
	var creds Credentials
	if err := envconfig.Process(EnvPrefix, &creds); err != nil {
		return Credentials{}, fmt.Errorf("read credentials from environment: %w", err)
	}
	return creds, nil
})

// StaticCredentials returns a CredentialSource that always yields creds.
func StaticCredentials(creds Credentials) CredentialSource {
	return CredentialSourceFunc(func() (Credentials, error) {
		return creds, nil
	})
}

// ResolveCredentials takes each secret from overrides when it is non-empty and
// from fallback otherwise. A nil fallback leaves missing secrets empty.
// The fallback is only consulted when at least one override is empty.
func ResolveCredentials(overrides Credentials, fallback CredentialSource) (Credentials, error) {
	if overrides.Complete() || fallback == nil {
		return overrides, nil
	}

	fb, err := fallback.Credentials()
	if err != nil {
		return Credentials{}, fmt.Errorf("resolve credentials: %w", err)
	}

	return Credentials{
		ConsumerKey:    firstNonEmpty(overrides.ConsumerKey, fb.ConsumerKey),
		ConsumerSecret: firstNonEmpty(overrides.ConsumerSecret, fb.ConsumerSecret),
		TokenKey:       firstNonEmpty(overrides.TokenKey, fb.TokenKey),
		TokenSecret:    firstNonEmpty(overrides.TokenSecret, fb.TokenSecret),
	}, nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
