package wavestk

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"
)

// DefaultSessionCookieName is the cookie the remote service keeps its login session in.
const DefaultSessionCookieName = "session"

// DefaultHTTPClient creates an HTTP client suited for sequential chunk uploads.
func DefaultHTTPClient() *http.Client {
	return &http.Client{
		// A 10 MiB chunk is ~14 MB once base64 encoded.
		Timeout: 5 * time.Minute,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxConnsPerHost:     4,
			IdleConnTimeout:     30 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			Proxy:               http.ProxyFromEnvironment,
		},
	}
}

// WithSessionCookie returns a copy of client that sends the remote service's session cookie
// on every request to baseURL, the equivalent of a browser sending credentials along.
func WithSessionCookie(client *http.Client, baseURL, name, value string) (*http.Client, error) {
	if client == nil {
		client = DefaultHTTPClient()
	}
	if value == "" {
		return client, nil
	}
	if name == "" {
		name = DefaultSessionCookieName
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL: %s", baseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	jar.SetCookies(&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}, []*http.Cookie{{
		Name:  name,
		Value: value,
		Path:  "/",
	}})

	withJar := *client
	withJar.Jar = jar
	return &withJar, nil
}
