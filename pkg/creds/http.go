package creds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const maxSecretBody = 1 << 20

// HTTPSource fetches the secret from an HTTP endpoint. A plaintext response
// body is taken verbatim as the new secret for the configured principal; a
// JSON response may carry both username and password.
type HTTPSource struct {
	client *http.Client
	url    string

	// Endpoint and Principal identify the resource the secret belongs to;
	// the fetch endpoint only hands out the secret itself unless it returns
	// JSON.
	Endpoint  string
	Principal string

	// Token, when set, is sent as a bearer token.
	Token string
}

func NewHTTPSource(url string) *HTTPSource {
	return &HTTPSource{
		client: &http.Client{Timeout: 30 * time.Second},
		url:    url,
	}
}

type secretResponse struct {
	Username string `json:"username"`
	Password string `json:"password"`
	TTL      int    `json:"ttl,omitempty"`
}

func (s *HTTPSource) Fetch(ctx context.Context) (*Credentials, error) {
	log.Infof("requesting secret from %s", s.url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("secret endpoint rejected us: %w", ErrPermissionDenied)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("secret endpoint returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSecretBody))
	if err != nil {
		return nil, fmt.Errorf("error reading secret body: %v", err)
	}

	creds := &Credentials{Endpoint: s.Endpoint, Principal: s.Principal}

	if strings.Contains(resp.Header.Get("Content-Type"), "json") {
		var sr secretResponse
		if err := json.Unmarshal(body, &sr); err != nil {
			return nil, fmt.Errorf("error parsing secret response: %v", err)
		}
		if sr.Password == "" {
			return nil, fmt.Errorf("secret response is missing a password")
		}
		if sr.Username != "" {
			creds.Principal = sr.Username
		}
		creds.Secret = sr.Password
		if sr.TTL > 0 {
			creds.Expiry = time.Now().Add(time.Duration(sr.TTL) * time.Second)
		}
	} else {
		secret := strings.TrimSpace(string(body))
		if secret == "" {
			return nil, fmt.Errorf("secret endpoint returned an empty body")
		}
		creds.Secret = secret
	}

	log.WithFields(creds.fields()).Infof("successfully retrieved secret")
	return creds, nil
}
