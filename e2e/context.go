// Package e2e drives a running castline server through Gherkin scenarios.
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TestContext holds the HTTP client and the state carried between steps.
type TestContext struct {
	BaseURL       string
	SigningKey    string
	Issuer        string
	WebhookSecret string

	client      *http.Client
	bearer      string
	clientIP    string
	values      map[string]string
	lastStatus  int
	lastBody    []byte
	lastHeaders http.Header
}

// NewTestContext reads the target server from the environment.
func NewTestContext() *TestContext {
	return &TestContext{
		BaseURL:       envOr("CASTLINE_E2E_BASE_URL", "http://localhost:8080"),
		SigningKey:    envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		Issuer:        envOr("JWT_ISSUER", "castline"),
		WebhookSecret: envOr("WEBHOOK_SECRET", "e2e-webhook-secret"),
		client:        &http.Client{Timeout: 10 * time.Second},
		values:        make(map[string]string),
	}
}

// Reset clears per-scenario state.
func (tc *TestContext) Reset() {
	tc.bearer = ""
	tc.clientIP = ""
	tc.values = make(map[string]string)
	tc.lastStatus = 0
	tc.lastBody = nil
	tc.lastHeaders = nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// MintToken signs an access token the server accepts for the account.
func (tc *TestContext) MintToken(accountID string, roles ...string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   accountID,
		"iss":   tc.Issuer,
		"iat":   now.Unix(),
		"exp":   now.Add(15 * time.Minute).Unix(),
		"jti":   uuid.NewString(),
		"roles": roles,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(tc.SigningKey))
}

func (tc *TestContext) SetBearer(token string) { tc.bearer = token }
func (tc *TestContext) ClearBearer() { tc.bearer = "" }
func (tc *TestContext) SetClientIP(ip string) { tc.clientIP = ip }

func (tc *TestContext) Remember(key, value string) { tc.values[key] = value }

// Recall returns a remembered value, or the key itself when nothing was
// stored under it.
func (tc *TestContext) Recall(key string) string {
	if v, ok := tc.values[key]; ok {
		return v
	}
	return key
}

// Expand substitutes {name} placeholders with remembered values.
func (tc *TestContext) Expand(s string) string {
	for k, v := range tc.values {
		s = strings.ReplaceAll(s, "{"+k+"}", v)
	}
	return s
}

func (tc *TestContext) POST(path string, body any) error {
	return tc.Do(http.MethodPost, path, body, nil)
}

func (tc *TestContext) GET(path string, headers map[string]string) error {
	return tc.Do(http.MethodGet, path, nil, headers)
}

// Do sends one request and records the response for later assertions.
func (tc *TestContext) Do(method, path string, body any, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, tc.BaseURL+tc.Expand(path), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tc.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+tc.bearer)
	}
	if tc.clientIP != "" {
		req.Header.Set("X-Forwarded-For", tc.clientIP)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	tc.lastBody, err = io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	tc.lastStatus = resp.StatusCode
	tc.lastHeaders = resp.Header
	return nil
}

// GetResponseField resolves a dotted path such as "payment.id" in the last
// JSON response.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var doc any
	if err := json.Unmarshal(tc.lastBody, &doc); err != nil {
		return nil, fmt.Errorf("response is not JSON: %w (body %s)", err, tc.lastBody)
	}
	current := doc
	for _, part := range strings.Split(field, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field %q: %q is not an object", field, part)
		}
		current, ok = obj[part]
		if !ok {
			return nil, fmt.Errorf("field %q not found in %s", field, tc.lastBody)
		}
	}
	return current, nil
}

func (tc *TestContext) GetLastResponseStatus() int { return tc.lastStatus }
func (tc *TestContext) GetLastResponseBody() []byte { return tc.lastBody }
func (tc *TestContext) GetLastResponseHeader(name string) string {
	if tc.lastHeaders == nil {
		return ""
	}
	return tc.lastHeaders.Get(name)
}
func (tc *TestContext) GetWebhookSecret() string { return tc.WebhookSecret }
