// Salescope - Authorization-Scoped Device Sales Snapshot API
// Copyright 2026 Stormfield Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stormfield-io/salescope

package api

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"

	"github.com/stormfield-io/salescope/internal/auth"
	"github.com/stormfield-io/salescope/internal/config"
	"github.com/stormfield-io/salescope/internal/store"
)

const (
	testKid      = "api-test-key"
	testClientID = "api-test-client"
	testPoolID   = "eu-north-1_apitests"
)

// memStore is an in-memory ObjectStore for handler tests.
type memStore struct {
	objects map[string][]byte
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrObjectNotFound, key)
	}
	return data, nil
}

func (m *memStore) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// testEnv bundles a running JWKS server, a signing key, and the router
// under test.
type testEnv struct {
	key    *rsa.PrivateKey
	jwks   *httptest.Server
	router http.Handler
}

func newTestEnv(t *testing.T, objects map[string][]byte) *testEnv {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate RSA key: %v", err)
	}

	jwks := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		doc := map[string]interface{}{
			"keys": []map[string]string{
				{
					"kty": "RSA",
					"kid": testKid,
					"alg": "RS256",
					"use": "sig",
					"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
					"e":   base64.RawURLEncoding.EncodeToString([]byte{0x01, 0x00, 0x01}),
				},
			},
		}
		_ = json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(jwks.Close)

	cfg := &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 8090, Timeout: 30 * time.Second},
		Auth: config.AuthConfig{
			AuthorityURL: jwks.URL,
			PoolID:       testPoolID,
			ClientID:     testClientID,
			JWKSURL:      jwks.URL,
			JWKSTimeout:  5 * time.Second,
			AdminGroup:   "admin",
			GroupsClaim:  "cognito:groups",
			DeviceClaim:  "custom:device_id",
		},
		Storage: config.StorageConfig{Bucket: "test", Prefix: "latest", Timeout: 5 * time.Second},
		Security: config.SecurityConfig{
			CORSOrigins:       []string{"http://localhost:3000"},
			RateLimitDisabled: true,
		},
	}

	reader := store.NewSnapshotReader(&memStore{objects: objects}, "latest")
	verifier := auth.NewVerifier(cfg.Auth)
	router := NewRouter(cfg, verifier, reader, "test")

	return &testEnv{key: key, jwks: jwks, router: router.Setup()}
}

// token signs a bearer token for the test identity provider.
func (e *testEnv) token(t *testing.T, groups []string, deviceID string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":              "user-123",
		"iss":              e.jwks.URL + "/" + testPoolID,
		"client_id":        testClientID,
		"cognito:username": "alice",
		"iat":              time.Now().Add(-time.Minute).Unix(),
		"exp":              time.Now().Add(time.Hour).Unix(),
	}
	if groups != nil {
		claims["cognito:groups"] = groups
	}
	if deviceID != "" {
		claims["custom:device_id"] = deviceID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKid
	signed, err := token.SignedString(e.key)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return signed
}

// get performs a request and decodes the JSON body.
func (e *testEnv) get(t *testing.T, path, bearer string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Response body is not JSON: %v (%s)", err, rec.Body.String())
	}
	return rec.Code, body
}

func snapshotObjects() map[string][]byte {
	return map[string][]byte{
		"latest/device-S-101.json": []byte(`{"records":[
			{"ts":"2025-09-15T08:00:00Z","qty":"2","unit_price":"10.5"},
			{"ts":"2025-09-15T09:30:00Z","qty":3,"unit_price":10.5}
		]}`),
		"latest/device-S-102.json": []byte(`{"records":[
			{"ts":"2025-09-16T10:00:00Z","qty":1,"unit_price":4}
		]}`),
	}
}

func TestConnect_Unauthenticated(t *testing.T) {
	env := newTestEnv(t, snapshotObjects())

	code, body := env.get(t, "/connect", "")
	if code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", code)
	}
	if body["message"] == "" {
		t.Error("Expected a message field")
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, snapshotObjects())

	code, body := env.get(t, "/healthz", "")
	if code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", code)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
}

func TestProfile(t *testing.T) {
	env := newTestEnv(t, snapshotObjects())
	bearer := env.token(t, []string{"admin"}, "device-S-101")

	code, body := env.get(t, "/profile", bearer)
	if code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", code)
	}
	if body["username"] != "alice" {
		t.Errorf("username = %v, want alice", body["username"])
	}
	if body["isAdmin"] != true {
		t.Errorf("isAdmin = %v, want true", body["isAdmin"])
	}
	if body["deviceId"] != "device-S-101" {
		t.Errorf("deviceId = %v, want device-S-101", body["deviceId"])
	}
}

func TestMissingToken(t *testing.T) {
	env := newTestEnv(t, snapshotObjects())

	for _, path := range []string{"/profile", "/data", "/latest", "/trend", "/devices", "/device-counts"} {
		code, body := env.get(t, path, "")
		if code != http.StatusUnauthorized {
			t.Errorf("%s status = %d, want 401", path, code)
			continue
		}
		errObj, ok := body["error"].(map[string]interface{})
		if !ok {
			t.Errorf("%s missing error envelope: %v", path, body)
			continue
		}
		if errObj["code"] != ErrCodeUnauthorized {
			t.Errorf("%s error code = %v, want %s", path, errObj["code"], ErrCodeUnauthorized)
		}
	}
}

func TestGarbageToken(t *testing.T) {
	env := newTestEnv(t, snapshotObjects())

	code, _ := env.get(t, "/latest", "garbage.token.here")
	if code != http.StatusUnauthorized {
		t.Errorf("Status = %d, want 401", code)
	}
}

func TestLatest_Admin(t *testing.T) {
	env := newTestEnv(t, snapshotObjects())
	bearer := env.token(t, []string{"admin"}, "")

	code, body := env.get(t, "/latest?device_id=device-S-101", bearer)
	if code != http.StatusOK {
		t.Fatalf("Status = %d, want 200 (%v)", code, body)
	}
	if body["deviceId"] != "device-S-101" {
		t.Errorf("deviceId = %v", body["deviceId"])
	}
	if body["count"] != float64(2) {
		t.Errorf("count = %v, want 2", body["count"])
	}
	records, ok := body["records"].([]interface{})
	if !ok || len(records) != 2 {
		t.Fatalf("records = %v", body["records"])
	}
	// Newest first.
	first := records[0].(map[string]interface{})
	if first["ts"] != "2025-09-15T09:30:00Z" {
		t.Errorf("First record ts = %v, want 2025-09-15T09:30:00Z", first["ts"])
	}
}

func TestLatest_AdminMissingDeviceParam(t *testing.T) {
	env := newTestEnv(t, snapshotObjects())
	bearer := env.token(t, []string{"admin"}, "")

	code, body := env.get(t, "/latest", bearer)
	if code != http.StatusBadRequest {
		t.Fatalf("Status = %d, want 400 (%v)", code, body)
	}
}

func TestLatest_UserScopedToOwnDevice(t *testing.T) {
	env := newTestEnv(t, snapshotObjects())
	bearer := env.token(t, []string{"reporting"}, "device-S-102")

	// The device_id parameter is ignored for non-admins.
	code, body := env.get(t, "/latest?device_id=device-S-101", bearer)
	if code != http.StatusOK {
		t.Fatalf("Status = %d, want 200 (%v)", code, body)
	}
	if body["deviceId"] != "device-S-102" {
		t.Errorf("deviceId = %v, want claim-bound device-S-102", body["deviceId"])
	}
	if body["isAdmin"] != false {
		t.Errorf("isAdmin = %v, want false", body["isAdmin"])
	}
}

func TestLatest_UserWithoutDeviceClaim(t *testing.T) {
	env := newTestEnv(t, snapshotObjects())
	bearer := env.token(t, []string{"reporting"}, "")

	code, body := env.get(t, "/latest", bearer)
	if code != http.StatusForbidden {
		t.Fatalf("Status = %d, want 403 (%v)", code, body)
	}
}

func TestLatest_InvalidLimit(t *testing.T) {
	env := newTestEnv(t, snapshotObjects())
	bearer := env.token(t, []string{"admin"}, "")

	for _, limit := range []string{"0", "-5", "2001", "abc"} {
		code, _ := env.get(t, "/latest?device_id=device-S-101&limit="+limit, bearer)
		if code != http.StatusBadRequest {
			t.Errorf("limit=%s status = %d, want 400", limit, code)
		}
	}
}

func TestLatest_LimitSlices(t *testing.T) {
	env := newTestEnv(t, snapshotObjects())
	bearer := env.token(t, []string{"admin"}, "")

	code, body := env.get(t, "/latest?device_id=device-S-101&limit=1", bearer)
	if code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", code)
	}
	if body["count"] != float64(2) {
		t.Errorf("count = %v, want true total 2", body["count"])
	}
	records := body["records"].([]interface{})
	if len(records) != 1 {
		t.Errorf("records length = %d, want 1", len(records))
	}
}

func TestData_NotFound(t *testing.T) {
	env := newTestEnv(t, snapshotObjects())
	bearer := env.token(t, []string{"admin"}, "")

	code, body := env.get(t, "/data?device_id=device-unknown", bearer)
	if code != http.StatusNotFound {
		t.Fatalf("Status = %d, want 404 (%v)", code, body)
	}
	errObj := body["error"].(map[string]interface{})
	if errObj["code"] != ErrCodeNotFound {
		t.Errorf("error code = %v, want %s", errObj["code"], ErrCodeNotFound)
	}
}

func TestData_ReturnsDocument(t *testing.T) {
	env := newTestEnv(t, snapshotObjects())
	bearer := env.token(t, []string{"admin"}, "")

	code, body := env.get(t, "/data?device_id=device-S-102", bearer)
	if code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", code)
	}
	data, ok := body["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("data = %v", body["data"])
	}
	records, ok := data["records"].([]interface{})
	if !ok || len(records) != 1 {
		t.Errorf("records = %v", data["records"])
	}
}

func TestTrend_DayBucket(t *testing.T) {
	env := newTestEnv(t, snapshotObjects())
	bearer := env.token(t, []string{"admin"}, "")

	code, body := env.get(t, "/trend?device_id=device-S-101", bearer)
	if code != http.StatusOK {
		t.Fatalf("Status = %d, want 200 (%v)", code, body)
	}
	if body["bucket"] != "day" {
		t.Errorf("bucket = %v, want day", body["bucket"])
	}
	series := body["series"].([]interface{})
	if len(series) != 1 {
		t.Fatalf("series = %v", body["series"])
	}
	row := series[0].(map[string]interface{})
	if row["bucket"] != "2025-09-15" {
		t.Errorf("bucket label = %v, want 2025-09-15", row["bucket"])
	}
	if row["total_qty"] != float64(5) {
		t.Errorf("total_qty = %v, want 5", row["total_qty"])
	}
	if row["total_value"] != 52.5 {
		t.Errorf("total_value = %v, want 52.5", row["total_value"])
	}
}

func TestTrend_InvalidBucket(t *testing.T) {
	env := newTestEnv(t, snapshotObjects())
	bearer := env.token(t, []string{"admin"}, "")

	code, _ := env.get(t, "/trend?device_id=device-S-101&bucket=week", bearer)
	if code != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", code)
	}
}

func TestDevices_AdminOnly(t *testing.T) {
	env := newTestEnv(t, snapshotObjects())

	code, body := env.get(t, "/devices", env.token(t, []string{"admin"}, ""))
	if code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", code)
	}
	devices := body["devices"].([]interface{})
	if len(devices) != 2 || devices[0] != "device-S-101" || devices[1] != "device-S-102" {
		t.Errorf("devices = %v, want sorted [device-S-101 device-S-102]", devices)
	}

	code, _ = env.get(t, "/devices", env.token(t, []string{"reporting"}, "device-S-101"))
	if code != http.StatusForbidden {
		t.Errorf("Non-admin status = %d, want 403", code)
	}
}

func TestDeviceCounts_Admin(t *testing.T) {
	env := newTestEnv(t, snapshotObjects())
	bearer := env.token(t, []string{"admin"}, "")

	code, body := env.get(t, "/device-counts", bearer)
	if code != http.StatusOK {
		t.Fatalf("Status = %d, want 200 (%v)", code, body)
	}
	devices := body["devices"].([]interface{})
	if len(devices) != 2 {
		t.Fatalf("devices = %v", devices)
	}
	first := devices[0].(map[string]interface{})
	if first["deviceId"] != "device-S-101" || first["recordCount"] != float64(2) {
		t.Errorf("First entry = %v, want device-S-101 with 2 records", first)
	}
}

func TestDeviceCounts_UserSeesOwnDeviceOnly(t *testing.T) {
	env := newTestEnv(t, snapshotObjects())
	bearer := env.token(t, []string{"reporting"}, "device-S-102")

	// A device_id parameter from a non-admin must not widen the scope.
	code, body := env.get(t, "/device-counts?device_id=device-S-101", bearer)
	if code != http.StatusOK {
		t.Fatalf("Status = %d, want 200 (%v)", code, body)
	}
	devices := body["devices"].([]interface{})
	if len(devices) != 1 {
		t.Fatalf("devices = %v, want exactly the caller's device", devices)
	}
	entry := devices[0].(map[string]interface{})
	if entry["deviceId"] != "device-S-102" {
		t.Errorf("deviceId = %v, want device-S-102", entry["deviceId"])
	}
}

func TestDeviceCounts_UserWithoutDeviceClaim(t *testing.T) {
	env := newTestEnv(t, snapshotObjects())
	bearer := env.token(t, []string{"reporting"}, "")

	code, _ := env.get(t, "/device-counts", bearer)
	if code != http.StatusForbidden {
		t.Errorf("Status = %d, want 403", code)
	}
}

func TestCorruptSnapshot(t *testing.T) {
	objects := snapshotObjects()
	objects["latest/device-S-101.json"] = []byte(`{"records": [truncated`)
	env := newTestEnv(t, objects)
	bearer := env.token(t, []string{"admin"}, "")

	code, body := env.get(t, "/latest?device_id=device-S-101", bearer)
	if code != http.StatusInternalServerError {
		t.Fatalf("Status = %d, want 500 (%v)", code, body)
	}
	errObj := body["error"].(map[string]interface{})
	if errObj["code"] != ErrCodeInternalError {
		t.Errorf("error code = %v, want %s", errObj["code"], ErrCodeInternalError)
	}
}

func TestBadTimestampFailsLatest(t *testing.T) {
	objects := map[string][]byte{
		"latest/device-S-101.json": []byte(`{"records":[{"ts":"2025-09-15T08:00:00Z"},{"qty":1}]}`),
	}
	env := newTestEnv(t, objects)
	bearer := env.token(t, []string{"admin"}, "")

	code, _ := env.get(t, "/latest?device_id=device-S-101", bearer)
	if code != http.StatusInternalServerError {
		t.Errorf("Status = %d, want 500 for unparseable timestamps", code)
	}

	// The same document still trends; missing timestamps are skipped there.
	code, body := env.get(t, "/trend?device_id=device-S-101", bearer)
	if code != http.StatusOK {
		t.Errorf("Trend status = %d, want 200 (%v)", code, body)
	}
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t, snapshotObjects())

	req := httptest.NewRequest(http.MethodGet, "/connect", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("Expected X-Request-ID response header")
	}
}

func TestSecurityHeaders(t *testing.T) {
	env := newTestEnv(t, snapshotObjects())

	req := httptest.NewRequest(http.MethodGet, "/connect", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("Missing X-Content-Type-Options header")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("Missing X-Frame-Options header")
	}
}
