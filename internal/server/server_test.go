package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brpsystems/applinks/internal/appinfo"
	"github.com/brpsystems/applinks/internal/config"
	"github.com/brpsystems/applinks/internal/device"
	"github.com/brpsystems/applinks/internal/storage"
	"github.com/brpsystems/applinks/internal/visits"
)

const (
	androidUA = "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36"
	iosUA     = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X)"
	desktopUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/124.0"
)

type fakeApps struct {
	info      *appinfo.AppInfo
	healthErr error
}

func (f *fakeApps) Lookup(ctx context.Context, code string) *appinfo.AppInfo { return f.info }
func (f *fakeApps) Healthy(ctx context.Context) error                        { return f.healthErr }

func testConfig() *config.Config {
	return &config.Config{
		ListenAddr:              ":0",
		TrustProxy:              true,
		StorageBackend:          "memory",
		RecordTTL:               24 * time.Hour,
		CleanupInterval:         time.Hour,
		PlayStoreURL:            "https://play.google.com/store/apps/details?id=se.brpsystems.mobility",
		AppStoreURL:             "https://apps.apple.com/app/id1490809094",
		AppServiceURL:           "https://appservice.example/apps",
		ClipboardPrefix:         "brplink::",
		AndroidPackage:          "se.brpsystems.mobility",
		AndroidCertFingerprints: []string{"AA:BB", "CC:DD"},
		IOSAppID:                "46TM43B7XL.se.brpsystems.mobility",
	}
}

func testServer(t *testing.T, apps AppDirectory) (*Server, storage.Store) {
	t.Helper()
	store := storage.NewMemStore(24 * time.Hour)
	if apps == nil {
		apps = &fakeApps{}
	}
	s := New(testConfig(), store, apps, visits.NewLog(100))
	return s, store
}

func doRequest(s *Server, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, r)
	return w
}

func storeRequest(platform, ip, code string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/api/"+platform+"/record-storage",
		strings.NewReader(`{"providerCode": "`+code+`"}`))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("X-Forwarded-For", ip)
	return r
}

func retrieveRequest(platform, ip string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/api/"+platform+"/record-retrieval", nil)
	r.Header.Set("X-Forwarded-For", ip)
	return r
}

func TestStoreRecord_RoundTrip(t *testing.T) {
	s, _ := testServer(t, nil)

	w := doRequest(s, storeRequest("android", "203.0.113.9", "123456"))
	require.Equal(t, http.StatusOK, w.Code)

	var rec storage.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, "203.0.113.9", rec.IP)
	assert.Equal(t, "123456", rec.ProviderCode)
	assert.NotEmpty(t, rec.DeviceID)
	assert.NotZero(t, rec.CreatedAt)

	// First visit assigns the identity cookie.
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, device.CookieName, cookies[0].Name)

	// The installed app asks with only its IP and consumes the record.
	w = doRequest(s, retrieveRequest("android", "203.0.113.9"))
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "123456", resp["providerCode"])

	// Consume-once: gone on the second ask.
	w = doRequest(s, retrieveRequest("android", "203.0.113.9"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStoreRecord_ReusesCookieIdentity(t *testing.T) {
	s, store := testServer(t, nil)

	r := storeRequest("android", "203.0.113.9", "111111")
	r.AddCookie(&http.Cookie{Name: device.CookieName, Value: "ab12cd34ef"})
	doRequest(s, r)

	r = storeRequest("android", "198.51.100.7", "222222")
	r.AddCookie(&http.Cookie{Name: device.CookieName, Value: "ab12cd34ef"})
	doRequest(s, r)

	// Same device identifier: second store replaced the first.
	count, err := store.Count(storage.Android)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStoreRecord_InvalidCode(t *testing.T) {
	s, store := testServer(t, nil)

	for _, code := range []string{"12345", "abcdef", ""} {
		w := doRequest(s, storeRequest("ios", "203.0.113.9", code))
		assert.Equal(t, http.StatusBadRequest, w.Code, "code %q", code)
		assert.Contains(t, w.Body.String(), "Invalid provider code")
	}

	count, err := store.Count(storage.IOS)
	require.NoError(t, err)
	assert.Zero(t, count, "invalid codes must never be stored")
}

func TestStoreRecord_FormEncodedBody(t *testing.T) {
	s, _ := testServer(t, nil)

	r := httptest.NewRequest(http.MethodPost, "/api/ios/record-storage",
		strings.NewReader("providerCode=654321"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Header.Set("X-Forwarded-For", "203.0.113.9")

	w := doRequest(s, r)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(s, retrieveRequest("ios", "203.0.113.9"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "654321")
}

func TestRetrieve_CrossPlatformIsolation(t *testing.T) {
	s, _ := testServer(t, nil)

	doRequest(s, storeRequest("android", "203.0.113.9", "123456"))

	w := doRequest(s, retrieveRequest("ios", "203.0.113.9"))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(s, retrieveRequest("android", "203.0.113.9"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestClientIP_MappedIPv6Normalised(t *testing.T) {
	s, _ := testServer(t, nil)

	// Stored via a mapped address, retrieved via the bare IPv4 form.
	doRequest(s, storeRequest("android", "::ffff:203.0.113.9", "123456"))

	w := doRequest(s, retrieveRequest("android", "203.0.113.9"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestClientIP_ProxyHeaderIgnoredWhenUntrusted(t *testing.T) {
	cfg := testConfig()
	cfg.TrustProxy = false
	store := storage.NewMemStore(24 * time.Hour)
	s := New(cfg, store, &fakeApps{}, visits.NewLog(100))

	r := storeRequest("android", "203.0.113.9", "123456")
	w := doRequest(s, r)
	require.Equal(t, http.StatusOK, w.Code)

	var rec storage.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	// httptest requests come from 192.0.2.0/24.
	assert.Equal(t, "192.0.2.1", rec.IP)
}

// failingStore simulates a durable backend outage.
type failingStore struct{ storage.Store }

func (f *failingStore) Put(p storage.Platform, rec storage.Record) error {
	return errors.New("backend down")
}

func (f *failingStore) Take(p storage.Platform, ip string) (*storage.Record, error) {
	return nil, errors.New("backend down")
}

func TestHandlers_BackendFailureIsGeneric500(t *testing.T) {
	cfg := testConfig()
	store := &failingStore{Store: storage.NewMemStore(24 * time.Hour)}
	s := New(cfg, store, &fakeApps{}, visits.NewLog(100))

	w := doRequest(s, storeRequest("android", "203.0.113.9", "123456"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Internal server error")
	assert.NotContains(t, w.Body.String(), "backend down")

	w = doRequest(s, retrieveRequest("android", "203.0.113.9"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "backend down")
}

func TestStatus(t *testing.T) {
	s, _ := testServer(t, nil)

	w := doRequest(s, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"online"`)
	assert.Contains(t, w.Body.String(), `"totalVisits":0`)
}

func TestLatestVisit(t *testing.T) {
	s, _ := testServer(t, nil)

	r := httptest.NewRequest(http.MethodGet, "/api/visits/latest", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.9")
	w := doRequest(s, r)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// A landing-page visit shows up as the latest visit for that IP.
	page := httptest.NewRequest(http.MethodGet, "/providers/123456", nil)
	page.Header.Set("X-Forwarded-For", "203.0.113.9")
	page.Header.Set("User-Agent", androidUA)
	doRequest(s, page)

	w = doRequest(s, r)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"totalVisits":1`)
	assert.Contains(t, w.Body.String(), "123456")
}

func TestUnknownRoute(t *testing.T) {
	s, _ := testServer(t, nil)
	w := doRequest(s, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Not Found")
}

func TestHealthy_DelegatesToAppService(t *testing.T) {
	s, _ := testServer(t, &fakeApps{healthErr: errors.New("down")})
	assert.Error(t, s.Healthy(context.Background()))

	s, _ = testServer(t, &fakeApps{})
	assert.NoError(t, s.Healthy(context.Background()))
}
