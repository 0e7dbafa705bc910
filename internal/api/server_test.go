package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"proxygen/internal/apperr"
	"proxygen/internal/engine"
	"proxygen/internal/metrics"
	"proxygen/internal/subinfo"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeService struct {
	names    []string
	override string
	info     subinfo.Info
	genErr   error

	updated   string
	url       string
	count     int
	updateErr error
}

func (f *fakeService) Generate(ctx context.Context, names []string, override string) (*engine.Document, subinfo.Info, error) {
	f.names, f.override = names, override
	if f.genErr != nil {
		return nil, subinfo.Info{}, f.genErr
	}
	doc := engine.Assemble([]engine.Proxy{engine.NewProxy("name", "HK 01", "type", "ss")}, nil, []string{"MATCH,DIRECT"}, nil)
	return doc, f.info, nil
}

func (f *fakeService) Update(ctx context.Context, name, url string) (int, error) {
	f.updated, f.url = name, url
	return f.count, f.updateErr
}

func do(s *Server, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestGetProfiles(t *testing.T) {
	svc := &fakeService{info: subinfo.Info{Upload: "0", Download: "5", Total: "10", Expire: "1767484800"}}
	s := NewServer(svc, "secret", nil)

	rec := do(s, http.MethodGet, "/api/v2/profiles?name=home&name=work&api_key=secret&override=dns.yaml")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"home", "work"}, svc.names)
	assert.Equal(t, "dns.yaml", svc.override)
	assert.Equal(t, "inline; filename=home", rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "upload=0; download=5; total=10; expire=1767484800", rec.Header().Get("subscription-userinfo"))
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
	assert.Contains(t, rec.Body.String(), "mixed-port: 7890")
	assert.Contains(t, rec.Body.String(), "MATCH,DIRECT")
}

func TestGetProfilesOmitsIncompleteUserInfo(t *testing.T) {
	svc := &fakeService{info: subinfo.Info{Upload: "0", Download: "5", Total: "10"}}
	s := NewServer(svc, "secret", nil)

	rec := do(s, http.MethodGet, "/api/v2/profiles/?name=home&api_key=secret")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("subscription-userinfo"))
}

func TestAuthorization(t *testing.T) {
	s := NewServer(&fakeService{}, "secret", nil)

	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, "/api/v2/profiles?name=home&api_key=wrong").Code)
	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, "/api/v2/profiles?name=home").Code)
	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodPut, "/api/v2/profiles/home?url=http://x").Code)

	open := NewServer(&fakeService{}, "", nil)
	assert.Equal(t, http.StatusUnauthorized, do(open, http.MethodGet, "/api/v2/profiles?name=home&api_key=").Code)
}

func TestErrorKindsMapToStatus(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{apperr.New(apperr.KindNotFound, "Profile 'home' not found."), http.StatusNotFound},
		{apperr.New(apperr.KindIO, "Error loading profile 'home'"), http.StatusInternalServerError},
		{apperr.New(apperr.KindInvalid, "bad"), http.StatusBadRequest},
	}
	for _, tc := range cases {
		s := NewServer(&fakeService{genErr: tc.err}, "secret", nil)
		rec := do(s, http.MethodGet, "/api/v2/profiles?name=home&api_key=secret")
		assert.Equal(t, tc.code, rec.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.NotEmpty(t, body["detail"])
	}

	s := NewServer(&fakeService{}, "secret", nil)
	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodGet, "/api/v2/profiles?api_key=secret").Code)
}

func TestUpdateProfile(t *testing.T) {
	svc := &fakeService{count: 42}
	s := NewServer(svc, "secret", nil)

	rec := do(s, http.MethodPut, "/api/v2/profiles/home?api_key=secret&url=https%3A%2F%2Fsub.example%2Fclash")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "home", svc.updated)
	assert.Equal(t, "https://sub.example/clash", svc.url)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "Profile 'home' updated with 42 proxies.", body["message"])

	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodPut, "/api/v2/profiles/home?api_key=secret").Code)

	svc.updateErr = apperr.Upstream(http.StatusForbidden, "remote server error", nil)
	assert.Equal(t, http.StatusForbidden, do(s, http.MethodPut, "/api/v2/profiles/home?api_key=secret&url=http://x").Code)
}

func TestHealthAndMetrics(t *testing.T) {
	m := metrics.New(nil)
	s := NewServer(&fakeService{}, "secret", m)

	rec := do(s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	do(s, http.MethodGet, "/api/v2/profiles?name=a&api_key=secret")
	rec = do(s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="/api/v2/profiles"`)

	noMetrics := NewServer(&fakeService{}, "secret", nil)
	assert.Equal(t, http.StatusNotFound, do(noMetrics, http.MethodGet, "/metrics").Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := NewServer(&fakeService{}, "secret", nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}
