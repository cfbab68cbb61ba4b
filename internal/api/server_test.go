package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitdm/gitdm/internal/api/middleware"
	"github.com/gitdm/gitdm/internal/api/presenter"
	"github.com/gitdm/gitdm/internal/audit"
	"github.com/gitdm/gitdm/internal/config"
)

func newTestServer(t *testing.T, opts ...ServerOption) *httptest.Server {
	t.Helper()
	data, err := NewDataset(&config.DevServer{
		Users: []config.UserConfig{{Email: "a@b.com", Password: "pw"}},
		Resources: map[string][]map[string]any{
			"patients": {
				{"id": "p1", "name": "Ada"},
				{"id": "p2", "name": "Alan"},
				{"id": "p3", "name": "Grace"},
			},
		},
	})
	require.NoError(t, err)

	opts = append([]ServerOption{WithRegistry(prometheus.NewRegistry())}, opts...)
	srv := httptest.NewServer(NewServer(newTestAuthority(t, true), data, opts...).Routes())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, token, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, b
}

func login(t *testing.T, srv *httptest.Server) TokenPair {
	t.Helper()
	resp, body := do(t, http.MethodPost, srv.URL+APIPrefix+TokenRoute, "",
		`{"email":"a@b.com","password":"pw"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var pair TokenPair
	require.NoError(t, json.Unmarshal(body, &pair))
	return pair
}

func TestServer_Token(t *testing.T) {
	srv := newTestServer(t)
	pair := login(t, srv)
	assert.NotEmpty(t, pair.Access)
	assert.NotEmpty(t, pair.Refresh)
}

func TestServer_TokenRejected(t *testing.T) {
	srv := newTestServer(t)

	tests := map[string]struct {
		body string
		want int
	}{
		"wrong password": {`{"email":"a@b.com","password":"nope"}`, http.StatusUnauthorized},
		"unknown user":   {`{"email":"x@y.com","password":"pw"}`, http.StatusUnauthorized},
		"missing fields": {`{"email":"a@b.com"}`, http.StatusBadRequest},
		"unknown field":  {`{"username":"a"}`, http.StatusBadRequest},
		"not json":       {`email=a`, http.StatusBadRequest},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			resp, body := do(t, http.MethodPost, srv.URL+APIPrefix+TokenRoute, "", tc.body)
			assert.Equal(t, tc.want, resp.StatusCode)

			var errResp presenter.ErrorResponse
			require.NoError(t, json.Unmarshal(body, &errResp))
			assert.NotEmpty(t, errResp.Detail)
			assert.Equal(t, resp.Header.Get(middleware.CorrelationIDHeader), errResp.CorrelationID)
		})
	}
}

func TestServer_Refresh(t *testing.T) {
	srv := newTestServer(t)
	pair := login(t, srv)

	resp, body := do(t, http.MethodPost, srv.URL+APIPrefix+TokenRefreshRoute, "",
		`{"refresh":"`+pair.Refresh+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var next TokenPair
	require.NoError(t, json.Unmarshal(body, &next))
	assert.NotEmpty(t, next.Access)
	assert.NotEqual(t, pair.Refresh, next.Refresh)

	resp, _ = do(t, http.MethodPost, srv.URL+APIPrefix+TokenRefreshRoute, "",
		`{"refresh":"`+pair.Refresh+`"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "old refresh token was consumed")

	resp, _ = do(t, http.MethodPost, srv.URL+APIPrefix+TokenRefreshRoute, "", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_ResourcesRequireAuth(t *testing.T) {
	srv := newTestServer(t)

	resp, body := do(t, http.MethodGet, srv.URL+APIPrefix+"/patients/", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))
	assert.Contains(t, string(body), "detail")

	resp, _ = do(t, http.MethodGet, srv.URL+APIPrefix+"/patients/", "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_List(t *testing.T) {
	srv := newTestServer(t)
	token := login(t, srv).Access

	resp, body := do(t, http.MethodGet, srv.URL+APIPrefix+"/patients/?page_size=2", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var page Page
	require.NoError(t, json.Unmarshal(body, &page))
	assert.Equal(t, 3, page.Count)
	assert.Len(t, page.Results, 2)
	require.NotNil(t, page.Next)
	assert.Contains(t, *page.Next, "page=2")
	assert.Nil(t, page.Previous)

	resp, body = do(t, http.MethodGet, *page.Next, token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page = Page{}
	require.NoError(t, json.Unmarshal(body, &page))
	assert.Len(t, page.Results, 1)
	assert.Nil(t, page.Next)
	assert.NotNil(t, page.Previous)

	resp, _ = do(t, http.MethodGet, srv.URL+APIPrefix+"/patients/?page=9", token, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, srv.URL+APIPrefix+"/patients/?page=0", token, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_EmptyCollection(t *testing.T) {
	srv := newTestServer(t)
	token := login(t, srv).Access

	resp, body := do(t, http.MethodGet, srv.URL+APIPrefix+"/encounters/", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"count":0,"next":null,"previous":null,"results":[]}`, string(body))
}

func TestServer_Detail(t *testing.T) {
	srv := newTestServer(t)
	token := login(t, srv).Access

	resp, body := do(t, http.MethodGet, srv.URL+APIPrefix+"/patients/p2/", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"id":"p2","name":"Alan"}`, string(body))

	resp, _ = do(t, http.MethodGet, srv.URL+APIPrefix+"/patients/nope/", token, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, srv.URL+APIPrefix+"/unicorns/", token, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_CorrelationIDEchoed(t *testing.T) {
	srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+HealthCheckRoute, nil)
	require.NoError(t, err)
	req.Header.Set(middleware.CorrelationIDHeader, "corr-1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "corr-1", resp.Header.Get(middleware.CorrelationIDHeader))
}

func TestServer_Metrics(t *testing.T) {
	srv := newTestServer(t)
	login(t, srv)

	resp, body := do(t, http.MethodGet, srv.URL+MetricsRoute, "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `gitdm_devserver_tokens_issued_total{grant="password"} 1`)
}

func TestServer_About(t *testing.T) {
	srv := newTestServer(t)
	resp, body := do(t, http.MethodGet, srv.URL+AboutRoute, "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"service":"gitdm"`)
}

func TestDefaultDataset(t *testing.T) {
	d := DefaultDataset()
	assert.True(t, d.Authenticate("demo@gitdm.local", "demo"))
	assert.False(t, d.Authenticate("demo@gitdm.local", "wrong"))
	assert.False(t, d.Authenticate("nobody@gitdm.local", "demo"))
	for _, res := range Resources {
		assert.NotEmpty(t, d.list(res), res)
	}
}

func TestNewDataset_UnknownResource(t *testing.T) {
	_, err := NewDataset(&config.DevServer{
		Resources: map[string][]map[string]any{"unicorns": {{"id": 1}}},
	})
	assert.Error(t, err)
}

func TestServer_Audit(t *testing.T) {
	auditor := audit.NewInMemoryAuditor()
	srv := newTestServer(t, WithAuditor(auditor))

	pair := login(t, srv)
	do(t, http.MethodPost, srv.URL+APIPrefix+TokenRoute, "", `{"email":"a@b.com","password":"nope"}`)
	do(t, http.MethodPost, srv.URL+APIPrefix+TokenRefreshRoute, "", `{"refresh":"`+pair.Refresh+`"}`)
	do(t, http.MethodPost, srv.URL+APIPrefix+TokenRefreshRoute, "", `{"refresh":"`+pair.Refresh+`"}`)

	entries := auditor.GetRecent(10)
	require.Len(t, entries, 4)

	assert.Equal(t, audit.ActionTokenObtain, entries[0].Action)
	assert.True(t, entries[0].Granted)
	assert.Equal(t, "a@b.com", entries[0].Subject)
	assert.NotEmpty(t, entries[0].ID)
	assert.NotEmpty(t, entries[0].TokenFingerprint)

	assert.False(t, entries[1].Granted)
	assert.Equal(t, "invalid credentials", entries[1].Error)

	assert.Equal(t, audit.ActionTokenRefresh, entries[2].Action)
	assert.True(t, entries[2].Granted)
	assert.True(t, entries[2].Rotated)
	assert.Equal(t, "a@b.com", entries[2].Subject)

	assert.False(t, entries[3].Granted, "replayed refresh token is rejected")
	assert.NotEmpty(t, entries[3].Error)
}

func TestServer_AuditEndpoint(t *testing.T) {
	t.Run("memory auditor", func(t *testing.T) {
		srv := newTestServer(t, WithAuditor(audit.NewInMemoryAuditor()))
		login(t, srv)
		token := login(t, srv).Access

		resp, body := do(t, http.MethodGet, srv.URL+APIPrefix+AuditRoute+"?limit=1", token, "")
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
		var entries []audit.Entry
		require.NoError(t, json.Unmarshal(body, &entries))
		require.Len(t, entries, 1)
		assert.Equal(t, "a@b.com", entries[0].Subject)

		resp, _ = do(t, http.MethodGet, srv.URL+APIPrefix+AuditRoute+"?limit=x", token, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
	t.Run("noop auditor", func(t *testing.T) {
		srv := newTestServer(t)
		token := login(t, srv).Access

		resp, _ := do(t, http.MethodGet, srv.URL+APIPrefix+AuditRoute, token, "")
		assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
	})
	t.Run("requires auth", func(t *testing.T) {
		srv := newTestServer(t, WithAuditor(audit.NewInMemoryAuditor()))
		resp, _ := do(t, http.MethodGet, srv.URL+APIPrefix+AuditRoute, "", "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestServer_Create(t *testing.T) {
	srv := newTestServer(t)
	token := login(t, srv).Access
	url := srv.URL + APIPrefix + "/patients/"

	resp, body := do(t, http.MethodPost, url, token, `{"name":"Barbara"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var created map[string]any
	require.NoError(t, json.Unmarshal(body, &created))
	id, _ := created["id"].(string)
	require.NotEmpty(t, id, "an id is assigned")
	assert.Equal(t, "Barbara", created["name"])

	resp, body = do(t, http.MethodGet, url+id+"/", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"id":"`+id+`","name":"Barbara"}`, string(body))

	resp, body = do(t, http.MethodGet, url, token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page Page
	require.NoError(t, json.Unmarshal(body, &page))
	assert.Equal(t, 4, page.Count)

	tests := []struct {
		name   string
		url    string
		token  string
		body   string
		status int
	}{
		{"duplicate id", url, token, `{"id":"p1"}`, http.StatusBadRequest},
		{"non-string id", url, token, `{"id":7}`, http.StatusBadRequest},
		{"not an object", url, token, `["x"]`, http.StatusBadRequest},
		{"empty body", url, token, ``, http.StatusBadRequest},
		{"unknown resource", srv.URL + APIPrefix + "/unicorns/", token, `{}`, http.StatusNotFound},
		{"no token", url, "", `{"name":"x"}`, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, http.MethodPost, tt.url, tt.token, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode, string(body))
		})
	}
}
