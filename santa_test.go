package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Seednode/secretsanta/santa"
)

type firstPick struct{}

func (firstPick) IntN(int) int { return 0 }

type brokenStore struct {
	*santa.MemoryStore
}

func (brokenStore) Save(context.Context, santa.Snapshot, uint64) (uint64, error) {
	return 0, errors.New("connection refused")
}

func testConfig() *Config {
	return &Config{
		port:           8080,
		metrics:        true,
		sessionTimeout: time.Hour,
		storeTimeout:   time.Second,
	}
}

func newTestServer(t *testing.T, coordinator string, roster []string, opts ...santa.Option) *httptest.Server {
	t.Helper()

	game, err := santa.New(t.Context(), roster, opts...)
	require.NoError(t, err)

	errs := make(chan error, 64)
	srv := httptest.NewServer(newRouter(t.Context(), testConfig(), game, coordinator, errs))
	t.Cleanup(srv.Close)

	return srv
}

type testClient struct {
	t    *testing.T
	base string
	http *http.Client
}

func newTestClient(t *testing.T, srv *httptest.Server) *testClient {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &testClient{t: t, base: srv.URL, http: &http.Client{Jar: jar}}
}

func (c *testClient) do(method, path string, body any) (*http.Response, []byte) {
	c.t.Helper()

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(c.t, err)
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(c.t.Context(), method, c.base+path, r)
	require.NoError(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)

	return resp, data
}

func (c *testClient) login(name string) {
	c.t.Helper()

	resp, body := c.do(http.MethodPost, "/api/login", loginRequest{Name: name})
	require.Equal(c.t, http.StatusOK, resp.StatusCode, string(body))
}

func (c *testClient) draw() (int, string) {
	c.t.Helper()

	resp, body := c.do(http.MethodPost, "/api/draw", nil)

	var out drawResponse
	if resp.StatusCode == http.StatusOK {
		require.NoError(c.t, json.Unmarshal(body, &out))
	}

	return resp.StatusCode, out.Recipient
}

func (c *testClient) dial() *websocket.Conn {
	c.t.Helper()

	u, err := url.Parse(c.base)
	require.NoError(c.t, err)

	header := http.Header{}
	for _, cookie := range c.http.Jar.Cookies(u) {
		header.Add("Cookie", cookie.String())
	}

	conn, _, err := websocket.DefaultDialer.DialContext(c.t.Context(), "ws"+strings.TrimPrefix(c.base, "http")+"/ws", header)
	require.NoError(c.t, err)
	c.t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))

	return msg
}

func TestLoginAndDraw(t *testing.T) {
	roster := []string{"Alice", "Bob", "Carol"}
	srv := newTestServer(t, "Alice", roster)
	c := newTestClient(t, srv)

	c.login("Bob")

	code, recipient := c.draw()
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, roster, recipient)
	require.NotEqual(t, "Bob", recipient)

	code, again := c.draw()
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, recipient, again)

	resp, body := c.do(http.MethodGet, "/api/me", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var me meResponse
	require.NoError(t, json.Unmarshal(body, &me))
	require.Equal(t, meResponse{Name: "Bob", Recipient: recipient}, me)

	resp, body = c.do(http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st santa.Status
	require.NoError(t, json.Unmarshal(body, &st))
	require.Equal(t, santa.Status{Total: 3, Claimed: 1, Remaining: 2}, st)
}

func TestDraw_RequiresLogin(t *testing.T) {
	srv := newTestServer(t, "", []string{"Alice", "Bob"})
	c := newTestClient(t, srv)

	code, _ := c.draw()
	require.Equal(t, http.StatusUnauthorized, code)

	resp, _ := c.do(http.MethodGet, "/api/me", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogin_Rejects(t *testing.T) {
	srv := newTestServer(t, "", []string{"Alice", "Bob"})
	c := newTestClient(t, srv)

	resp, body := c.do(http.MethodPost, "/api/login", loginRequest{Name: "Mallory"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, string(body), "unknown participant")

	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, srv.URL+"/api/login", strings.NewReader("{not json"))
	require.NoError(t, err)
	raw, err := c.http.Do(req)
	require.NoError(t, err)
	raw.Body.Close()
	require.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestLogout(t *testing.T) {
	srv := newTestServer(t, "", []string{"Alice", "Bob"})
	c := newTestClient(t, srv)

	c.login("Alice")
	resp, _ := c.do(http.MethodPost, "/api/logout", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = c.do(http.MethodGet, "/api/me", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDraw_StrandedGiver(t *testing.T) {
	srv := newTestServer(t, "", []string{"A", "B", "C"}, santa.WithSource(firstPick{}))

	for giver, want := range map[string]string{"A": "B", "B": "A"} {
		c := newTestClient(t, srv)
		c.login(giver)
		code, got := c.draw()
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, want, got)
	}

	c := newTestClient(t, srv)
	c.login("C")
	resp, body := c.do(http.MethodPost, "/api/draw", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Contains(t, string(body), "no candidate")
}

func TestDraw_StoreDown(t *testing.T) {
	srv := newTestServer(t, "", []string{"A", "B"}, santa.WithStore(brokenStore{santa.NewMemoryStore()}))
	c := newTestClient(t, srv)

	c.login("A")
	code, _ := c.draw()
	require.Equal(t, http.StatusServiceUnavailable, code)

	resp, body := c.do(http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"total":2,"claimed":0,"remaining":2}`, string(body))
}

func TestCoordinatorEndpoints(t *testing.T) {
	roster := []string{"Alice", "Bob", "Carol", "Dave"}
	srv := newTestServer(t, "Alice", roster)

	bob := newTestClient(t, srv)
	bob.login("Bob")
	code, bobGets := bob.draw()
	require.Equal(t, http.StatusOK, code)

	t.Run("participants are refused", func(t *testing.T) {
		for _, req := range []struct{ method, path string }{
			{http.MethodGet, "/api/assignments"},
			{http.MethodGet, "/api/report"},
			{http.MethodPost, "/api/reset"},
		} {
			resp, _ := bob.do(req.method, req.path, nil)
			require.Equal(t, http.StatusForbidden, resp.StatusCode, req.path)
		}

		anon := newTestClient(t, srv)
		resp, _ := anon.do(http.MethodGet, "/api/assignments", nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	alice := newTestClient(t, srv)
	alice.login("Alice")

	t.Run("table", func(t *testing.T) {
		resp, body := alice.do(http.MethodGet, "/api/assignments", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var out assignmentsResponse
		require.NoError(t, json.Unmarshal(body, &out))
		require.Equal(t, []santa.Pair{{Giver: "Bob", Recipient: bobGets}}, out.Pairs)
		require.Equal(t, santa.Status{Total: 4, Claimed: 1, Remaining: 3}, out.Status)
	})

	t.Run("report", func(t *testing.T) {
		resp, body := alice.do(http.MethodGet, "/api/report", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")
		require.Equal(t, "Bob → "+bobGets+"\n", string(body))
	})

	t.Run("reset", func(t *testing.T) {
		resp, body := alice.do(http.MethodPost, "/api/reset", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.JSONEq(t, `{"total":4,"claimed":0,"remaining":4}`, string(body))

		resp, body = bob.do(http.MethodGet, "/api/me", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.NotContains(t, string(body), "recipient")
	})
}

func TestWebsocketUpdates(t *testing.T) {
	srv := newTestServer(t, "Alice", []string{"Alice", "Bob", "Carol"})

	watcher := newTestClient(t, srv)
	conn := watcher.dial()

	msg := readMessage(t, conn)
	require.Equal(t, "status", msg["type"])
	require.EqualValues(t, 3, msg["remaining"])

	alice := newTestClient(t, srv)
	alice.login("Alice")
	coord := alice.dial()

	msg = readMessage(t, coord)
	require.Equal(t, "status", msg["type"])
	msg = readMessage(t, coord)
	require.Equal(t, "assignments", msg["type"])
	require.Empty(t, msg["pairs"])

	bob := newTestClient(t, srv)
	bob.login("Bob")
	code, _ := bob.draw()
	require.Equal(t, http.StatusOK, code)

	msg = readMessage(t, conn)
	require.Equal(t, "status", msg["type"])
	require.EqualValues(t, 1, msg["claimed"])
	require.EqualValues(t, 2, msg["remaining"])

	msg = readMessage(t, coord)
	require.Equal(t, "status", msg["type"])
	msg = readMessage(t, coord)
	require.Equal(t, "assignments", msg["type"])
	require.Len(t, msg["pairs"], 1)
}

func TestStaticRoutes(t *testing.T) {
	srv := newTestServer(t, "", []string{"Alice", "Bob"})
	c := newTestClient(t, srv)

	tests := []struct {
		path        string
		contentType string
		contains    string
	}{
		{"/", "text/html", "Secret Santa"},
		{"/assets/app.js", "text/javascript", "api/"},
		{"/assets/app.css", "text/css", ".card"},
		{"/favicons/favicon.svg", "image/svg+xml", "<svg"},
		{"/healthz", "text/plain", "Ok"},
		{"/version", "text/plain", "secretsanta v" + releaseVersion},
		{"/robots.txt", "text/plain", "Disallow"},
		{"/api/roster", "application/json", `"Alice"`},
		{"/metrics", "text/plain", "secretsanta_remaining 2"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, body := c.do(http.MethodGet, tt.path, nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			require.Contains(t, resp.Header.Get("Content-Type"), tt.contentType)
			require.Contains(t, string(body), tt.contains)
			require.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
		})
	}

	resp, _ := c.do(http.MethodGet, "/assets/missing.js", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestQRCode(t *testing.T) {
	srv := newTestServer(t, "", []string{"Alice", "Bob"})
	c := newTestClient(t, srv)

	resp, body := c.do(http.MethodGet, "/qr", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	require.True(t, bytes.HasPrefix(body, []byte("\x89PNG")))
}

func TestMetricsCountDraws(t *testing.T) {
	srv := newTestServer(t, "", []string{"Alice", "Bob"})
	c := newTestClient(t, srv)

	c.login("Alice")
	c.draw()
	c.draw()

	resp, body := c.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), `secretsanta_draws_total{result="drawn"} 1`)
	require.Contains(t, string(body), `secretsanta_draws_total{result="repeat"} 1`)
	require.Contains(t, string(body), "secretsanta_claimed 1")
}

func TestPeerResetVisibleToOtherServer(t *testing.T) {
	roster := []string{"Alice", "Bob", "Carol"}
	store := santa.NewMemoryStore()

	first := newTestServer(t, "Alice", roster, santa.WithStore(store))
	second := newTestServer(t, "Alice", roster, santa.WithStore(store))

	bob := newTestClient(t, first)
	bob.login("Bob")
	code, _ := bob.draw()
	require.Equal(t, http.StatusOK, code)

	alice := newTestClient(t, second)
	alice.login("Alice")
	resp, _ := alice.do(http.MethodPost, "/api/reset", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := bob.do(http.MethodGet, "/api/me", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotContains(t, string(body), "recipient")

	resp, body = bob.do(http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"total":3,"claimed":0,"remaining":3}`, string(body))

	code, recipient := bob.draw()
	require.Equal(t, http.StatusOK, code)

	saved, _, err := store.Load(t.Context())
	require.NoError(t, err)
	require.Equal(t, map[string]string{"Bob": recipient}, saved.Assigned)
}

func TestPrefixedRoutes(t *testing.T) {
	game, err := santa.New(t.Context(), []string{"Alice", "Bob"})
	require.NoError(t, err)

	cfg := testConfig()
	cfg.prefix = "/santa"

	srv := httptest.NewServer(newRouter(t.Context(), cfg, game, "", make(chan error, 64)))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv)
	for _, path := range []string{"/santa/", "/santa/favicons/favicon.svg", "/santa/api/roster"} {
		resp, _ := c.do(http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	page := newPage(cfg.prefix, "Server Error", "oops")
	require.Contains(t, page, `href="/santa/favicons/favicon.svg"`)
	require.Contains(t, page, `<a href="/santa/">oops</a>`)
}
