package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/localchat/internal/api"
	"example.com/localchat/pkg/auth"
	"example.com/localchat/pkg/notify"
	"example.com/localchat/pkg/store"
)

type testAPI struct {
	Server *httptest.Server
	Store  *store.FileStore
	Bus    *notify.Bus
}

func setupTestAPI(t *testing.T) *testAPI {
	st, err := store.OpenFileStore(filepath.Join(t.TempDir(), "chatrooms.json"))
	require.Nil(t, err)

	bus := notify.NewBus()

	ctx, cancel := context.WithCancel(context.Background())

	a := api.New(ctx, st, bus, api.Config{
		TokenOptions: auth.TokenOptions{
			Secret: []byte("test-secret"),
			Exp:    time.Hour,
		},
		PollInterval: 20 * time.Millisecond,
	})

	server := httptest.NewServer(a.Mux())
	t.Cleanup(func() {
		server.Close()
		cancel()
	})

	return &testAPI{Server: server, Store: st, Bus: bus}
}

// userClient is an API client logged in as one display name.
type userClient struct {
	t      *testing.T
	server *httptest.Server
	client *http.Client
	Token  string
}

func login(t *testing.T, a *testAPI, name string) *userClient {
	jar, err := cookiejar.New(nil)
	require.Nil(t, err)

	client := &http.Client{Jar: jar}

	uc := &userClient{t: t, server: a.Server, client: client}

	res := uc.do(http.MethodPost, "/auth/login", api.LoginPayload{Name: name})
	require.Equal(t, http.StatusOK, res.StatusCode)

	var body api.LoginResponse
	decode(t, res, &body)
	uc.Token = body.Token
	return uc
}

func (c *userClient) do(method, path string, payload any) *http.Response {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.Nil(c.t, err)
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.server.URL+path, body)
	require.Nil(c.t, err)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(req)
	require.Nil(c.t, err)
	return res
}

func jsonBody(t *testing.T, v any) io.Reader {
	data, err := json.Marshal(v)
	require.Nil(t, err)
	return bytes.NewReader(data)
}

func decode(t *testing.T, res *http.Response, v any) {
	defer res.Body.Close()
	require.Nil(t, json.NewDecoder(res.Body).Decode(v))
}
