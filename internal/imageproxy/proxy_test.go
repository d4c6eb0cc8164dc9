package imageproxy

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProxySetsCORSHeaders(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png-bytes"))
	}))
	defer upstream.Close()

	h := NewHandler(upstream.Client())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/proxy?url="+url.QueryEscape(upstream.URL+"/a.png"), nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.Equal(t, "png-bytes", rr.Body.String())
}

func TestProxyRejectsBadInput(t *testing.T) {
	h := NewHandler(nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/proxy", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/proxy?url=ftp://host/a.png", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestProxyRejectsNonImageUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html></html>"))
	}))
	defer upstream.Close()

	h := NewHandler(upstream.Client())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/proxy?url="+url.QueryEscape(upstream.URL), nil))
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestRewrite(t *testing.T) {
	rewrite := Rewrite("https://api.printcraft.app/api/v1/proxy")

	got := rewrite("https://cdn.example/photo.jpg")
	assert.Equal(t, "https://api.printcraft.app/api/v1/proxy?url="+url.QueryEscape("https://cdn.example/photo.jpg"), got)

	assert.Equal(t, "data:image/png;base64,AA==", rewrite("data:image/png;base64,AA=="))
	assert.Equal(t, "blob:printcraft/x", rewrite("blob:printcraft/x"))
}
