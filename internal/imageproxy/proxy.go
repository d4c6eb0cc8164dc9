// Package imageproxy rewrites remote image URLs through a same-origin
// endpoint with permissive cross-origin headers. Pixel-level raster reads
// are forbidden on images served without CORS headers, so every remote
// image the compositor touches goes through here first.
package imageproxy

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxProxiedBytes = 32 << 20

// Handler proxies GET /proxy?url=<remote> requests.
type Handler struct {
	client *http.Client
}

func NewHandler(client *http.Client) *Handler {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Handler{client: client}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		http.Error(w, "missing url parameter", http.StatusBadRequest)
		return
	}
	target, err := url.Parse(raw)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") {
		http.Error(w, "invalid url parameter", http.StatusBadRequest)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		http.Error(w, "invalid upstream request", http.StatusBadRequest)
		return
	}
	resp, err := h.client.Do(req)
	if err != nil {
		log.Printf("image proxy: fetch %s failed: %v", target.Host, err)
		http.Error(w, "upstream fetch failed", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		http.Error(w, fmt.Sprintf("upstream returned %d", resp.StatusCode), http.StatusBadGateway)
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		http.Error(w, "upstream is not an image", http.StatusBadGateway)
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Cross-Origin-Resource-Policy", "cross-origin")
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")

	if _, err := io.Copy(w, io.LimitReader(resp.Body, maxProxiedBytes)); err != nil {
		log.Printf("image proxy: copy failed: %v", err)
	}
}

// Rewrite returns a RewriteFunc pointing remote URLs at the proxy mounted on
// baseURL. Data URIs and blob references pass through untouched.
func Rewrite(baseURL string) func(string) string {
	base := strings.TrimRight(baseURL, "/")
	return func(remote string) string {
		if !strings.HasPrefix(remote, "http://") && !strings.HasPrefix(remote, "https://") {
			return remote
		}
		return base + "?url=" + url.QueryEscape(remote)
	}
}
