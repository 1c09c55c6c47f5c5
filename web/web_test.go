package web_test

import (
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/edgehook/web"
)

const indexHTML = `<!doctype html><html><head></head><body>site</body></html>`

func testSite() fstest.MapFS {
	return fstest.MapFS{
		"index.html":       {Data: []byte(indexHTML)},
		"about/index.html": {Data: []byte("<p>about</p>")},
		"maps/route.kml":   {Data: []byte(`<?xml version="1.0"?><kml></kml>`)},
		"maps/ROUTE2.KML":  {Data: []byte(`<kml></kml>`)},
		"app.js":           {Data: []byte("console.log(1)")},
		"empty-dir/.keep":  {Data: []byte{}},
		"big.txt":          {Data: []byte(strings.Repeat("edgehook ", 1024))},
	}
}

func get(t *testing.T, h http.Handler, target string, header ...string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Result()
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestHandlerRequiresIndex(t *testing.T) {
	_, err := web.Handler(fstest.MapFS{"app.js": {Data: []byte("x")}})
	assert.Error(t, err)
}

func TestHandlerServesIndexAtRoot(t *testing.T) {
	h, err := web.Handler(testSite())
	require.NoError(t, err)

	resp := get(t, h, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, indexHTML, readBody(t, resp))
}

func TestHandlerServesFiles(t *testing.T) {
	h, err := web.Handler(testSite())
	require.NoError(t, err)

	resp := get(t, h, "/app.js")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "console.log(1)", readBody(t, resp))
}

func TestHandlerServesDirectoryIndex(t *testing.T) {
	h, err := web.Handler(testSite())
	require.NoError(t, err)

	resp := get(t, h, "/about/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<p>about</p>", readBody(t, resp))
}

func TestHandlerDeepLinkFallback(t *testing.T) {
	h, err := web.Handler(testSite())
	require.NoError(t, err)

	for _, target := range []string{"/trips/2021/edinburgh", "/empty-dir/", "/missing.kml"} {
		resp := get(t, h, target)
		assert.Equal(t, http.StatusOK, resp.StatusCode, target)
		assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"), target)
		assert.Equal(t, indexHTML, readBody(t, resp), target)
	}
}

func TestHandlerKMLContentType(t *testing.T) {
	h, err := web.Handler(testSite())
	require.NoError(t, err)

	resp := get(t, h, "/maps/route.kml")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/vnd.google-earth.kml+xml", resp.Header.Get("Content-Type"))

	resp = get(t, h, "/maps/ROUTE2.KML")
	assert.Equal(t, "application/vnd.google-earth.kml+xml", resp.Header.Get("Content-Type"))
}

func TestHandlerCustomMIMETypes(t *testing.T) {
	h, err := web.Handler(testSite(), web.WithMIMETypes(map[string]string{".js": "text/javascript; charset=utf-8"}))
	require.NoError(t, err)

	assert.Equal(t, "text/javascript; charset=utf-8", get(t, h, "/app.js").Header.Get("Content-Type"))
}

func TestMIMETypesRejectsBadExtensions(t *testing.T) {
	_, err := web.MIMETypes(map[string]string{"kml": "application/xml"})
	assert.Error(t, err)

	_, err = web.MIMETypes(map[string]string{".kml": ""})
	assert.Error(t, err)

	_, err = web.Handler(testSite(), web.WithMIMETypes(map[string]string{".": "x"}))
	assert.Error(t, err)
}

func TestHandlerVersion(t *testing.T) {
	h, err := web.Handler(testSite(), web.WithVersion("4f2a9c1"))
	require.NoError(t, err)

	resp := get(t, h, web.VersionPath)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	var body struct {
		Version string `json:"version"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "4f2a9c1", body.Version)
}

func TestHandlerWithoutVersionFallsBack(t *testing.T) {
	h, err := web.Handler(testSite())
	require.NoError(t, err)

	resp := get(t, h, web.VersionPath)
	assert.Equal(t, indexHTML, readBody(t, resp))
}

func TestHandlerCompression(t *testing.T) {
	h, err := web.Handler(testSite(), web.WithCompression(true))
	require.NoError(t, err)

	resp := get(t, h, "/big.txt", "Accept-Encoding", "gzip")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))

	zr, err := gzip.NewReader(resp.Body)
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("edgehook ", 1024), string(plain))

	resp = get(t, h, "/big.txt")
	assert.Empty(t, resp.Header.Get("Content-Encoding"))
}

func TestHandlerWithoutFallback(t *testing.T) {
	h, err := web.Handler(testSite(), web.WithFallback(false))
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/favicon.png").StatusCode)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/empty-dir/").StatusCode)
	assert.Equal(t, http.StatusOK, get(t, h, "/").StatusCode)
	assert.Equal(t, http.StatusOK, get(t, h, "/app.js").StatusCode)
}
