package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write(body)
	})
}

func TestWithGzip_CompressesResponse(t *testing.T) {
	h := WithGzip(echoHandler())

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("hello gzip"))
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	zr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	out, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, "hello gzip", string(out))
}

func TestWithGzip_DecompressesRequest(t *testing.T) {
	h := WithGzip(echoHandler())

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write([]byte("compressed in"))
	require.NoError(t, zw.Close())

	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set("Content-Encoding", "gzip")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	// клиент не принимает gzip — ответ в открытом виде
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, "compressed in", w.Body.String())
}

func TestWithGzip_SkipsEventStream(t *testing.T) {
	h := WithGzip(echoHandler())

	req := httptest.NewRequest(http.MethodGet, "/", strings.NewReader("ev"))
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Accept", "text/event-stream")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	// SSE не сжимается: Flush должен доходить до клиента сразу
	assert.Empty(t, w.Header().Get("Content-Encoding"))
}

func TestWithGzip_BadBody(t *testing.T) {
	h := WithGzip(echoHandler())

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("not gzip at all"))
	req.Header.Set("Content-Encoding", "gzip")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
