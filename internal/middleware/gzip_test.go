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

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte(s)); err != nil {
		t.Fatalf("write gzip: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return buf.Bytes()
}

// echoBorrowing отвечает телом запроса, обёрнутым в JSON-объект выдачи.
func echoBorrowing(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write([]byte(`{"request":` + string(body) + `}`))
}

func TestGzipMiddleware(t *testing.T) {
	const checkout = `{"member_id":2,"book_id":5}`

	tests := []struct {
		name            string
		body            []byte
		headers         map[string]string
		wantStatus      int
		wantEncoding    string
		wantBodyContain string
	}{
		{
			name:            "plain request, plain response",
			body:            []byte(checkout),
			wantStatus:      http.StatusCreated,
			wantBodyContain: `"request":{"member_id":2`,
		},
		{
			name:            "plain request, gzip response",
			body:            []byte(checkout),
			headers:         map[string]string{"Accept-Encoding": "gzip, deflate"},
			wantStatus:      http.StatusCreated,
			wantEncoding:    "gzip",
			wantBodyContain: `"book_id":5`,
		},
		{
			name:            "gzip request, plain response",
			body:            gzipBytes(t, checkout),
			headers:         map[string]string{"Content-Encoding": "gzip"},
			wantStatus:      http.StatusCreated,
			wantBodyContain: `"request":{"member_id":2`,
		},
		{
			name: "gzip request, gzip response",
			body: gzipBytes(t, checkout),
			headers: map[string]string{
				"Content-Encoding": "gzip",
				"Accept-Encoding":  "gzip",
			},
			wantStatus:      http.StatusCreated,
			wantEncoding:    "gzip",
			wantBodyContain: `"book_id":5`,
		},
		{
			name:       "corrupted gzip request",
			body:       []byte("not gzip at all"),
			headers:    map[string]string{"Content-Encoding": "gzip"},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/borrowings", bytes.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()

			GzipMiddleware(http.HandlerFunc(echoBorrowing)).ServeHTTP(w, req)

			res := w.Result()
			defer res.Body.Close()

			require.Equal(t, tt.wantStatus, res.StatusCode)
			assert.Equal(t, tt.wantEncoding, res.Header.Get("Content-Encoding"))
			if tt.wantBodyContain == "" {
				return
			}

			var body io.Reader = res.Body
			if tt.wantEncoding == "gzip" {
				gr, err := gzip.NewReader(res.Body)
				require.NoError(t, err)
				defer gr.Close()
				body = gr
			}
			data, err := io.ReadAll(body)
			require.NoError(t, err)
			assert.True(t, strings.Contains(string(data), tt.wantBodyContain), "body %q", data)
		})
	}
}

func TestGzipMiddleware_NoContent(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/borrowings/overdue", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()

	GzipMiddleware(next).ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Zero(t, w.Body.Len())
}
