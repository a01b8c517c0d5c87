package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func gzipBody(t *testing.T, s string) io.Reader {
	t.Helper()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatalf("write gzip: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return &buf
}

func readBody(t *testing.T, res *http.Response) string {
	t.Helper()

	var r io.Reader = res.Body
	if res.Header.Get("Content-Encoding") == "gzip" {
		zr, err := gzip.NewReader(res.Body)
		if err != nil {
			t.Fatalf("new gzip reader: %v", err)
		}
		defer zr.Close()
		r = zr
	}

	body, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestGzipMiddleware_Responses(t *testing.T) {
	tests := []struct {
		name           string
		acceptEncoding string
		contentType    string
		status         int
		body           string
		wantEncoding   string
	}{
		{
			name:           "json compressed",
			acceptEncoding: "gzip, deflate",
			contentType:    "application/json",
			status:         http.StatusOK,
			body:           `{"eligible":true}`,
			wantEncoding:   "gzip",
		},
		{
			name:           "csv export compressed",
			acceptEncoding: "gzip",
			contentType:    "text/csv",
			status:         http.StatusOK,
			body:           "type,id,amount\ndeposit,1,1000.00\n",
			wantEncoding:   "gzip",
		},
		{
			name:           "created json compressed",
			acceptEncoding: "gzip",
			contentType:    "application/json; charset=utf-8",
			status:         http.StatusCreated,
			body:           `{"id":7}`,
			wantEncoding:   "gzip",
		},
		{
			name:           "binary left as is",
			acceptEncoding: "gzip",
			contentType:    "image/png",
			status:         http.StatusOK,
			body:           "png",
		},
		{
			name:           "error left as is",
			acceptEncoding: "gzip",
			contentType:    "text/plain; charset=utf-8",
			status:         http.StatusPaymentRequired,
			body:           "Payment Required\n",
		},
		{
			name:        "client without gzip",
			contentType: "application/json",
			status:      http.StatusOK,
			body:        `{"plans":[]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/transactions/export", nil)
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}
			rec := httptest.NewRecorder()

			GzipMiddleware(next).ServeHTTP(rec, req)

			res := rec.Result()
			defer res.Body.Close()

			if res.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", res.StatusCode, tt.status)
			}
			if ce := res.Header.Get("Content-Encoding"); ce != tt.wantEncoding {
				t.Fatalf("content-encoding = %q, want %q", ce, tt.wantEncoding)
			}
			if got := readBody(t, res); got != tt.body {
				t.Fatalf("body = %q, want %q", got, tt.body)
			}
		})
	}
}

func TestGzipMiddleware_NoContent(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/deposits", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()

	GzipMiddleware(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if ce := rec.Header().Get("Content-Encoding"); ce != "" {
		t.Fatalf("content-encoding = %q, want empty", ce)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("body length = %d, want 0", rec.Body.Len())
	}
}

func TestGzipMiddleware_RequestBody(t *testing.T) {
	var received string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		received = string(body)
		if ce := r.Header.Get("Content-Encoding"); ce != "" {
			t.Errorf("request content-encoding = %q, want removed", ce)
		}
		w.WriteHeader(http.StatusCreated)
	})

	payload := `{"amount":"1000","currency":"USDT","transaction_hash":"0xabc"}`
	req := httptest.NewRequest(http.MethodPost, "/api/deposits", gzipBody(t, payload))
	req.Header.Set("Content-Encoding", "gzip")
	rec := httptest.NewRecorder()

	GzipMiddleware(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	if received != payload {
		t.Fatalf("received = %q, want %q", received, payload)
	}
}

func TestGzipMiddleware_CorruptRequestBody(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	req := httptest.NewRequest(http.MethodPost, "/api/deposits", strings.NewReader("not gzip at all"))
	req.Header.Set("Content-Encoding", "gzip")
	rec := httptest.NewRecorder()

	GzipMiddleware(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if called {
		t.Fatalf("next handler must not run on a corrupt body")
	}
}
