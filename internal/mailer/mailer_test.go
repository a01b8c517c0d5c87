package mailer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRenderAllTemplates(t *testing.T) {
	data := map[string]any{
		"Amount":          "100.00",
		"Currency":        "USDT",
		"PlanName":        "Starter Plan",
		"WeeklyRate":      "10",
		"UnlockDate":      "2026-04-01",
		"TransactionHash": "0xabc",
		"WalletAddress":   "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t",
		"Reference":       "WD-1",
		"NextDate":        "2026-04-08",
		"Topic":           "deposit",
		"Date":            "2026-04-01",
		"Time":            "10:00",
		"MeetLink":        "https://meet.google.com/abc-defg-hij",
		"Subject":         "Help",
		"Message":         "Hello",
	}

	for name := range templates {
		t.Run(string(name), func(t *testing.T) {
			subject, html, err := Render(name, data)
			require.NoError(t, err)
			assert.NotEmpty(t, subject)
			assert.Contains(t, html, "Hivestin team")
		})
	}
}

func TestRenderEscapesHTML(t *testing.T) {
	_, html, err := Render(SupportReply, map[string]any{"Subject": "s", "Message": "<script>x</script>"})
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, _, err := Render(Template("NOPE"), nil)
	assert.Error(t, err)
}

func TestResendClientSend(t *testing.T) {
	var got sendRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"1"}`))
	}))
	defer ts.Close()

	c := NewResendClient(ts.URL, "re_test", "Hivestin <noreply@hivestin.com>", zap.NewNop())

	err := c.Send(context.Background(), "investor@example.com", WithdrawalApproved, map[string]any{
		"Amount": "50.00", "WalletAddress": "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t", "Reference": "WD-1",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"investor@example.com"}, got.To)
	assert.Equal(t, "Withdrawal approved", got.Subject)
	assert.True(t, strings.Contains(got.HTML, "50.00"))
}

func TestResendClientRetriesServerErrors(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c := NewResendClient(ts.URL, "re_test", "noreply@hivestin.com", zap.NewNop())
	c.client.RetryWaitMin = time.Millisecond
	c.client.RetryWaitMax = time.Millisecond

	err := c.Send(context.Background(), "investor@example.com", CallCancelled, map[string]any{"Date": "d", "Time": "t"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestResendClientClientError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"invalid to"}`))
	}))
	defer ts.Close()

	c := NewResendClient(ts.URL, "re_test", "noreply@hivestin.com", zap.NewNop())

	err := c.Send(context.Background(), "bad", CallCancelled, map[string]any{"Date": "d", "Time": "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
}

func TestLogSender(t *testing.T) {
	s := NewLogSender(zap.NewNop())
	assert.NoError(t, s.Send(context.Background(), "a@b.c", CallCancelled, map[string]any{"Date": "d", "Time": "t"}))
	assert.Error(t, s.Send(context.Background(), "a@b.c", Template("NOPE"), nil))
}
