package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/metrics"
	"github.com/stretchr/testify/require"
)

func init() {
	metrics.Enabled = true
}

func newTestTelegram(url string) *Telegram {
	t := NewTelegram("bot-token", "42", time.Second)
	t.baseURL = url
	return t
}

func TestTelegramSendPayload(t *testing.T) {
	var gotPath string
	var gotPayload telegramPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := newTestTelegram(srv.URL)
	require.NoError(t, tg.Send(context.Background(), "*hello*"))
	require.True(t, strings.Contains(gotPath, "/botbot-token/sendMessage"), "unexpected path: %s", gotPath)
	require.Equal(t, "42", gotPayload.ChatID)
	require.Equal(t, "*hello*", gotPayload.Text)
	require.Equal(t, "Markdown", gotPayload.ParseMode)
	require.True(t, gotPayload.DisableWebPagePreview)
}

func TestTelegramSendFailureNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"ok":false,"description":"chat not found"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	tg := newTestTelegram(srv.URL)
	if err := tg.Send(context.Background(), "msg"); err == nil {
		t.Fatal("expected send error")
	}
	if calls != 1 {
		t.Fatalf("delivery retried: %d calls", calls)
	}
}

func TestLogSinkNeverFails(t *testing.T) {
	if err := (LogSink{}).Send(context.Background(), "msg"); err != nil {
		t.Fatalf("log sink failed: %v", err)
	}
}
