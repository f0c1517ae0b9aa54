// Copyright 2025 The whalewatch Authors
// This file is part of the whalewatch library.
//
// The whalewatch library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The whalewatch library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the whalewatch library. If not, see <http://www.gnu.org/licenses/>.

package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
)

// Sink delivers a rendered alert message. Delivery is best effort: a
// failed send is logged and dropped, never retried.
type Sink interface {
	Send(ctx context.Context, text string) error
}

// Telegram posts messages to a chat through the Bot API.
type Telegram struct {
	baseURL string // https://api.telegram.org overridable in tests
	token   string
	chatID  string
	client  *http.Client

	sent     metrics.Counter
	failures metrics.Counter
}

// NewTelegram builds a sink for the given bot credentials.
func NewTelegram(token, chatID string, timeout time.Duration) *Telegram {
	return &Telegram{
		baseURL:  "https://api.telegram.org",
		token:    token,
		chatID:   chatID,
		client:   &http.Client{Timeout: timeout},
		sent:     metrics.GetOrRegisterCounter("alert/telegram/sent", nil),
		failures: metrics.GetOrRegisterCounter("alert/telegram/failures", nil),
	}
}

type telegramPayload struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// Send posts text as a Markdown message. Errors are returned for the
// caller to log; the message itself is not queued for retry.
func (t *Telegram) Send(ctx context.Context, text string) error {
	body, err := json.Marshal(telegramPayload{
		ChatID:                t.chatID,
		Text:                  text,
		ParseMode:             "Markdown",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		t.failures.Inc(1)
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.failures.Inc(1)
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return fmt.Errorf("telegram send: status %d: %s", resp.StatusCode, snippet)
	}
	t.sent.Inc(1)
	return nil
}

// LogSink writes alerts to the process log. It stands in when no bot
// credentials are configured.
type LogSink struct{}

func (LogSink) Send(_ context.Context, text string) error {
	log.Info("Alert (no messaging sink configured)", "text", text)
	return nil
}
