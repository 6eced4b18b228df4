/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/HamedShams/manager-am/internal/config"
	"github.com/rs/zerolog"
)

// maxMessage is the Bot API limit for a single sendMessage text.
const maxMessage = 4096

var ErrNotConfigured = errors.New("telegram: missing token or chat id")

type Client struct {
	token   string
	chats   []int64
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
	return &Client{
		token:   cfg.TelegramToken,
		chats:   cfg.TelegramChatIDs,
		baseURL: "https://api.telegram.org",
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

// Enabled reports whether a token and at least one chat are configured.
func (c *Client) Enabled() bool { return c.token != "" && len(c.chats) > 0 }

// Broadcast sends text to every configured chat, splitting long texts on
// line boundaries. Every chat is attempted; the first error is returned.
func (c *Client) Broadcast(ctx context.Context, text string) error {
	if !c.Enabled() {
		return ErrNotConfigured
	}
	var first error
	for _, id := range c.chats {
		for _, part := range chunkText(text, maxMessage) {
			if err := c.SendMessage(ctx, id, part); err != nil {
				c.log.Error().Err(err).Int64("chat_id", id).Msg("telegram send failed")
				if first == nil {
					first = err
				}
				break
			}
		}
	}
	return first
}

// SendMessage sends plain text without parse_mode so member names and
// ticket summaries never break Markdown parsing.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	if c.token == "" || chatID == 0 {
		return ErrNotConfigured
	}
	u := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(c.baseURL, "/"), c.token)
	body := map[string]any{"chat_id": chatID, "text": text, "disable_web_page_preview": true}
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		rb, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("telegram sendMessage status=%d body=%s", resp.StatusCode, string(rb))
	}
	return nil
}

func chunkText(s string, max int) []string {
	if len(s) <= max {
		return []string{s}
	}
	var out []string
	var cur strings.Builder
	for _, line := range strings.SplitAfter(s, "\n") {
		for len(line) > max {
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
			out = append(out, line[:max])
			line = line[max:]
		}
		if cur.Len()+len(line) > max {
			out = append(out, cur.String())
			cur.Reset()
		}
		cur.WriteString(line)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}
