package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/HamedShams/manager-am/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

func newTestClient(t *testing.T, chats []int64, status int) (*Client, *[]sent) {
	t.Helper()
	var mu sync.Mutex
	var got []sent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		var s sent
		require.NoError(t, json.NewDecoder(r.Body).Decode(&s))
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	c := NewClient(config.Config{TelegramToken: "TOKEN", TelegramChatIDs: chats}, zerolog.Nop())
	c.baseURL = srv.URL
	return c, &got
}

func TestBroadcast_SendsToEveryChat(t *testing.T) {
	c, got := newTestClient(t, []int64{1, 2}, http.StatusOK)
	require.NoError(t, c.Broadcast(context.Background(), "hola"))
	require.Len(t, *got, 2)
	assert.Equal(t, int64(1), (*got)[0].ChatID)
	assert.Equal(t, int64(2), (*got)[1].ChatID)
	assert.Equal(t, "hola", (*got)[1].Text)
}

func TestBroadcast_ReportsFailure(t *testing.T) {
	c, got := newTestClient(t, []int64{1, 2}, http.StatusBadRequest)
	err := c.Broadcast(context.Background(), "hola")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=400")
	assert.Len(t, *got, 2, "remaining chats are still attempted")
}

func TestBroadcast_NotConfigured(t *testing.T) {
	c := NewClient(config.Config{}, zerolog.Nop())
	assert.False(t, c.Enabled())
	assert.ErrorIs(t, c.Broadcast(context.Background(), "x"), ErrNotConfigured)
}

func TestChunkText(t *testing.T) {
	assert.Equal(t, []string{"short"}, chunkText("short", 10))

	parts := chunkText("aaaa\nbbbb\ncccc\n", 10)
	assert.Equal(t, []string{"aaaa\nbbbb\n", "cccc\n"}, parts)

	long := strings.Repeat("x", 25)
	parts = chunkText(long, 10)
	require.Len(t, parts, 3)
	assert.Equal(t, long, strings.Join(parts, ""))
}
