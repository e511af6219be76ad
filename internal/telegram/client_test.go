package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessage(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/bottest-token/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":5,"chat":{"id":42}}}`)
	}))
	defer srv.Close()

	c := New("test-token", srv.URL)
	msg, err := c.SendMessage(context.Background(), 42, "hello", &InlineKeyboardMarkup{
		InlineKeyboard: [][]InlineKeyboardButton{{{Text: "go", CallbackData: "generate_text"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), msg.MessageID)
	assert.Equal(t, float64(42), got["chat_id"])
	assert.Equal(t, "hello", got["text"])
	assert.NotNil(t, got["reply_markup"])
}

func TestGetUpdatesAdvancesPastOffset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var params map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		assert.Equal(t, float64(100), params["offset"])
		fmt.Fprint(w, `{"ok":true,"result":[
			{"update_id":100,"message":{"message_id":1,"chat":{"id":9},"text":"/start","from":{"id":9,"first_name":"Ada"}}},
			{"update_id":101,"callback_query":{"id":"cb","from":{"id":9,"first_name":"Ada"},"data":"subscribe"}}
		]}`)
	}))
	defer srv.Close()

	c := New("t", srv.URL)
	updates, err := c.GetUpdates(context.Background(), 100, time.Second)
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.Equal(t, "/start", updates[0].Message.Text)
	assert.Equal(t, "subscribe", updates[1].CallbackQuery.Data)
}

func TestAPIErrorSurfacesDescription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"ok":false,"description":"Bad Request: chat not found"}`)
	}))
	defer srv.Close()

	c := New("t", srv.URL)
	_, err := c.SendMessage(context.Background(), 1, "x", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestUserFullName(t *testing.T) {
	assert.Equal(t, "Ada", User{FirstName: "Ada"}.FullName())
	assert.Equal(t, "Ada Lovelace", User{FirstName: "Ada", LastName: "Lovelace"}.FullName())
}
