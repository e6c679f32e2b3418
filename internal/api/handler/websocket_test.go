package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/credit_go_server/internal/pkg/jwt"
	"github.com/qs3c/credit_go_server/internal/pkg/logger"
	"github.com/qs3c/credit_go_server/internal/pkg/pubsub"
	"github.com/qs3c/credit_go_server/internal/pkg/ws"
)

func TestWebSocketHandler_RejectsMissingToken(t *testing.T) {
	h := NewWebSocketHandler(ws.NewHub(logger.Discard()), testJWTSecret, nil, logger.Discard())

	router := gin.New()
	router.GET("/ws", h.Handle)

	w := performRequest(router, "GET", "/ws", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = performRequest(router, "GET", "/ws?token=bogus", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebSocketHandler_ForwardCredits(t *testing.T) {
	hub := ws.NewHub(logger.Discard())
	h := NewWebSocketHandler(hub, testJWTSecret, []string{"*"}, logger.Discard())

	router := gin.New()
	router.GET("/ws", h.Handle)
	srv := httptest.NewServer(router)
	defer srv.Close()

	token, err := jwt.GenerateToken("user-ws", "", testJWTSecret, 1)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.IsOnline("user-ws") }, time.Second, 10*time.Millisecond)

	// 其他用户的消息不会推送
	h.ForwardCredits(&pubsub.CreditsMessage{Type: pubsub.ChannelCreditsUpdated, UserID: "someone-else", Credits: 1})
	h.ForwardCredits(&pubsub.CreditsMessage{Type: pubsub.ChannelCreditsUpdated, UserID: "user-ws", Delta: 100, Credits: 150})

	var msg struct {
		Type string                `json:"type"`
		Data pubsub.CreditsMessage `json:"data"`
	}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, pubsub.ChannelCreditsUpdated, msg.Type)
	assert.Equal(t, int64(150), msg.Data.Credits)
	assert.Equal(t, int64(100), msg.Data.Delta)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.example.com"})

	req := httptest.NewRequest("GET", "/ws", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://app.example.com")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(req))

	assert.True(t, originChecker(nil)(req))
}
