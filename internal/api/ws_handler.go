package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"idcard/internal/api/middleware"
	"idcard/internal/auth"
	"idcard/internal/worker"
)

const (
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 5 * time.Second
)

// WsHandler relays print job notifications to websocket clients.
type WsHandler struct {
	redisClient    *redis.Client
	validator      middleware.TokenValidator
	logger         *slog.Logger
	upgrader       websocket.Upgrader
	allowedOrigins []string
}

// NewWsHandler builds the handler. A nil validator skips the auth handshake.
func NewWsHandler(redisClient *redis.Client, validator middleware.TokenValidator, logger *slog.Logger, allowedOrigins []string) *WsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &WsHandler{
		redisClient:    redisClient,
		validator:      validator,
		logger:         logger,
		allowedOrigins: allowedOrigins,
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

// checkOrigin accepts same-host origins unless an allow list is configured.
func (h *WsHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(h.allowedOrigins) > 0 {
		return slices.Contains(h.allowedOrigins, origin)
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

type wsAuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// jobFilter narrows the stream to one job or one batch. The zero value forwards everything.
type jobFilter struct {
	jobID   string
	batchID string
}

func (f jobFilter) matches(payload string) bool {
	if f.jobID == "" && f.batchID == "" {
		return true
	}
	var msg worker.PrintJobNotifyMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return false
	}
	if f.batchID != "" && msg.BatchID == f.batchID {
		return true
	}
	return f.jobID != "" && slices.Contains(msg.JobIDs, f.jobID)
}

// HandleConnection serves GET /v1/ws?job_id=&batch_id=.
// With authentication enabled the first client message must be {"type":"auth","token":"..."}.
func (h *WsHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("upgrade websocket failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	filter := jobFilter{jobID: c.Query("job_id"), batchID: c.Query("batch_id")}
	log := h.logger.With(
		slog.String("client_ip", c.ClientIP()),
		slog.String("correlation_id", middleware.GetCorrelationID(c)),
	)

	readyCh := make(chan string, 1)
	errCh := make(chan error, 2)
	go h.readLoop(ctx, conn, readyCh, errCh, cancel)

	var subject string
	select {
	case <-ctx.Done():
		return
	case err := <-errCh:
		log.Warn("websocket authentication failed", slog.Any("error", err))
		return
	case subject = <-readyCh:
	}

	if subject != "" {
		log = log.With(slog.String("user_id", subject))
	}
	go h.subscribeLoop(ctx, conn, filter, errCh, cancel, log)

	select {
	case <-ctx.Done():
		log.Info("websocket connection closed")
	case err := <-errCh:
		log.Info("websocket connection closed", slog.Any("error", err))
	}
}

// readLoop authenticates the client, then keeps reading to detect disconnects.
func (h *WsHandler) readLoop(ctx context.Context, conn *websocket.Conn, readyCh chan<- string, errCh chan<- error, cancel context.CancelFunc) {
	authenticated := h.validator == nil
	if authenticated {
		readyCh <- ""
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				writeClose(conn, websocket.CloseAbnormalClosure, "read error")
				errCh <- fmt.Errorf("read message: %w", err)
			}
			cancel()
			return
		}
		if authenticated {
			continue
		}

		claims, err := h.authenticate(message)
		if err != nil {
			writeClose(conn, websocket.ClosePolicyViolation, "unauthorized")
			errCh <- err
			cancel()
			return
		}
		authenticated = true
		readyCh <- claims.Subject
	}
}

func (h *WsHandler) authenticate(message []byte) (*auth.TokenClaims, error) {
	var msg wsAuthMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return nil, fmt.Errorf("decode auth payload: %w", err)
	}
	if msg.Type != "auth" || msg.Token == "" {
		return nil, errors.New("auth message required")
	}
	claims, err := h.validator.ValidateToken(msg.Token)
	if err != nil {
		return nil, fmt.Errorf("validate token: %w", err)
	}
	if claims.TokenType != auth.TokenTypeAccess {
		return nil, fmt.Errorf("invalid token type: %s", claims.TokenType)
	}
	return claims, nil
}

func writeClose(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(wsWriteTimeout))
}

func (h *WsHandler) subscribeLoop(ctx context.Context, conn *websocket.Conn, filter jobFilter, errCh chan<- error, cancel context.CancelFunc, log *slog.Logger) {
	pubsub := h.redisClient.Subscribe(ctx, worker.NotifyChannel)
	defer pubsub.Close()

	log.Info("subscribed to redis channel", slog.String("channel", worker.NotifyChannel))

	ch := pubsub.Channel()
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				errCh <- errors.New("pubsub channel closed")
				cancel()
				return
			}
			if !filter.matches(msg.Payload) {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				errCh <- fmt.Errorf("write message: %w", err)
				cancel()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(wsWriteTimeout)); err != nil {
				errCh <- fmt.Errorf("write ping: %w", err)
				cancel()
				return
			}
		}
	}
}
