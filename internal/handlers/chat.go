package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/avolkov/marketplace/internal/chat"
	"github.com/avolkov/marketplace/internal/models"
	"github.com/avolkov/marketplace/internal/mykafka"
	"github.com/avolkov/marketplace/internal/service/token"
)

type ChatHandler struct {
	DB       *gorm.DB
	Producer *mykafka.Producer
	Notifier *chat.Notifier
}

func (h *ChatHandler) threadForUser(c echo.Context, userID uint) (*models.ChatThread, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var thread models.ChatThread
	if err := h.DB.WithContext(c.Request().Context()).First(&thread, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, echo.NewHTTPError(http.StatusNotFound, "thread not found")
		}
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "cannot load thread")
	}
	if thread.BuyerID != userID && thread.SellerID != userID {
		return nil, echo.NewHTTPError(http.StatusForbidden, "not a participant")
	}
	return &thread, nil
}

// OpenThread returns the buyer's thread with a seller, creating it on first
// contact. A product reference makes the thread product-specific.
func (h *ChatHandler) OpenThread(c echo.Context) error {
	ctx := c.Request().Context()

	buyerID, err := token.UserID(c)
	if err != nil {
		return err
	}

	var req struct {
		SellerID  uint  `json:"seller_id"`
		ProductID *uint `json:"product_id"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	var seller models.User
	if err := h.DB.WithContext(ctx).
		Where("id = ? AND role = ?", req.SellerID, models.RoleSeller).
		First(&seller).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "seller not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot open thread")
	}

	q := h.DB.WithContext(ctx).Where("buyer_id = ? AND seller_id = ?", buyerID, req.SellerID)
	if req.ProductID != nil {
		q = q.Where("product_id = ?", *req.ProductID)
	} else {
		q = q.Where("product_id IS NULL")
	}

	var thread models.ChatThread
	err = q.First(&thread).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		thread = models.ChatThread{
			BuyerID:   buyerID,
			SellerID:  req.SellerID,
			ProductID: req.ProductID,
		}
		if err := h.DB.WithContext(ctx).Create(&thread).Error; err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "cannot open thread")
		}
		return c.JSON(http.StatusCreated, thread)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot open thread")
	}
	return c.JSON(http.StatusOK, thread)
}

func (h *ChatHandler) ListThreads(c echo.Context) error {
	userID, err := token.UserID(c)
	if err != nil {
		return err
	}

	var threads []models.ChatThread
	if err := h.DB.WithContext(c.Request().Context()).
		Where("buyer_id = ? OR seller_id = ?", userID, userID).
		Order("id DESC").
		Find(&threads).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot list threads")
	}
	return c.JSON(http.StatusOK, threads)
}

func (h *ChatHandler) ListMessages(c echo.Context) error {
	userID, err := token.UserID(c)
	if err != nil {
		return err
	}
	thread, err := h.threadForUser(c, userID)
	if err != nil {
		return err
	}

	var messages []models.ChatMessage
	if err := h.DB.WithContext(c.Request().Context()).
		Where("thread_id = ?", thread.ID).
		Order("id ASC").
		Find(&messages).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot list messages")
	}
	return c.JSON(http.StatusOK, messages)
}

func (h *ChatHandler) PostMessage(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := token.UserID(c)
	if err != nil {
		return err
	}
	thread, err := h.threadForUser(c, userID)
	if err != nil {
		return err
	}

	var req struct {
		Body string `json:"body"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Body == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message body is required")
	}

	msg := models.ChatMessage{
		ThreadID: thread.ID,
		SenderID: userID,
		Body:     req.Body,
	}
	if err := h.DB.WithContext(ctx).Create(&msg).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot post message")
	}

	if err := h.Notifier.MessagePosted(ctx, chat.MessageEvent{
		ThreadID:  msg.ThreadID,
		MessageID: msg.ID,
		SenderID:  msg.SenderID,
		CreatedAt: msg.CreatedAt,
	}); err != nil {
		c.Logger().Errorf("chat notify error: %v", err)
	}

	publish(c, h.Producer, TopicChatEvents, map[string]any{
		"type":      "message_posted",
		"userID":    userID,
		"threadID":  thread.ID,
		"messageID": msg.ID,
	})

	return c.JSON(http.StatusCreated, msg)
}

// StreamThread is the change-notification stream for one thread, sent as
// server-sent events. Events carry the posted message reference, but clients
// are expected to re-fetch the message list on every event; a dropped event
// only delays the reload until the next one.
func (h *ChatHandler) StreamThread(c echo.Context) error {
	userID, err := token.UserID(c)
	if err != nil {
		return err
	}
	thread, err := h.threadForUser(c, userID)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	sub := h.Notifier.Subscribe(ctx, thread.ID)
	if sub == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming is not enabled")
	}
	defer sub.Close()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-heartbeat.C:
			if _, err := fmt.Fprint(res, ": ping\n\n"); err != nil {
				return nil
			}
			res.Flush()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			if _, err := fmt.Fprintf(res, "event: message\ndata: %s\n\n", m.Payload); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}
