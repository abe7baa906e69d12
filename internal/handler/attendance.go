package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/qrgen"
)

type scanRequest struct {
	Payload string `json:"payload" binding:"required"`
	Intent  string `json:"intent"`
}

// Scan records one decoded QR code for the caller.
func (h *Handler) Scan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	intent, err := attendance.ParseIntent(req.Intent)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	payload, err := attendance.ParsePayload(req.Payload)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	id, _ := auth.IdentityFrom(c)
	res, err := h.svc.Record(c.Request.Context(), attendance.Scan{
		Identity: id,
		Payload:  payload,
		Intent:   intent,
		At:       h.svc.Now(),
	})
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Today returns today's record.
func (h *Handler) Today(c *gin.Context) {
	rec, err := h.svc.Today(c.Request.Context(), h.svc.Now())
	if errors.Is(err, attendance.ErrDayNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no attendance recorded today"})
		return
	}
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Mine returns the caller's entry and state for today.
func (h *Handler) Mine(c *gin.Context) {
	id, _ := auth.IdentityFrom(c)
	now := h.svc.Now()
	entry, err := h.svc.Entry(c.Request.Context(), now, id.Roll)
	if err != nil && !errors.Is(err, attendance.ErrDayNotFound) {
		h.storeError(c, err)
		return
	}
	state := attendance.StateNotArrived
	if entry != nil {
		state = entry.State()
	}
	c.JSON(http.StatusOK, gin.H{"date": h.svc.DayKey(now), "state": state, "entry": entry})
}

// QR renders the current-time QR code for the classroom display.
func (h *Handler) QR(c *gin.Context) {
	size := qrgen.DefaultSize
	if v := c.Query("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 64 || n > 2048 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "size must be between 64 and 2048"})
			return
		}
		size = n
	}
	png, err := qrgen.PNG(h.svc.Now(), size)
	if err != nil {
		h.log.Error("render qr failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "render failed"})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

func (h *Handler) storeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, attendance.ErrVersionConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "attendance changed concurrently, scan again"})
	case errors.Is(err, attendance.ErrCorruptEntry):
		h.log.Error("corrupt attendance entry", zap.Error(err))
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, attendance.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "attendance store unavailable"})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "request cancelled"})
	default:
		h.log.Error("attendance request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
