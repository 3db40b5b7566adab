package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/apperr"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/auth"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/booking"
	"github.com/tmx156/EdgeTalentcrm-sub002/services/calendar-service/internal/fetch"
	"github.com/tmx156/EdgeTalentcrm-sub002/services/calendar-service/internal/session"
)

var validate = validator.New()

type CalendarHandler struct {
	m *session.Manager
}

func NewCalendarHandler(m *session.Manager) *CalendarHandler {
	return &CalendarHandler{m: m}
}

// Register mounts the calendar routes on g, which must run auth.JWTAuth.
func (h *CalendarHandler) Register(g *gin.RouterGroup) {
	cal := g.Group("/calendar")
	cal.GET("/statuses", h.Statuses)
	cal.GET("/events", h.Events)
	cal.POST("/fetch", h.Fetch)
	cal.PUT("/view", h.SetView)
	cal.GET("/slots", h.Slots)
	cal.GET("/notices", h.Notices)
	cal.POST("/logout", h.Logout)

	bk := cal.Group("/bookings")
	bk.Use(auth.RequireRole(auth.RoleAdmin, auth.RoleViewer, auth.RoleBooker))
	bk.POST("", h.CreateOrReschedule)
	bk.POST("/:id/status", h.ChangeStatus)
	bk.POST("/:id/read", h.MarkRead)
}

func (h *CalendarHandler) session(c *gin.Context) *session.Session {
	return h.m.Get(c.GetString(auth.CtxSub), c.GetString(auth.CtxRole), c.GetString(auth.CtxToken))
}

func writeErr(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindUnknown {
		kind = apperr.KindServer
	}
	c.JSON(kind.HTTPStatus(), gin.H{"error": kind.String(), "message": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": apperr.KindValidation.String(), "message": err.Error()})
}

// GET /v1/calendar/statuses
func (h *CalendarHandler) Statuses(c *gin.Context) {
	type entry struct {
		Status booking.DisplayStatus `json:"status"`
		Color  string                `json:"color"`
	}
	var out []entry
	for _, s := range booking.DisplayStatuses() {
		out = append(out, entry{Status: s, Color: s.Color()})
	}
	c.JSON(http.StatusOK, out)
}

// GET /v1/calendar/events
func (h *CalendarHandler) Events(c *gin.Context) {
	s := h.session(c)
	c.JSON(http.StatusOK, gin.H{
		"view":   s.View(),
		"state":  s.FetchState().String(),
		"events": s.Events(),
	})
}

// POST /v1/calendar/fetch {"force": bool}
func (h *CalendarHandler) Fetch(c *gin.Context) {
	var in struct {
		Force bool `json:"force"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, err)
			return
		}
	}
	out, err := h.session(c).RequestFetch(c, in.Force)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": out.String()})
}

// PUT /v1/calendar/view {"from": "YYYY-MM-DD", "to": "YYYY-MM-DD"}
func (h *CalendarHandler) SetView(c *gin.Context) {
	var in fetch.Range
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	if err := validate.Struct(in); err != nil {
		badRequest(c, err)
		return
	}
	if in.To < in.From {
		badRequest(c, errors.New("to is before from"))
		return
	}
	s := h.session(c)
	out, err := s.SetView(c, in)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": out.String(), "events": s.Events()})
}

// GET /v1/calendar/slots?date=YYYY-MM-DD
func (h *CalendarHandler) Slots(c *gin.Context) {
	date := c.Query("date")
	if _, err := time.Parse(booking.DateFormat, date); err != nil {
		badRequest(c, errors.New("date must be YYYY-MM-DD"))
		return
	}
	free, err := h.session(c).AvailableSlots(c, date)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "slots": free})
}

// POST /v1/calendar/bookings
func (h *CalendarHandler) CreateOrReschedule(c *gin.Context) {
	var in booking.Booking
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	ev, err := h.session(c).CreateOrReschedule(c, in)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusAccepted, ev)
}

// POST /v1/calendar/bookings/:id/status {"status": "...", "review": {...}}
func (h *CalendarHandler) ChangeStatus(c *gin.Context) {
	var in struct {
		Status string           `json:"status" binding:"required"`
		Review *booking.SlotRef `json:"review"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	target, err := booking.ParseDisplayStatus(in.Status)
	if err != nil {
		badRequest(c, err)
		return
	}
	if in.Review != nil {
		if err := validate.Struct(in.Review); err != nil {
			badRequest(c, err)
			return
		}
	}
	ev, err := h.session(c).ApplyStatusChange(c, c.Param("id"), target, in.Review)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusAccepted, ev)
}

// POST /v1/calendar/bookings/:id/read
func (h *CalendarHandler) MarkRead(c *gin.Context) {
	if !h.session(c).MarkRead(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /v1/calendar/notices
func (h *CalendarHandler) Notices(c *gin.Context) {
	ns := h.session(c).Notices()
	if ns == nil {
		ns = []session.Notice{}
	}
	c.JSON(http.StatusOK, ns)
}

// POST /v1/calendar/logout
func (h *CalendarHandler) Logout(c *gin.Context) {
	h.m.Logout(c.GetString(auth.CtxSub))
	c.Status(http.StatusNoContent)
}
