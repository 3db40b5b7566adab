package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/apperr"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/auth"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/booking"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/events"
	"github.com/tmx156/EdgeTalentcrm-sub002/services/booking-service/internal/repository"
	"github.com/tmx156/EdgeTalentcrm-sub002/services/booking-service/internal/service"
)

type Server struct {
	svc *service.BookingSvc
}

func NewServer(svc *service.BookingSvc) *Server { return &Server{svc: svc} }

// Register mounts the booking routes on g, which must run auth.JWTAuth.
func (s *Server) Register(g *gin.RouterGroup) {
	staff := auth.RequireRole(auth.RoleAdmin, auth.RoleViewer, auth.RoleBooker)
	admin := auth.RequireRole(auth.RoleAdmin)

	bk := g.Group("/bookings")
	bk.Use(staff)
	bk.GET("", s.List)
	bk.GET("/:id", s.Get)
	bk.POST("", s.Create)
	bk.PUT("/:id", s.Update)
	bk.DELETE("/:id", admin, s.Delete)
	bk.POST("/:id/messages", s.Message)

	br := g.Group("/blocked-ranges")
	br.Use(staff)
	br.GET("", s.ListBlocked)
	br.POST("", admin, s.CreateBlocked)
	br.DELETE("/:id", admin, s.DeleteBlocked)
}

func writeErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
	case errors.Is(err, repository.ErrSlotTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "slot_taken", "message": err.Error()})
	case errors.Is(err, apperr.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": apperr.KindPermissionDenied.String(), "message": err.Error()})
	case errors.Is(err, apperr.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": apperr.KindValidation.String(), "message": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": apperr.KindServer.String(), "message": err.Error()})
	}
}

func origin(c *gin.Context) string { return c.GetHeader(events.OriginHeader) }

// GET /v1/bookings?from=YYYY-MM-DD&to=YYYY-MM-DD
func (s *Server) List(c *gin.Context) {
	out, err := s.svc.List(c, c.Query("from"), c.Query("to"))
	if err != nil {
		writeErr(c, err)
		return
	}
	if out == nil {
		out = []booking.Booking{}
	}
	c.JSON(http.StatusOK, out)
}

// GET /v1/bookings/:id
func (s *Server) Get(c *gin.Context) {
	out, err := s.svc.Get(c, c.Param("id"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// POST /v1/bookings
func (s *Server) Create(c *gin.Context) {
	var in booking.Booking
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": apperr.KindValidation.String(), "message": err.Error()})
		return
	}
	out, err := s.svc.Create(c, origin(c), in)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// PUT /v1/bookings/:id
func (s *Server) Update(c *gin.Context) {
	var in booking.Booking
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": apperr.KindValidation.String(), "message": err.Error()})
		return
	}
	ed := service.Editor{ID: c.GetString(auth.CtxSub), Role: c.GetString(auth.CtxRole)}
	out, err := s.svc.Update(c, origin(c), ed, c.Param("id"), in)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// DELETE /v1/bookings/:id (ADMIN)
func (s *Server) Delete(c *gin.Context) {
	if err := s.svc.Delete(c, origin(c), c.Param("id")); err != nil {
		writeErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /v1/bookings/:id/messages {"channel": "sms", "text": "..."}
func (s *Server) Message(c *gin.Context) {
	var in struct {
		Channel string `json:"channel" binding:"required,oneof=sms email"`
		Text    string `json:"text"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": apperr.KindValidation.String(), "message": err.Error()})
		return
	}
	if err := s.svc.RecordMessage(c, c.Param("id"), in.Channel, in.Text); err != nil {
		writeErr(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// GET /v1/blocked-ranges?from=YYYY-MM-DD&to=YYYY-MM-DD
func (s *Server) ListBlocked(c *gin.Context) {
	out, err := s.svc.ListBlocked(c, c.Query("from"), c.Query("to"))
	if err != nil {
		writeErr(c, err)
		return
	}
	if out == nil {
		out = []booking.BlockedRange{}
	}
	c.JSON(http.StatusOK, out)
}

// POST /v1/blocked-ranges (ADMIN)
func (s *Server) CreateBlocked(c *gin.Context) {
	var in booking.BlockedRange
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": apperr.KindValidation.String(), "message": err.Error()})
		return
	}
	out, err := s.svc.CreateBlocked(c, origin(c), in)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// DELETE /v1/blocked-ranges/:id (ADMIN)
func (s *Server) DeleteBlocked(c *gin.Context) {
	if err := s.svc.DeleteBlocked(c, origin(c), c.Param("id")); err != nil {
		writeErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
