package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/auth"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/booking"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/events"
	"github.com/tmx156/EdgeTalentcrm-sub002/services/booking-service/internal/repository"
	"github.com/tmx156/EdgeTalentcrm-sub002/services/booking-service/internal/service"
)

const secret = "rest-secret"

type repo struct {
	bookings map[string]booking.Booking
}

func (r *repo) List(ctx context.Context, from, to string) ([]booking.Booking, error) {
	var out []booking.Booking
	for _, b := range r.bookings {
		out = append(out, b)
	}
	return out, nil
}

func (r *repo) ByID(ctx context.Context, id string) (booking.Booking, error) {
	b, ok := r.bookings[id]
	if !ok {
		return booking.Booking{}, repository.ErrNotFound
	}
	return b, nil
}

func (r *repo) Create(ctx context.Context, b booking.Booking) (booking.Booking, error) {
	for _, o := range r.bookings {
		if o.DateBooked == b.DateBooked && o.TimeBooked == b.TimeBooked && o.BookingSlot == b.BookingSlot {
			return booking.Booking{}, fmt.Errorf("%w: cell in use", repository.ErrSlotTaken)
		}
	}
	b.ID = "srv-1"
	r.bookings[b.ID] = b
	return b, nil
}

func (r *repo) Update(ctx context.Context, id string, b booking.Booking) (booking.Booking, error) {
	b.ID = id
	r.bookings[id] = b
	return b, nil
}

func (r *repo) Delete(ctx context.Context, id string) error {
	if _, ok := r.bookings[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.bookings, id)
	return nil
}

func (r *repo) ListBlocked(ctx context.Context, from, to string) ([]booking.BlockedRange, error) {
	return nil, nil
}

func (r *repo) CreateBlocked(ctx context.Context, b booking.BlockedRange) (booking.BlockedRange, error) {
	b.ID = "x1"
	return b, nil
}

func (r *repo) DeleteBlocked(ctx context.Context, id string) error { return repository.ErrNotFound }

type pub struct{ origins []string }

func (p *pub) PublishJSON(ctx context.Context, key string, v any) error {
	p.origins = append(p.origins, v.(events.Envelope).Origin)
	return nil
}

func newRouter() (*gin.Engine, *pub) {
	gin.SetMode(gin.TestMode)
	p := &pub{}
	svc := service.NewBookingSvc(&repo{bookings: map[string]booking.Booking{
		"1": {ID: "1", Name: "Ann", DateBooked: "2025-06-02", TimeBooked: "10:00", BookingSlot: 1, CoarseStatus: booking.CoarseBooked},
	}}, p, nil)
	r := gin.New()
	v1 := r.Group("/v1")
	v1.Use(auth.JWTAuth(secret))
	NewServer(svc).Register(v1)
	return r, p
}

func do(t *testing.T, r http.Handler, method, path, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(events.OriginHeader, "sess-9")
	tok, _ := auth.CreateAccessToken(secret, "u1", role, "", time.Minute)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestListValidatesRange(t *testing.T) {
	r, _ := newRouter()
	if w := do(t, r, http.MethodGet, "/v1/bookings?from=june", auth.RoleViewer, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("code = %d", w.Code)
	}
	w := do(t, r, http.MethodGet, "/v1/bookings?from=2025-06-01&to=2025-06-30", auth.RoleViewer, nil)
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(`"id":"1"`)) {
		t.Fatalf("code=%d body=%s", w.Code, w.Body)
	}
	if w := do(t, r, http.MethodGet, "/v1/blocked-ranges?from=2025-06-01&to=2025-06-30", auth.RoleViewer, nil); w.Body.String() != "[]" {
		t.Fatalf("blocked body = %s", w.Body)
	}
}

func TestCreateConflictAndOrigin(t *testing.T) {
	r, p := newRouter()
	taken := booking.Booking{Name: "Bea", DateBooked: "2025-06-02", TimeBooked: "10:00", BookingSlot: 1}
	if w := do(t, r, http.MethodPost, "/v1/bookings", auth.RoleBooker, taken); w.Code != http.StatusConflict {
		t.Fatalf("code = %d body=%s", w.Code, w.Body)
	}
	taken.BookingSlot = 2
	if w := do(t, r, http.MethodPost, "/v1/bookings", auth.RoleBooker, taken); w.Code != http.StatusCreated {
		t.Fatalf("code = %d body=%s", w.Code, w.Body)
	}
	if len(p.origins) != 1 || p.origins[0] != "sess-9" {
		t.Fatalf("origins = %v", p.origins)
	}
}

func TestNotFoundAndRoles(t *testing.T) {
	r, _ := newRouter()
	if w := do(t, r, http.MethodGet, "/v1/bookings/zzz", auth.RoleAdmin, nil); w.Code != http.StatusNotFound {
		t.Fatalf("code = %d", w.Code)
	}
	if w := do(t, r, http.MethodDelete, "/v1/bookings/1", auth.RoleBooker, nil); w.Code != http.StatusForbidden {
		t.Fatalf("booker delete code = %d", w.Code)
	}
	if w := do(t, r, http.MethodDelete, "/v1/bookings/1", auth.RoleAdmin, nil); w.Code != http.StatusNoContent {
		t.Fatalf("admin delete code = %d", w.Code)
	}
	if w := do(t, r, http.MethodPost, "/v1/blocked-ranges", auth.RoleViewer, booking.BlockedRange{Date: "2025-06-03"}); w.Code != http.StatusForbidden {
		t.Fatalf("viewer block code = %d", w.Code)
	}
	if w := do(t, r, http.MethodPost, "/v1/blocked-ranges", auth.RoleAdmin, booking.BlockedRange{Date: "2025-06-03"}); w.Code != http.StatusCreated {
		t.Fatalf("admin block code = %d", w.Code)
	}
}

func TestUpdateChecks(t *testing.T) {
	r, _ := newRouter()
	b := booking.Booking{ID: "1", Name: "Ann", DateBooked: "2025-06-02", TimeBooked: "10:00", BookingSlot: 1,
		CoarseStatus: booking.CoarseBooked, FineStatus: booking.FineArrived}
	// the seeded booking has no owner, so a booker may only confirm or cancel it
	if w := do(t, r, http.MethodPut, "/v1/bookings/1", auth.RoleBooker, b); w.Code != http.StatusForbidden {
		t.Fatalf("booker code = %d", w.Code)
	}
	if w := do(t, r, http.MethodPut, "/v1/bookings/1", auth.RoleAdmin, b); w.Code != http.StatusOK {
		t.Fatalf("admin code = %d", w.Code)
	}
}

func TestMessage(t *testing.T) {
	r, _ := newRouter()
	if w := do(t, r, http.MethodPost, "/v1/bookings/1/messages", auth.RoleAdmin, map[string]string{"channel": "fax"}); w.Code != http.StatusBadRequest {
		t.Fatalf("code = %d", w.Code)
	}
	if w := do(t, r, http.MethodPost, "/v1/bookings/1/messages", auth.RoleAdmin, map[string]string{"channel": "sms", "text": "hi"}); w.Code != http.StatusAccepted {
		t.Fatalf("code = %d", w.Code)
	}
}
