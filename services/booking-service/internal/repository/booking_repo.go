package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/booking"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/slots"
	"github.com/tmx156/EdgeTalentcrm-sub002/services/booking-service/internal/domain"
)

var (
	ErrNotFound  = errors.New("booking_not_found")
	ErrSlotTaken = errors.New("slot_taken")
)

var activeStatuses = []string{
	string(booking.CoarseNew), string(booking.CoarseBooked), string(booking.CoarseAttended),
}

type BookingRepo struct {
	db   *gorm.DB
	grid slots.Grid
}

func NewBookingRepo(db *gorm.DB, grid slots.Grid) *BookingRepo {
	if grid == nil {
		grid = slots.DefaultGrid
	}
	return &BookingRepo{db: db, grid: grid}
}

func (r *BookingRepo) Migrate() error {
	return r.db.AutoMigrate(&domain.Booking{}, &domain.BlockedRange{})
}

// List returns bookings booked or under review inside [from, to].
func (r *BookingRepo) List(ctx context.Context, from, to string) ([]booking.Booking, error) {
	var rows []domain.Booking
	err := r.db.WithContext(ctx).
		Where("(date_booked BETWEEN ? AND ?) OR (review_date BETWEEN ? AND ?)", from, to, from, to).
		Order("date_booked ASC, time_booked ASC, booking_slot ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]booking.Booking, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToBooking())
	}
	return out, nil
}

func (r *BookingRepo) ByID(ctx context.Context, id string) (booking.Booking, error) {
	var row domain.Booking
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return booking.Booking{}, ErrNotFound
		}
		return booking.Booking{}, err
	}
	return row.ToBooking(), nil
}

// Create inserts b after checking, under a per-date lock, that its cells
// are free.
func (r *BookingRepo) Create(ctx context.Context, b booking.Booking) (booking.Booking, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	row, err := domain.FromBooking(b)
	if err != nil {
		return booking.Booking{}, err
	}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.checkCells(tx, b); err != nil {
			return err
		}
		return tx.Create(row).Error
	})
	if err != nil {
		return booking.Booking{}, err
	}
	return row.ToBooking(), nil
}

// Update replaces the stored booking id with b. Cells b takes that the
// stored copy did not hold are checked first.
func (r *BookingRepo) Update(ctx context.Context, id string, b booking.Booking) (booking.Booking, error) {
	b.ID = id
	var out booking.Booking
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur domain.Booking
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&cur, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if movesCell(cur.ToBooking(), b) {
			if err := r.checkCells(tx, b); err != nil {
				return err
			}
		}
		row, err := domain.FromBooking(b)
		if err != nil {
			return err
		}
		row.CreatedAt = cur.CreatedAt
		if err := tx.Save(row).Error; err != nil {
			return err
		}
		out = row.ToBooking()
		return nil
	})
	return out, err
}

func (r *BookingRepo) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&domain.Booking{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// movesCell reports whether next occupies a cell prev did not.
func movesCell(prev, next booking.Booking) bool {
	if !next.Active() {
		return false
	}
	if ref, ok := next.Slot(); ok {
		if old, had := prev.Slot(); !had || old != ref || !prev.Active() {
			return true
		}
	}
	if next.Review != nil && (prev.Review == nil || *prev.Review != *next.Review) {
		return true
	}
	return false
}

// checkCells serialises writers per date and verifies b's booked and review
// cells against the stored calendar.
func (r *BookingRepo) checkCells(tx *gorm.DB, b booking.Booking) error {
	var refs []booking.SlotRef
	if ref, ok := b.Slot(); ok && b.Active() {
		refs = append(refs, ref)
	}
	if b.Review != nil && b.Active() {
		refs = append(refs, *b.Review)
	}
	for _, ref := range refs {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", "booking-date:"+ref.Date).Error; err != nil {
			return err
		}
		var rows []domain.Booking
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("coarse_status IN ?", activeStatuses).
			Where("date_booked = ? OR review_date = ?", ref.Date, ref.Date).
			Find(&rows).Error
		if err != nil {
			return err
		}
		var blocked []domain.BlockedRange
		if err := tx.Where("date = ?", ref.Date).Find(&blocked).Error; err != nil {
			return err
		}
		others := make([]booking.Booking, 0, len(rows))
		for i := range rows {
			others = append(others, rows[i].ToBooking())
		}
		bl := make([]booking.BlockedRange, 0, len(blocked))
		for i := range blocked {
			bl = append(bl, blocked[i].ToBlocked())
		}
		if err := slots.Check(r.grid, ref, bl, others, b.ID); err != nil {
			return fmt.Errorf("%w: %v", ErrSlotTaken, err)
		}
	}
	return nil
}

func (r *BookingRepo) ListBlocked(ctx context.Context, from, to string) ([]booking.BlockedRange, error) {
	var rows []domain.BlockedRange
	err := r.db.WithContext(ctx).
		Where("date BETWEEN ? AND ?", from, to).
		Order("date ASC, time_slot ASC, slot_number ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]booking.BlockedRange, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToBlocked())
	}
	return out, nil
}

func (r *BookingRepo) CreateBlocked(ctx context.Context, b booking.BlockedRange) (booking.BlockedRange, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	row := domain.FromBlocked(b)
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return booking.BlockedRange{}, err
	}
	return row.ToBlocked(), nil
}

func (r *BookingRepo) DeleteBlocked(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&domain.BlockedRange{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
