package domain

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/booking"
)

// Booking is the stored row of a booking.
type Booking struct {
	ID                string `gorm:"primaryKey"`
	Name              string
	Phone             string
	DateBooked        string `gorm:"index"` // YYYY-MM-DD, empty when unscheduled
	TimeBooked        string
	BookingSlot       int
	CoarseStatus      string `gorm:"index"`
	FineStatus        string
	IsConfirmed       *bool
	IsDoubleConfirmed bool
	HasSale           bool
	AssignedOwnerID   string `gorm:"index"`
	ReviewDate        string `gorm:"index"`
	ReviewTime        string
	ReviewSlot        int
	History           datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// BlockedRange is the stored row of an administrative block.
type BlockedRange struct {
	ID         string `gorm:"primaryKey"`
	Date       string `gorm:"index"`
	TimeSlot   string
	SlotNumber int
	Reason     string
	CreatedAt  time.Time
}

func FromBooking(b booking.Booking) (*Booking, error) {
	hist, err := json.Marshal(b.History)
	if err != nil {
		return nil, err
	}
	row := &Booking{
		ID:                b.ID,
		Name:              b.Name,
		Phone:             b.Phone,
		DateBooked:        b.DateBooked,
		TimeBooked:        b.TimeBooked,
		BookingSlot:       b.BookingSlot,
		CoarseStatus:      string(b.CoarseStatus),
		FineStatus:        string(b.FineStatus),
		IsConfirmed:       b.IsConfirmed.Ptr(),
		IsDoubleConfirmed: b.IsDoubleConfirmed,
		HasSale:           b.HasSale,
		AssignedOwnerID:   b.AssignedOwnerID,
		History:           datatypes.JSON(hist),
	}
	if b.Review != nil {
		row.ReviewDate, row.ReviewTime, row.ReviewSlot = b.Review.Date, b.Review.Time, b.Review.Slot
	}
	if b.UpdatedAt != nil {
		row.UpdatedAt = b.UpdatedAt.UTC()
	}
	return row, nil
}

func (r *Booking) ToBooking() booking.Booking {
	b := booking.Booking{
		ID:                r.ID,
		Name:              r.Name,
		Phone:             r.Phone,
		DateBooked:        r.DateBooked,
		TimeBooked:        r.TimeBooked,
		BookingSlot:       r.BookingSlot,
		CoarseStatus:      booking.CoarseStatus(r.CoarseStatus),
		FineStatus:        booking.FineStatus(r.FineStatus),
		IsConfirmed:       booking.ConfirmationFrom(r.IsConfirmed),
		IsDoubleConfirmed: r.IsDoubleConfirmed,
		HasSale:           r.HasSale,
		AssignedOwnerID:   r.AssignedOwnerID,
	}
	if r.ReviewDate != "" {
		b.Review = &booking.SlotRef{Date: r.ReviewDate, Time: r.ReviewTime, Slot: r.ReviewSlot}
	}
	if len(r.History) > 0 {
		_ = json.Unmarshal(r.History, &b.History)
	}
	if !r.UpdatedAt.IsZero() {
		t := r.UpdatedAt.UTC()
		b.UpdatedAt = &t
	}
	return b
}

func FromBlocked(b booking.BlockedRange) *BlockedRange {
	return &BlockedRange{ID: b.ID, Date: b.Date, TimeSlot: b.TimeSlot, SlotNumber: b.SlotNumber, Reason: b.Reason}
}

func (r *BlockedRange) ToBlocked() booking.BlockedRange {
	return booking.BlockedRange{ID: r.ID, Date: r.Date, TimeSlot: r.TimeSlot, SlotNumber: r.SlotNumber, Reason: r.Reason}
}
