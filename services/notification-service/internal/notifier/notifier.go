package notifier

import (
	"fmt"
	"log"

	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/booking"
)

// Notifier delivers a message to staff. SMS and email gateways plug in here.
type Notifier interface {
	Notify(subject, message string) error
}

// ConsoleNotifier writes notifications to the log.
type ConsoleNotifier struct{}

func NewConsole() *ConsoleNotifier {
	return &ConsoleNotifier{}
}

func (c *ConsoleNotifier) Notify(subject, message string) error {
	log.Printf("[notify] %s :: %s\n", subject, message)
	return nil
}

// Slot renders where a booking sits on the calendar.
func Slot(b booking.Booking) string {
	if !b.Scheduled() {
		return "unscheduled"
	}
	return fmt.Sprintf("%s %s (slot %d)", b.DateBooked, b.TimeBooked, b.BookingSlot)
}

// Label is the stored status of b, refined by its fine status when set.
func Label(b booking.Booking) string {
	if b.FineStatus != booking.FineNone {
		return fmt.Sprintf("%s/%s", b.CoarseStatus, b.FineStatus)
	}
	return string(b.CoarseStatus)
}
