package booking

import (
	"bytes"
	"fmt"
)

// CoarseStatus is the broad lifecycle bucket stored on a booking.
type CoarseStatus string

const (
	CoarseNew       CoarseStatus = "New"
	CoarseBooked    CoarseStatus = "Booked"
	CoarseCancelled CoarseStatus = "Cancelled"
	CoarseRejected  CoarseStatus = "Rejected"
	CoarseAttended  CoarseStatus = "Attended"
)

func (s CoarseStatus) Valid() bool {
	switch s {
	case CoarseNew, CoarseBooked, CoarseCancelled, CoarseRejected, CoarseAttended:
		return true
	}
	return false
}

// UnmarshalText accepts the known statuses and the empty string, which
// leaves the status unset.
func (s *CoarseStatus) UnmarshalText(b []byte) error {
	v := CoarseStatus(b)
	if v == "" {
		*s = ""
		return nil
	}
	if !v.Valid() {
		return fmt.Errorf("unknown coarse status %q", b)
	}
	*s = v
	return nil
}

// FineStatus refines a Booked booking. The zero value means unset.
type FineStatus string

const (
	FineNone       FineStatus = ""
	FineReschedule FineStatus = "Reschedule"
	FineArrived    FineStatus = "Arrived"
	FineLeft       FineStatus = "Left"
	FineNoShow     FineStatus = "NoShow"
	FineNoSale     FineStatus = "NoSale"
	FineReview     FineStatus = "Review"
)

func (s FineStatus) Valid() bool {
	switch s {
	case FineNone, FineReschedule, FineArrived, FineLeft, FineNoShow, FineNoSale, FineReview:
		return true
	}
	return false
}

func (s *FineStatus) UnmarshalText(b []byte) error {
	v := FineStatus(b)
	if !v.Valid() {
		return fmt.Errorf("unknown fine status %q", b)
	}
	*s = v
	return nil
}

// Confirmation is a tri-state flag: unset, false or true. It encodes as
// JSON null, false and true.
type Confirmation int8

const (
	ConfirmUnset Confirmation = iota
	ConfirmNo
	ConfirmYes
)

func (c Confirmation) String() string {
	switch c {
	case ConfirmNo:
		return "false"
	case ConfirmYes:
		return "true"
	}
	return "unset"
}

// Ptr converts to the *bool form used by storage.
func (c Confirmation) Ptr() *bool {
	switch c {
	case ConfirmNo:
		v := false
		return &v
	case ConfirmYes:
		v := true
		return &v
	}
	return nil
}

func ConfirmationFrom(p *bool) Confirmation {
	switch {
	case p == nil:
		return ConfirmUnset
	case *p:
		return ConfirmYes
	}
	return ConfirmNo
}

func (c Confirmation) MarshalJSON() ([]byte, error) {
	switch c {
	case ConfirmNo:
		return []byte("false"), nil
	case ConfirmYes:
		return []byte("true"), nil
	}
	return []byte("null"), nil
}

func (c *Confirmation) UnmarshalJSON(b []byte) error {
	switch string(bytes.TrimSpace(b)) {
	case "null":
		*c = ConfirmUnset
	case "false":
		*c = ConfirmNo
	case "true":
		*c = ConfirmYes
	default:
		return fmt.Errorf("invalid confirmation %s", b)
	}
	return nil
}

// DisplayStatus is the single user-facing label derived from a booking's
// flags. It is never stored.
type DisplayStatus string

const (
	DisplayUnconfirmed     DisplayStatus = "Unconfirmed"
	DisplayConfirmed       DisplayStatus = "Confirmed"
	DisplayDoubleConfirmed DisplayStatus = "DoubleConfirmed"
	DisplayReschedule      DisplayStatus = "Reschedule"
	DisplayArrived         DisplayStatus = "Arrived"
	DisplayLeft            DisplayStatus = "Left"
	DisplayNoShow          DisplayStatus = "NoShow"
	DisplayNoSale          DisplayStatus = "NoSale"
	DisplayReview          DisplayStatus = "Review"
	DisplayCancelled       DisplayStatus = "Cancelled"
	DisplayNew             DisplayStatus = "New"
	DisplayBooked          DisplayStatus = "Booked"
	DisplayRejected        DisplayStatus = "Rejected"
	DisplayAttended        DisplayStatus = "Attended"
	DisplayComplete        DisplayStatus = "Complete"
	DisplayUnassigned      DisplayStatus = "Unassigned"
)

var displayStatuses = []DisplayStatus{
	DisplayUnconfirmed, DisplayConfirmed, DisplayDoubleConfirmed, DisplayReschedule,
	DisplayArrived, DisplayLeft, DisplayNoShow, DisplayNoSale, DisplayReview,
	DisplayCancelled, DisplayNew, DisplayBooked, DisplayRejected, DisplayAttended,
	DisplayComplete, DisplayUnassigned,
}

// DisplayStatuses lists every display status.
func DisplayStatuses() []DisplayStatus {
	out := make([]DisplayStatus, len(displayStatuses))
	copy(out, displayStatuses)
	return out
}

func (s DisplayStatus) Valid() bool {
	for _, v := range displayStatuses {
		if v == s {
			return true
		}
	}
	return false
}

func ParseDisplayStatus(s string) (DisplayStatus, error) {
	v := DisplayStatus(s)
	if !v.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return v, nil
}

// Color is the calendar color for a display status.
func (s DisplayStatus) Color() string {
	switch s {
	case DisplayConfirmed:
		return "#2e7d32"
	case DisplayDoubleConfirmed:
		return "#1b5e20"
	case DisplayUnconfirmed:
		return "#f9a825"
	case DisplayReschedule:
		return "#ef6c00"
	case DisplayArrived:
		return "#0277bd"
	case DisplayLeft:
		return "#6a1b9a"
	case DisplayNoShow:
		return "#c62828"
	case DisplayNoSale:
		return "#8d6e63"
	case DisplayReview:
		return "#00838f"
	case DisplayCancelled, DisplayRejected:
		return "#9e9e9e"
	case DisplayAttended:
		return "#283593"
	case DisplayComplete:
		return "#004d40"
	}
	return "#546e7a"
}
