package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/slots"
)

// App is the configuration shared by the calendar services.
type App struct {
	// JWT
	JWTSecret    string `envconfig:"JWT_SECRET" required:"true"`
	JWTExpireMin int    `envconfig:"JWT_EXPIRE_MIN" default:"60"`
	// Push channel
	RabbitURL        string `envconfig:"RABBIT_URL" required:"true"`
	CalendarExchange string `envconfig:"CALENDAR_EXCHANGE" default:"calendar.exchange"`
	// Network
	BookingHTTPAddr   string `envconfig:"BOOKING_HTTP_ADDR" default:":8081"`
	BookingServiceURL string `envconfig:"BOOKING_SERVICE_URL" default:"http://booking-service:8081"`
	CalendarHTTPAddr  string `envconfig:"CALENDAR_HTTP_ADDR" default:":8080"`

	Scheduler Scheduler
}

// Scheduler tunes the per-session calendar engine.
type Scheduler struct {
	FetchMinInterval time.Duration `envconfig:"FETCH_MIN_INTERVAL" default:"2s"`
	RefreshDebounce  time.Duration `envconfig:"REFRESH_DEBOUNCE" default:"3s"`
	RetryDelay       time.Duration `envconfig:"MUTATION_RETRY_DELAY" default:"5s"`
	RemoteTimeout    time.Duration `envconfig:"REMOTE_TIMEOUT" default:"10s"`
	SlotLength       time.Duration `envconfig:"SLOT_LENGTH" default:"30m"`
	FirstSlot        string        `envconfig:"FIRST_SLOT" default:"10:00"`
	LastSlot         string        `envconfig:"LAST_SLOT" default:"16:30"`
	TimeZone         string        `envconfig:"CALENDAR_TZ" default:"UTC"`
	SessionIdle      time.Duration `envconfig:"SESSION_IDLE" default:"8h"`
}

// Location resolves TimeZone, falling back to UTC.
func (s Scheduler) Location() *time.Location {
	loc, err := time.LoadLocation(s.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Grid is the bookable grid: FirstSlot to LastSlot every SlotLength.
func (s Scheduler) Grid() (slots.Grid, error) {
	return slots.NewGrid(s.FirstSlot, s.LastSlot, s.SlotLength)
}

func Load() (App, error) {
	var c App
	err := envconfig.Process("", &c)
	return c, err
}
