package admission

import (
	"context"
	"errors"
	"time"

	"github.com/ankyy/musicbox/internal/identity"
	"github.com/ankyy/musicbox/pkg/logger"
)

var (
	log = logger.Get("Admission")

	// ErrLimitReached is returned when an anonymous caller has exhausted
	// their daily allowance. The API layer maps this to a 429 response
	// carrying LimitRemediation.
	ErrLimitReached = errors.New("LIMIT_REACHED")

	// ErrQuotaUnavailable is returned instead of a fail-open admission when
	// the controller has been configured to deny during a counter outage.
	ErrQuotaUnavailable = errors.New("quota store unavailable")
)

// LimitRemediation is the user-facing hint attached to quota denials.
const LimitRemediation = "Daily guest limit reached. Sign in for unlimited access."

type (
	// Counter is the usage counter store consumed by the controller. The
	// increment and the read MUST be atomic with respect to concurrent
	// calls for the same client key; a read-then-compare implementation
	// would let two simultaneous requests both observe a stale under-limit
	// count.
	Counter interface {
		IncrementAndCount(ctx context.Context, clientKey string, windowStart time.Time) (int, error)
	}

	Config struct {
		// DailyGuestLimit is the number of admissions an anonymous caller
		// is granted per UTC calendar day, keyed by client address.
		DailyGuestLimit int `yaml:"daily_guest_limit" env:"ADMISSION_DAILY_GUEST_LIMIT" env-default:"3"`

		// DenyOnOutage flips the fail-open behaviour: when set, anonymous
		// requests are rejected while the counter store is unreachable.
		DenyOnOutage bool `yaml:"deny_on_outage" env:"ADMISSION_DENY_ON_OUTAGE" env-default:"false"`
	}

	// Decision records the outcome of an admission check. Degraded marks a
	// fail-open admission granted while the counter store was unreachable.
	Decision struct {
		Admitted  bool
		Degraded  bool
		Remaining int
	}

	Controller struct {
		config  Config
		counter Counter
		now     func() time.Time
	}
)

func NewController(config Config, counter Counter) *Controller {
	return NewControllerWithClock(config, counter, time.Now)
}

// NewControllerWithClock is NewController with an injectable clock, allowing
// tests to simulate UTC day rollovers.
func NewControllerWithClock(config Config, counter Counter, clock func() time.Time) *Controller {
	return &Controller{config: config, counter: counter, now: clock}
}

// Admit decides whether the caller may proceed to job creation.
//
// Authenticated identities are admitted immediately with no counter access.
// Anonymous callers consume one unit of their daily allowance atomically; a
// count above the configured limit yields ErrLimitReached. If the counter
// store is unreachable the controller fails OPEN (admit, flagged Degraded)
// unless DenyOnOutage is set - availability of the core feature outranks
// strict enforcement during an infrastructure incident.
func (controller *Controller) Admit(ctx context.Context, id identity.Identity, clientKey string) (Decision, error) {
	if id.Authenticated {
		log.Debugf("VIP access for user %s\n", id.UserID)
		return Decision{Admitted: true}, nil
	}

	windowStart := WindowStart(controller.now())
	count, err := controller.counter.IncrementAndCount(ctx, clientKey, windowStart)
	if err != nil {
		if controller.config.DenyOnOutage {
			log.Errorf("Counter store unreachable (%v); denying guest %s per configuration\n", err, clientKey)
			return Decision{}, ErrQuotaUnavailable
		}

		log.Warnf("Counter store unreachable (%v); admitting guest %s DEGRADED (fail-open)\n", err, clientKey)
		return Decision{Admitted: true, Degraded: true}, nil
	}

	log.Debugf("Guest %s usage: %d/%d\n", clientKey, count, controller.config.DailyGuestLimit)
	if count > controller.config.DailyGuestLimit {
		return Decision{}, ErrLimitReached
	}

	return Decision{Admitted: true, Remaining: controller.config.DailyGuestLimit - count}, nil
}

// WindowStart returns the start of the UTC calendar day containing the
// instant provided; the anonymous quota window.
func WindowStart(now time.Time) time.Time {
	utc := now.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
}
