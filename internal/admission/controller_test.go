package admission_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ankyy/musicbox/internal/admission"
	"github.com/ankyy/musicbox/internal/identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

var (
	ctx         = context.Background()
	errExpected = errors.New("test: expected error")
)

type mockCounter struct {
	mock.Mock
}

func (counter *mockCounter) IncrementAndCount(ctx context.Context, clientKey string, windowStart time.Time) (int, error) {
	args := counter.Called(ctx, clientKey, windowStart)
	return args.Int(0), args.Error(1)
}

func authedIdentity() identity.Identity {
	return identity.Identity{Authenticated: true, UserID: uuid.New(), Role: identity.RoleMember}
}

func Test_Admit_AuthenticatedBypassesCounter(t *testing.T) {
	t.Parallel()

	counter := &mockCounter{}
	controller := admission.NewController(admission.Config{DailyGuestLimit: 1}, counter)

	decision, err := controller.Admit(ctx, authedIdentity(), "10.0.0.1")

	assert.Nil(t, err)
	assert.True(t, decision.Admitted)
	assert.False(t, decision.Degraded)
	counter.AssertNotCalled(t, "IncrementAndCount")
}

func Test_Admit_GuestQuotaBoundary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		summary      string
		count        int
		expectAdmit  bool
		expectRemain int
	}{
		{"first request of the day", 1, true, 2},
		{"second request", 2, true, 1},
		{"final allowed request", 3, true, 0},
		{"request over the limit", 4, false, 0},
	}

	for _, test := range tests {
		counter := &mockCounter{}
		counter.On("IncrementAndCount", ctx, "10.0.0.1", mock.Anything).Return(test.count, nil).Once()
		controller := admission.NewController(admission.Config{DailyGuestLimit: 3}, counter)

		decision, err := controller.Admit(ctx, identity.Anonymous(), "10.0.0.1")
		if test.expectAdmit {
			assert.Nil(t, err, test.summary)
			assert.True(t, decision.Admitted, test.summary)
			assert.Equal(t, test.expectRemain, decision.Remaining, test.summary)
		} else {
			assert.ErrorIs(t, err, admission.ErrLimitReached, test.summary)
			assert.False(t, decision.Admitted, test.summary)
		}

		counter.AssertExpectations(t)
	}
}

func Test_Admit_WindowKeyedByUTCDay(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, time.June, 1, 23, 59, 30, 0, time.UTC)
	counter := &mockCounter{}
	counter.On("IncrementAndCount", ctx, "10.0.0.1", time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)).Return(1, nil).Once()
	counter.On("IncrementAndCount", ctx, "10.0.0.1", time.Date(2024, time.June, 2, 0, 0, 0, 0, time.UTC)).Return(1, nil).Once()

	controller := admission.NewControllerWithClock(admission.Config{DailyGuestLimit: 3}, counter, func() time.Time { return now })

	_, err := controller.Admit(ctx, identity.Anonymous(), "10.0.0.1")
	assert.Nil(t, err)

	// One minute later a fresh UTC day has started; the counter must be
	// asked about the new window, not the old one.
	now = now.Add(time.Minute)
	_, err = controller.Admit(ctx, identity.Anonymous(), "10.0.0.1")
	assert.Nil(t, err)

	counter.AssertExpectations(t)
}

func Test_Admit_CounterOutageFailsOpen(t *testing.T) {
	t.Parallel()

	counter := &mockCounter{}
	counter.On("IncrementAndCount", ctx, "10.0.0.1", mock.Anything).Return(0, errExpected)
	controller := admission.NewController(admission.Config{DailyGuestLimit: 3}, counter)

	decision, err := controller.Admit(ctx, identity.Anonymous(), "10.0.0.1")

	assert.Nil(t, err)
	assert.True(t, decision.Admitted)
	assert.True(t, decision.Degraded)
}

func Test_Admit_CounterOutageDeniesWhenConfigured(t *testing.T) {
	t.Parallel()

	counter := &mockCounter{}
	counter.On("IncrementAndCount", ctx, "10.0.0.1", mock.Anything).Return(0, errExpected)
	controller := admission.NewController(admission.Config{DailyGuestLimit: 3, DenyOnOutage: true}, counter)

	decision, err := controller.Admit(ctx, identity.Anonymous(), "10.0.0.1")

	assert.ErrorIs(t, err, admission.ErrQuotaUnavailable)
	assert.False(t, decision.Admitted)
}

func Test_WindowStart_NormalizesToUTCMidnight(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("Pacific/Auckland")
	assert.Nil(t, err)

	// 11am June 1st in Auckland is still May 31st in UTC.
	local := time.Date(2024, time.June, 1, 11, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2024, time.May, 31, 0, 0, 0, 0, time.UTC), admission.WindowStart(local))
}
