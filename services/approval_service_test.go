package services_test

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anjiri1684/tutor_marketplace/models"
	"github.com/anjiri1684/tutor_marketplace/services"
)

func TestApplicationLifecycle(t *testing.T) {
	f := newFixture(t)
	teacher := f.newTeacher("new-teacher@example.com")

	profile, err := f.approval.Profile(f.ctx, teacher)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalIncomplete, profile.Status)

	bookable, err := f.approval.IsBookable(f.ctx, teacher)
	require.NoError(t, err)
	assert.False(t, bookable)

	profile, err = f.approval.SubmitApplication(f.ctx, teacher, services.Application{Headline: "IELTS prep", Bio: "Ten years", PricePerLesson: dec("30")})
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalPending, profile.Status)

	_, err = f.approval.SubmitApplication(f.ctx, teacher, services.Application{Headline: "again", PricePerLesson: dec("30")})
	assert.ErrorIs(t, err, services.ErrAlreadySubmitted)

	pending, err := f.approval.ListByStatus(f.ctx, models.ApprovalPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, teacher, pending[0].UserID)

	profile, err = f.approval.Decide(f.ctx, teacher, models.ApprovalRejected, f.admin, "incomplete bio")
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalRejected, profile.Status)
	require.NotNil(t, profile.ReviewNote)
	assert.Equal(t, "incomplete bio", *profile.ReviewNote)

	_, err = f.approval.Decide(f.ctx, teacher, models.ApprovalApproved, f.admin, "")
	assert.ErrorIs(t, err, services.ErrInvalidStateTransition, "only pending applications can be decided")

	_, err = f.approval.SubmitApplication(f.ctx, teacher, services.Application{Headline: "IELTS prep", Bio: "Eleven years", PricePerLesson: dec("30")})
	require.NoError(t, err, "rejected teachers may resubmit")
	_, err = f.approval.Decide(f.ctx, teacher, models.ApprovalApproved, f.admin, "")
	require.NoError(t, err)

	bookable, err = f.approval.IsBookable(f.ctx, teacher)
	require.NoError(t, err)
	assert.True(t, bookable)
	assert.Contains(t, f.topics(), models.TopicTeacherDecided)
}

func TestDecideRejectsUnknownOutcome(t *testing.T) {
	f := newFixture(t)
	teacher := f.newTeacher("t2@example.com")
	_, err := f.approval.SubmitApplication(f.ctx, teacher, services.Application{Headline: "Maths", PricePerLesson: dec("20")})
	require.NoError(t, err)

	_, err = f.approval.Decide(f.ctx, teacher, models.ApprovalIncomplete, f.admin, "")
	assert.ErrorIs(t, err, services.ErrInvalidInput)
}

func TestSubmitValidatesApplication(t *testing.T) {
	f := newFixture(t)
	teacher := f.newTeacher("t3@example.com")

	_, err := f.approval.SubmitApplication(f.ctx, teacher, services.Application{Headline: " ", PricePerLesson: dec("20")})
	assert.ErrorIs(t, err, services.ErrInvalidInput)
	_, err = f.approval.SubmitApplication(f.ctx, teacher, services.Application{Headline: "Maths", PricePerLesson: dec("0")})
	assert.ErrorIs(t, err, services.ErrInvalidInput)
}

func TestConcurrentDecisionsApplyOnce(t *testing.T) {
	f := newFixture(t)
	teacher := f.newTeacher("t4@example.com")
	_, err := f.approval.SubmitApplication(f.ctx, teacher, services.Application{Headline: "French", PricePerLesson: dec("20")})
	require.NoError(t, err)

	outcomes := []models.ApprovalStatus{models.ApprovalApproved, models.ApprovalRejected}
	errs := make([]error, len(outcomes))
	var wg sync.WaitGroup
	for i, outcome := range outcomes {
		i, outcome := i, outcome
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.approval.Decide(f.ctx, teacher, outcome, f.admin, "")
		}()
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, services.ErrInvalidStateTransition)
			failures++
		}
	}
	assert.Equal(t, 1, failures)
}

func TestUnknownTeacherIsNotBookable(t *testing.T) {
	f := newFixture(t)

	bookable, err := f.approval.IsBookable(f.ctx, f.student)
	require.NoError(t, err)
	assert.False(t, bookable)
}

func TestSuspendedTeacherCannotBeBooked(t *testing.T) {
	f := newFixture(t)

	_, err := f.approval.Suspend(f.ctx, f.teacher, f.admin, "complaints")
	require.NoError(t, err)

	_, err = f.book(f.student, at(15, 0), models.PaymentWallet)
	assert.ErrorIs(t, err, services.ErrTeacherNotBookable)
	f.requireAmount("100", f.balances(f.student).Available, "student funds untouched")
}

func TestOnlyApprovedTeachersCanBeBooked(t *testing.T) {
	cases := map[string]func(f *fixture, teacher uuid.UUID){
		"incomplete": func(*fixture, uuid.UUID) {},
		"pending": func(f *fixture, teacher uuid.UUID) {
			_, err := f.approval.SubmitApplication(f.ctx, teacher, services.Application{Headline: "Mandarin", PricePerLesson: dec("20")})
			require.NoError(f.t, err)
		},
		"rejected": func(f *fixture, teacher uuid.UUID) {
			_, err := f.approval.SubmitApplication(f.ctx, teacher, services.Application{Headline: "Mandarin", PricePerLesson: dec("20")})
			require.NoError(f.t, err)
			_, err = f.approval.Decide(f.ctx, teacher, models.ApprovalRejected, f.admin, "no credentials")
			require.NoError(f.t, err)
		},
	}
	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			teacher := f.newTeacher("gated@example.com")
			setup(f, teacher)
			_, err := f.approval.AddAvailability(f.ctx, teacher, at(14, 0), at(20, 0))
			require.NoError(t, err)

			_, err = f.bookings.RequestBooking(f.ctx, services.BookingRequest{
				StudentID:       f.student,
				TeacherID:       teacher,
				SlotStart:       at(15, 0),
				DurationMinutes: 60,
				PaymentMethod:   models.PaymentWallet,
			})
			assert.ErrorIs(t, err, services.ErrTeacherNotBookable)
			f.requireAmount("100", f.balances(f.student).Available, "student funds untouched")

			bookings, err := f.bookings.ListForUser(f.ctx, f.student)
			require.NoError(t, err)
			assert.Empty(t, bookings)
		})
	}
}

func TestAvailabilityRejectsOverlap(t *testing.T) {
	f := newFixture(t)

	_, err := f.approval.AddAvailability(f.ctx, f.teacher, at(19, 0), at(21, 0))
	assert.ErrorIs(t, err, services.ErrSlotUnavailable)

	_, err = f.approval.AddAvailability(f.ctx, f.teacher, at(21, 0), at(20, 0))
	assert.ErrorIs(t, err, services.ErrInvalidInput)

	slot, err := f.approval.AddAvailability(f.ctx, f.teacher, at(20, 0), at(22, 0))
	require.NoError(t, err)

	slots, err := f.approval.Availability(f.ctx, f.teacher)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, slot.ID, slots[1].ID)
}
