package models

import "slices"

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:   {BookingConfirmed, BookingCancelled},
	BookingConfirmed: {BookingCompleted, BookingCancelled},
}

// approved -> rejected is the admin suspension path; Decide itself only
// acts on pending applications.
var approvalTransitions = map[ApprovalStatus][]ApprovalStatus{
	ApprovalIncomplete: {ApprovalPending},
	ApprovalPending:    {ApprovalApproved, ApprovalRejected},
	ApprovalRejected:   {ApprovalPending},
	ApprovalApproved:   {ApprovalRejected},
}

var payoutTransitions = map[PayoutStatus][]PayoutStatus{
	PayoutPending:  {PayoutApproved, PayoutRejected},
	PayoutApproved: {PayoutCompleted},
}

func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	return slices.Contains(bookingTransitions[s], next)
}

func (s BookingStatus) IsTerminal() bool {
	return len(bookingTransitions[s]) == 0
}

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingCompleted, BookingCancelled:
		return true
	}
	return false
}

func (s ApprovalStatus) CanTransitionTo(next ApprovalStatus) bool {
	return slices.Contains(approvalTransitions[s], next)
}

func (s ApprovalStatus) Valid() bool {
	switch s {
	case ApprovalIncomplete, ApprovalPending, ApprovalApproved, ApprovalRejected:
		return true
	}
	return false
}

func (s PayoutStatus) CanTransitionTo(next PayoutStatus) bool {
	return slices.Contains(payoutTransitions[s], next)
}

func (s PayoutStatus) Valid() bool {
	switch s {
	case PayoutPending, PayoutApproved, PayoutRejected, PayoutCompleted:
		return true
	}
	return false
}
