package dto

// BookRequest claims a seat for a client.
type BookRequest struct {
	SessionID  string   `json:"-" validate:"required"`
	ClientID   string   `json:"clientId" validate:"required"`
	PaymentID  *string  `json:"paymentId" validate:"omitnil,min=1,max=128"`
	PaidAmount *float64 `json:"paidAmount" validate:"omitnil,gte=0"`
	Notes      *string  `json:"notes" validate:"omitnil,max=2000"`
}

// CancelBookingRequest carries the operator or client supplied reason.
type CancelBookingRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// MarkOutcomeRequest records post-session attendance.
type MarkOutcomeRequest struct {
	Outcome string `json:"outcome" validate:"required"`
}

// JoinWaitlistRequest queues a client for a full session.
type JoinWaitlistRequest struct {
	ClientID string `json:"clientId" validate:"required"`
}
