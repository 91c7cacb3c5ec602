package models

import "time"

// Registration request lifecycle states
const (
	RegistrationPending  = "PENDING"
	RegistrationApproved = "APPROVED"
	RegistrationRejected = "REJECTED"
)

// RegistrationRequest is a pending account request awaiting admin review.
type RegistrationRequest struct {
	ID            string
	Email         string
	FirstName     string
	LastName      string
	CompanyName   string
	RequestReason string
	Status        string
	RequestedAt   time.Time
	ProcessedAt   *time.Time
	ProcessedBy   string
	AdminComment  string
}
