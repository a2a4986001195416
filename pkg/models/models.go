package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

/* =============================== Enums ================================== */

// Role defines the type of identity in the system.
type Role string

const (
	RoleClient   Role = "client"
	RoleAdvocate Role = "advocate"
	RoleAdmin    Role = "admin"
)

// CaseStatus defines lifecycle states for a case.
type CaseStatus string

const (
	CaseNotApproved CaseStatus = "Not Approved"
	CaseOpen        CaseStatus = "Open"
	CaseClosed      CaseStatus = "Closed"
)

// CaseType is the closed set of case categories.
type CaseType string

const (
	CaseCriminal CaseType = "criminal"
	CaseCivil    CaseType = "civil"
	CaseFamily   CaseType = "family"
	CaseBusiness CaseType = "business"
	CaseProperty CaseType = "property"
	CaseOther    CaseType = "other"
)

// CaseTypes lists every valid case type.
var CaseTypes = []CaseType{CaseCriminal, CaseCivil, CaseFamily, CaseBusiness, CaseProperty, CaseOther}

// Valid reports whether t belongs to the enumeration.
func (t CaseType) Valid() bool {
	for _, ct := range CaseTypes {
		if ct == t {
			return true
		}
	}
	return false
}

// PaymentType tags what a payment is for.
type PaymentType string

const (
	PayAdvance      PaymentType = "advance"
	PaySitting      PaymentType = "sitting"
	PayConsultation PaymentType = "consultation"
	PayOther        PaymentType = "other"
)

// Valid reports whether t is a known payment type.
func (t PaymentType) Valid() bool {
	switch t {
	case PayAdvance, PaySitting, PayConsultation, PayOther:
		return true
	}
	return false
}

// PayStatus defines lifecycle states for a payment.
type PayStatus string

const (
	PayPending   PayStatus = "Pending"
	PayCompleted PayStatus = "Completed"
	PayCancelled PayStatus = "Cancelled"
)

// ConsultationStatus defines lifecycle states for a consultation.
type ConsultationStatus string

const (
	ConsultPending   ConsultationStatus = "Pending"
	ConsultAccepted  ConsultationStatus = "Accepted"
	ConsultRejected  ConsultationStatus = "Rejected"
	ConsultPaid      ConsultationStatus = "Paid"
	ConsultScheduled ConsultationStatus = "Scheduled"
)

/* =============================== Entities =============================== */

// User represents a client or an administrator.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string    `gorm:"not null;uniqueIndex:ux_user_email_role" json:"email"`
	Role         Role      `gorm:"type:varchar(20);not null;uniqueIndex:ux_user_email_role" json:"role"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	Address      string    `json:"address"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(*gorm.DB) error { ensureID(&u.ID); return nil }

// Advocate represents a lawyer offering services on the marketplace.
// Advocates start unverified and are only discoverable once an admin verifies them.
type Advocate struct {
	ID              uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	Email           string                      `gorm:"not null;uniqueIndex" json:"email"`
	PasswordHash    string                      `gorm:"not null" json:"-"`
	Name            string                      `gorm:"not null" json:"name"`
	Phone           string                      `json:"phone"`
	BarNumber       string                      `json:"bar_number"`
	Experience      int                         `json:"experience"`
	Bio             string                      `gorm:"type:text" json:"bio"`
	Specializations datatypes.JSONSlice[string] `json:"specializations"`
	AdvanceFee      decimal.Decimal             `gorm:"type:decimal(12,2);not null;default:0" json:"advance_fee"`
	SittingFee      decimal.Decimal             `gorm:"type:decimal(12,2);not null;default:0" json:"sitting_fee"`
	ConsultationFee decimal.Decimal             `gorm:"type:decimal(12,2);not null;default:0" json:"consultation_fee"`
	Verified        bool                        `gorm:"not null;default:false;index" json:"verified"`
	ProfileImage    string                      `json:"profile_image"`
	CreatedAt       time.Time                   `json:"created_at"`
	UpdatedAt       time.Time                   `json:"updated_at"`
}

func (a *Advocate) BeforeCreate(*gorm.DB) error { ensureID(&a.ID); return nil }

// Case represents a legal matter a client brings to a specific advocate.
type Case struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CaseNumber  string     `gorm:"not null;uniqueIndex" json:"case_number"`
	Title       string     `gorm:"not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	ClientID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"client_id"`
	AdvocateID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"advocate_id"`
	CaseType    CaseType   `gorm:"type:varchar(20);not null;default:'civil'" json:"case_type"`
	Status      CaseStatus `gorm:"type:varchar(20);not null;default:'Not Approved';index" json:"status"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (c *Case) BeforeCreate(*gorm.DB) error { ensureID(&c.ID); return nil }

// Payment is a charge raised against a case or a consultation.
// Amount never changes after creation.
type Payment struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CaseID            *uuid.UUID      `gorm:"type:uuid;index" json:"case_id,omitempty"`
	ConsultationID    *uuid.UUID      `gorm:"type:uuid;index" json:"consultation_id,omitempty"`
	AdvocateID        uuid.UUID       `gorm:"type:uuid;not null;index" json:"advocate_id"`
	ClientID          uuid.UUID       `gorm:"type:uuid;not null;index" json:"client_id"`
	Type              PaymentType     `gorm:"type:varchar(20);not null" json:"type"`
	Amount            decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Description       string          `json:"description"`
	Status            PayStatus       `gorm:"type:varchar(20);not null;default:'Pending';index" json:"status"`
	StripeSessionID   *string         `gorm:"uniqueIndex" json:"-"`
	ExternalReference string          `json:"external_reference,omitempty"`
	CancelReason      string          `json:"cancel_reason,omitempty"`
	PaymentDate       *time.Time      `json:"payment_date,omitempty"`
	CancelledAt       *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error { ensureID(&p.ID); return nil }

// Consultation is a half-hour meeting request between a client and an advocate.
// At most one non-rejected consultation may hold a given (advocate, date, slot).
type Consultation struct {
	ID          uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID    uuid.UUID          `gorm:"type:uuid;not null;index" json:"client_id"`
	AdvocateID  uuid.UUID          `gorm:"type:uuid;not null;uniqueIndex:ux_consult_slot,where:status <> 'Rejected'" json:"advocate_id"`
	Date        string             `gorm:"type:varchar(10);not null;uniqueIndex:ux_consult_slot,where:status <> 'Rejected'" json:"date"`
	TimeSlot    string             `gorm:"type:varchar(20);not null;uniqueIndex:ux_consult_slot,where:status <> 'Rejected'" json:"time_slot"`
	Subject     string             `json:"subject"`
	Status      ConsultationStatus `gorm:"type:varchar(20);not null;default:'Pending';index" json:"status"`
	MeetingLink string             `json:"meeting_link,omitempty"`
	PaymentID   *uuid.UUID         `gorm:"type:uuid" json:"payment_id,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

func (c *Consultation) BeforeCreate(*gorm.DB) error { ensureID(&c.ID); return nil }

// Review is a client's rating of the advocate who handled their case.
// AdvocateID is a snapshot copied from the case at write time.
type Review struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CaseID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_review_case_client" json:"case_id"`
	ClientID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_review_case_client" json:"client_id"`
	AdvocateID uuid.UUID `gorm:"type:uuid;not null;index" json:"advocate_id"`
	Rating     int       `gorm:"not null;check:rating >= 1 AND rating <= 5" json:"rating"`
	Body       string    `gorm:"type:text" json:"review"`
	CreatedAt  time.Time `json:"created_at"`
}

func (r *Review) BeforeCreate(*gorm.DB) error { ensureID(&r.ID); return nil }

// Document is metadata for a file uploaded to a case.
type Document struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CaseID     uuid.UUID `gorm:"type:uuid;not null;index" json:"case_id"`
	AdvocateID uuid.UUID `gorm:"type:uuid;not null;index" json:"advocate_id"`
	Name       string    `gorm:"not null" json:"name"`
	Key        string    `gorm:"not null" json:"-"`
	URL        string    `json:"url"`
	Mime       string    `json:"mime"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (d *Document) BeforeCreate(*gorm.DB) error { ensureID(&d.ID); return nil }

// CaseHistory is an audit log entry for important case changes.
type CaseHistory struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CaseID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"case_id"`
	ActorID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"actor_id"`   // who performed the action (client/advocate/system)
	Action    string     `gorm:"type:varchar(50);not null" json:"action"`    // e.g. submitted, approved, closed, payment_completed
	OldStatus CaseStatus `gorm:"type:varchar(20)" json:"old_status,omitempty"`
	NewStatus CaseStatus `gorm:"type:varchar(20)" json:"new_status,omitempty"`
	Reason    string     `gorm:"type:text" json:"reason,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (h *CaseHistory) BeforeCreate(*gorm.DB) error { ensureID(&h.ID); return nil }

// All lists every model for AutoMigrate.
func All() []any {
	return []any{
		&User{}, &Advocate{}, &Case{}, &Payment{}, &Consultation{},
		&Review{}, &Document{}, &CaseHistory{},
	}
}

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
