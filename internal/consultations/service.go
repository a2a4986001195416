package consultations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-advocate-backend/internal/payments"
	"github.com/aldoetobex/legal-advocate-backend/pkg/apperr"
	"github.com/aldoetobex/legal-advocate-backend/pkg/database"
	"github.com/aldoetobex/legal-advocate-backend/pkg/models"
)

const dateLayout = "2006-01-02"

// Service schedules consultations:
// Pending -> Accepted -> Paid -> Scheduled, with Rejected from Pending or Accepted.
type Service struct {
	db          *gorm.DB
	ledger      *payments.Service
	log         *slog.Logger
	meetingBase string
	defaultFee  decimal.Decimal
}

func NewService(db *gorm.DB, ledger *payments.Service, log *slog.Logger, meetingBase string, defaultFee decimal.Decimal) *Service {
	return &Service{
		db:          db,
		ledger:      ledger,
		log:         log,
		meetingBase: strings.TrimRight(meetingBase, "/"),
		defaultFee:  defaultFee,
	}
}

// MeetingLink is the stable room URL of a consultation.
func (s *Service) MeetingLink(id uuid.UUID) string {
	return s.meetingBase + "/legal-consult-" + id.String()
}

/* ================================ Slots ================================= */

// BookedSlots lists the labels held by non-rejected consultations, in day order.
func (s *Service) BookedSlots(ctx context.Context, advocateID uuid.UUID, date string) ([]string, error) {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return nil, apperr.Validation("date must be YYYY-MM-DD")
	}
	booked := []string{}
	if err := s.db.WithContext(ctx).Model(&models.Consultation{}).
		Where("advocate_id = ? AND date = ? AND status <> ?", advocateID, date, models.ConsultRejected).
		Pluck("time_slot", &booked).Error; err != nil {
		return nil, err
	}
	sort.Slice(booked, func(i, j int) bool { return slotIndex[booked[i]] < slotIndex[booked[j]] })
	return booked, nil
}

/* =============================== Request ================================ */

// RequestInput is a client's booking.
type RequestInput struct {
	AdvocateID uuid.UUID
	Date       string
	TimeSlot   string
	Subject    string
}

// Request books a slot. The partial unique index on (advocate, date, slot)
// decides concurrent bookings; the pre-check only gives a quicker answer.
func (s *Service) Request(ctx context.Context, clientID uuid.UUID, in RequestInput) (models.Consultation, error) {
	db := s.db.WithContext(ctx)

	var client models.User
	if clientID == uuid.Nil || db.Select("id").First(&client, "id = ? AND role = ?", clientID, models.RoleClient).Error != nil {
		return models.Consultation{}, apperr.ErrInvalidClient
	}
	if _, err := time.Parse(dateLayout, in.Date); err != nil {
		return models.Consultation{}, apperr.Validation("date must be YYYY-MM-DD")
	}
	if !ValidSlot(in.TimeSlot) {
		return models.Consultation{}, apperr.Validation("unknown time slot")
	}

	var adv models.Advocate
	if err := db.Select("id", "verified").First(&adv, "id = ?", in.AdvocateID).Error; err != nil || !adv.Verified {
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Consultation{}, err
		}
		return models.Consultation{}, apperr.NotFound("advocate")
	}

	var taken int64
	if err := db.Model(&models.Consultation{}).
		Where("advocate_id = ? AND date = ? AND time_slot = ? AND status <> ?", adv.ID, in.Date, in.TimeSlot, models.ConsultRejected).
		Count(&taken).Error; err != nil {
		return models.Consultation{}, err
	}
	if taken > 0 {
		return models.Consultation{}, apperr.ErrSlotTaken
	}

	cons := models.Consultation{
		ClientID:   clientID,
		AdvocateID: adv.ID,
		Date:       in.Date,
		TimeSlot:   in.TimeSlot,
		Subject:    strings.TrimSpace(in.Subject),
		Status:     models.ConsultPending,
	}
	if err := db.Create(&cons).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return models.Consultation{}, apperr.ErrSlotTaken
		}
		return models.Consultation{}, err
	}

	s.log.InfoContext(ctx, "consultation requested", "consultation_id", cons.ID, "advocate_id", adv.ID, "date", in.Date, "slot", in.TimeSlot)
	return cons, nil
}

/* ============================ Transitions =============================== */

// Accept moves a Pending request to Accepted.
func (s *Service) Accept(ctx context.Context, advocateID, id uuid.UUID) (models.Consultation, error) {
	return s.transition(ctx, advocateID, id, []models.ConsultationStatus{models.ConsultPending},
		map[string]any{"status": models.ConsultAccepted}, "only pending consultations can be accepted")
}

// Reject frees the slot of a Pending or Accepted consultation.
// The linked Pending payment is cancelled first so the client cannot pay for a
// rejected consultation; once paid, rejection is refused.
func (s *Service) Reject(ctx context.Context, advocateID, id uuid.UUID) (models.Consultation, error) {
	cons, err := s.get(ctx, id)
	if err != nil {
		return models.Consultation{}, err
	}
	if cons.AdvocateID != advocateID {
		return models.Consultation{}, apperr.Forbidden("not your consultation")
	}
	rejectable := cons.Status == models.ConsultPending || cons.Status == models.ConsultAccepted
	if rejectable && cons.PaymentID != nil {
		if _, _, err := s.ledger.Cancel(ctx, *cons.PaymentID, "consultation rejected"); err != nil {
			switch apperr.KindOf(err) {
			case apperr.KindNotFound:
			case apperr.KindInvalidTransition:
				return cons, apperr.InvalidTransition("consultation is already paid")
			default:
				return models.Consultation{}, err
			}
		}
	}
	return s.transition(ctx, advocateID, id, []models.ConsultationStatus{models.ConsultPending, models.ConsultAccepted},
		map[string]any{"status": models.ConsultRejected}, "only pending or accepted consultations can be rejected")
}

// Schedule attaches the meeting link to a paid consultation. Scheduling twice
// returns the existing meeting.
func (s *Service) Schedule(ctx context.Context, advocateID, id uuid.UUID) (models.Consultation, error) {
	cons, err := s.transition(ctx, advocateID, id, []models.ConsultationStatus{models.ConsultPaid},
		map[string]any{"status": models.ConsultScheduled, "meeting_link": s.MeetingLink(id)}, "only paid consultations can be scheduled")
	if err != nil && cons.Status == models.ConsultScheduled {
		return cons, nil
	}
	return cons, err
}

// transition applies updates when the row is owned by the advocate and in one of from.
// On a refused transition the current row is returned along with the error.
func (s *Service) transition(ctx context.Context, advocateID, id uuid.UUID, from []models.ConsultationStatus, updates map[string]any, refusal string) (models.Consultation, error) {
	cons, err := s.get(ctx, id)
	if err != nil {
		return models.Consultation{}, err
	}
	if cons.AdvocateID != advocateID {
		return models.Consultation{}, apperr.Forbidden("not your consultation")
	}

	res := s.db.WithContext(ctx).Model(&models.Consultation{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return models.Consultation{}, res.Error
	}

	cons, err = s.get(ctx, id)
	if err != nil {
		return models.Consultation{}, err
	}
	if res.RowsAffected == 0 {
		return cons, apperr.InvalidTransition(refusal)
	}
	s.log.InfoContext(ctx, "consultation updated", "consultation_id", id, "status", cons.Status)
	return cons, nil
}

/* =============================== Payment ================================ */

// InitiatePayment raises (or reuses) the consultation fee payment and opens checkout.
func (s *Service) InitiatePayment(ctx context.Context, clientID, id uuid.UUID) (models.Consultation, models.Payment, string, error) {
	cons, err := s.get(ctx, id)
	if err != nil {
		return models.Consultation{}, models.Payment{}, "", err
	}
	if cons.ClientID != clientID {
		return models.Consultation{}, models.Payment{}, "", apperr.Forbidden("not your consultation")
	}
	if cons.Status != models.ConsultAccepted {
		return models.Consultation{}, models.Payment{}, "", apperr.InvalidTransition("only accepted consultations can be paid")
	}

	var client models.User
	if err := s.db.WithContext(ctx).Select("id", "email").First(&client, "id = ?", clientID).Error; err != nil {
		return models.Consultation{}, models.Payment{}, "", apperr.ErrInvalidClient
	}

	pay, err := s.paymentFor(ctx, cons)
	if err != nil {
		return models.Consultation{}, models.Payment{}, "", err
	}
	cons.PaymentID = &pay.ID

	url, err := s.ledger.Checkout(ctx, pay, client.Email)
	if err != nil {
		return cons, pay, "", err
	}
	return cons, pay, url, nil
}

// paymentFor returns the linked Pending payment, or creates one and links it.
func (s *Service) paymentFor(ctx context.Context, cons models.Consultation) (models.Payment, error) {
	if cons.PaymentID != nil {
		p, err := s.ledger.Get(ctx, *cons.PaymentID)
		switch {
		case err == nil && p.Status == models.PayPending:
			return p, nil
		case err == nil && p.Status == models.PayCompleted:
			return models.Payment{}, apperr.InvalidTransition("consultation is already paid")
		case err != nil && apperr.KindOf(err) != apperr.KindNotFound:
			return models.Payment{}, err
		}
		// cancelled or missing: raise a fresh one
	}

	var adv models.Advocate
	if err := s.db.WithContext(ctx).First(&adv, "id = ?", cons.AdvocateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Payment{}, apperr.NotFound("advocate")
		}
		return models.Payment{}, err
	}
	fee := adv.ConsultationFee
	if !fee.IsPositive() {
		fee = s.defaultFee
	}

	pay := models.Payment{
		ConsultationID: &cons.ID,
		AdvocateID:     cons.AdvocateID,
		ClientID:       cons.ClientID,
		Type:           models.PayConsultation,
		Amount:         fee,
		Description:    fmt.Sprintf("Consultation with %s on %s, %s", adv.Name, cons.Date, cons.TimeSlot),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := payments.Insert(ctx, tx, &pay); err != nil {
			return err
		}
		return tx.Model(&models.Consultation{}).Where("id = ?", cons.ID).Update("payment_id", pay.ID).Error
	})
	if err != nil {
		return models.Payment{}, err
	}
	s.log.InfoContext(ctx, "consultation payment raised", "consultation_id", cons.ID, "payment_id", pay.ID, "amount", pay.Amount.String())
	return pay, nil
}

// OnPaymentCompleted is the ledger hook: the consultation is marked Paid, then Scheduled.
// Safe to run repeatedly for the same payment.
func (s *Service) OnPaymentCompleted(ctx context.Context, p models.Payment) error {
	if p.ConsultationID == nil {
		return nil
	}
	db := s.db.WithContext(ctx)
	id := *p.ConsultationID

	if err := db.Model(&models.Consultation{}).
		Where("id = ? AND status = ?", id, models.ConsultAccepted).
		Updates(map[string]any{"status": models.ConsultPaid, "payment_id": p.ID}).Error; err != nil {
		return err
	}
	res := db.Model(&models.Consultation{}).
		Where("id = ? AND status = ?", id, models.ConsultPaid).
		Updates(map[string]any{"status": models.ConsultScheduled, "meeting_link": s.MeetingLink(id)})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		s.log.InfoContext(ctx, "consultation scheduled after payment", "consultation_id", id, "payment_id", p.ID)
	}
	return nil
}

/* ================================ Reads ================================= */

// View is a consultation with party names for display.
type View struct {
	models.Consultation
	ClientName   string `json:"client_name"`
	AdvocateName string `json:"advocate_name"`
}

func (s *Service) ListForClient(ctx context.Context, clientID uuid.UUID) ([]View, error) {
	return s.list(ctx, "client_id = ?", clientID)
}

func (s *Service) ListForAdvocate(ctx context.Context, advocateID uuid.UUID) ([]View, error) {
	return s.list(ctx, "advocate_id = ?", advocateID)
}

func (s *Service) list(ctx context.Context, where string, id uuid.UUID) ([]View, error) {
	var rows []models.Consultation
	if err := s.db.WithContext(ctx).Where(where, id).Order("date DESC").Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}

	clientIDs := make([]uuid.UUID, 0, len(rows))
	advocateIDs := make([]uuid.UUID, 0, len(rows))
	for _, r := range rows {
		clientIDs = append(clientIDs, r.ClientID)
		advocateIDs = append(advocateIDs, r.AdvocateID)
	}
	clients := map[uuid.UUID]string{}
	advocates := map[uuid.UUID]string{}
	if len(rows) > 0 {
		var us []models.User
		if err := s.db.WithContext(ctx).Select("id", "name").Where("id IN ?", clientIDs).Find(&us).Error; err == nil {
			for _, u := range us {
				clients[u.ID] = u.Name
			}
		}
		var as []models.Advocate
		if err := s.db.WithContext(ctx).Select("id", "name").Where("id IN ?", advocateIDs).Find(&as).Error; err == nil {
			for _, a := range as {
				advocates[a.ID] = a.Name
			}
		}
	}

	out := make([]View, 0, len(rows))
	for _, r := range rows {
		v := View{Consultation: r, ClientName: "Unknown", AdvocateName: "Unknown"}
		if n := clients[r.ClientID]; n != "" {
			v.ClientName = n
		}
		if n := advocates[r.AdvocateID]; n != "" {
			v.AdvocateName = n
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Service) get(ctx context.Context, id uuid.UUID) (models.Consultation, error) {
	var cons models.Consultation
	if err := s.db.WithContext(ctx).First(&cons, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Consultation{}, apperr.NotFound("consultation")
		}
		return models.Consultation{}, err
	}
	return cons, nil
}
