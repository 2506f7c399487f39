package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ridefusion/booking-backend/internal/database"
	"github.com/ridefusion/booking-backend/internal/models"
	"github.com/ridefusion/booking-backend/internal/utils"
	"github.com/sirupsen/logrus"
)

// Audit actions
const (
	AuditBookingCreated   = "booking_created"
	AuditBookingConfirmed = "booking_confirmed"
	AuditBookingCancelled = "booking_cancelled"
	AuditBookingApproved  = "booking_approved"
	AuditBookingRejected  = "booking_rejected"
)

// AuditService records booking events. With a database the events go to the
// booking_audit_logs table; without one they are only emitted to the logger.
type AuditService struct {
	db     database.DB
	logger *logrus.Logger
	now    func() time.Time
}

// NewAuditService creates a new audit service; db may be nil
func NewAuditService(db database.DB, logger *logrus.Logger) *AuditService {
	return &AuditService{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// AuditEvent represents a booking event to be logged
type AuditEvent struct {
	UserID    uuid.UUID              // Acting passenger or driver
	Action    string                 // One of the Audit* actions
	BookingID uuid.UUID              // Booking the action applies to
	RideID    uuid.UUID              // Ride of that booking
	IPAddress string                 // Client IP address
	UserAgent string                 // Client user agent
	Details   map[string]interface{} // Additional details as JSONB
}

// LogBookingEvent records action on booking by userID
func (s *AuditService) LogBookingEvent(ctx context.Context, userID uuid.UUID, action string, booking *models.Booking, ipAddress, userAgent string) error {
	details := map[string]interface{}{
		"status":      booking.Status,
		"seats":       booking.SeatsBooked,
		"device_info": utils.ParseUserAgent(userAgent),
	}

	return s.logEvent(ctx, AuditEvent{
		UserID:    userID,
		Action:    action,
		BookingID: booking.ID,
		RideID:    booking.RideID,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		Details:   details,
	})
}

// logEvent writes to the booking_audit_logs table
func (s *AuditService) logEvent(ctx context.Context, event AuditEvent) error {
	s.logger.WithFields(logrus.Fields{
		"audit_action": event.Action,
		"user_id":      event.UserID,
		"booking_id":   event.BookingID,
		"ride_id":      event.RideID,
		"ip":           event.IPAddress,
	}).Info("Audit event")

	if s.db == nil {
		return nil
	}

	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}

	query := `
		INSERT INTO booking_audit_logs (id, user_id, action, booking_id, ride_id, ip_address, user_agent, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = s.db.ExecContext(ctx, query,
		uuid.New(),
		event.UserID,
		event.Action,
		event.BookingID,
		event.RideID,
		event.IPAddress,
		event.UserAgent,
		details,
		s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to log audit event: %w", err)
	}

	return nil
}
