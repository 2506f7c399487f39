package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	MaxAttempts int           // Confirmation attempts per booking caller and per IP
	Window      time.Duration // Time to regain the full allowance
}

// DefaultRateLimitConfig returns the default rate limit configuration
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxAttempts: 5,                // 5 attempts
		Window:      10 * time.Minute, // per 10 minutes
	}
}

// RateLimitError represents a rate limit exceeded error
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
	Type       string // "booking" or "ip"
}

func (e *RateLimitError) Error() string {
	return e.Message
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitService throttles confirmation code attempts so a six-digit code
// cannot be guessed by brute force. Limits are kept in process memory.
type RateLimitService struct {
	config   RateLimitConfig
	logger   *logrus.Logger
	now      func() time.Time
	mu       sync.Mutex
	limiters map[string]*limiterEntry
}

// NewRateLimitService creates a new rate limit service
func NewRateLimitService(config RateLimitConfig, logger *logrus.Logger) *RateLimitService {
	defaults := DefaultRateLimitConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.Window <= 0 {
		config.Window = defaults.Window
	}
	return &RateLimitService{
		config:   config,
		logger:   logger,
		now:      time.Now,
		limiters: make(map[string]*limiterEntry),
	}
}

// AllowConfirmAttempt consumes one attempt for the caller on this booking and
// one for the IP. Either allowance running out rejects the attempt. The booking
// allowance is per caller, so attempts by someone other than the passenger
// never lock the passenger out.
func (s *RateLimitService) AllowConfirmAttempt(bookingID, callerID, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	bookingKey := ""
	if bookingID != "" {
		bookingKey = bookingID + "/" + callerID
	}
	keys := []struct{ kind, id string }{{"booking", bookingKey}, {"ip", ip}}

	reservations := make([]*rate.Reservation, 0, len(keys))
	for _, key := range keys {
		if key.id == "" {
			continue
		}
		r := s.limiterFor(key.kind+":"+key.id, now).ReserveN(now, 1)
		if delay := r.DelayFrom(now); delay > 0 {
			r.CancelAt(now)
			for _, prev := range reservations {
				prev.CancelAt(now)
			}

			s.logger.WithFields(logrus.Fields{
				"type":        key.kind,
				"identifier":  key.id,
				"retry_after": delay.Round(time.Second).String(),
			}).Warn("Confirmation attempts rate limited")

			return &RateLimitError{
				Message:    fmt.Sprintf("Too many confirmation attempts. Please try again in %s", delay.Round(time.Second)),
				RetryAfter: delay,
				Type:       key.kind,
			}
		}
		reservations = append(reservations, r)
	}
	return nil
}

// CleanupExpiredRateLimits drops limiters idle for longer than the window,
// by which time they have refilled completely
func (s *RateLimitService) CleanupExpiredRateLimits() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.config.Window)
	removed := 0
	for key, entry := range s.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(s.limiters, key)
			removed++
		}
	}
	return removed
}

// StartCleanup runs CleanupExpiredRateLimits every interval until ctx is done
func (s *RateLimitService) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := s.CleanupExpiredRateLimits(); removed > 0 {
					s.logger.WithField("removed", removed).Debug("Cleaned up idle rate limiters")
				}
			}
		}
	}()
}

func (s *RateLimitService) limiterFor(key string, now time.Time) *rate.Limiter {
	entry, ok := s.limiters[key]
	if !ok {
		every := s.config.Window / time.Duration(s.config.MaxAttempts)
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Every(every), s.config.MaxAttempts)}
		s.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}
