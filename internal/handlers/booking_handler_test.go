package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ridefusion/booking-backend/internal/database"
	"github.com/ridefusion/booking-backend/internal/models"
	"github.com/ridefusion/booking-backend/internal/services"
	"github.com/ridefusion/booking-backend/pkg/jwt"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	router *gin.Engine
	store  *database.MemoryBookingRepository
	jwt    *jwt.Service
}

func newTestServer(t *testing.T, requiresConfirmation bool) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := database.NewMemoryBookingRepository()
	machine := services.NewBookingStateMachine(
		services.LifecycleConfig{RequiresConfirmation: requiresConfirmation},
		services.NewSeatInventory(logger),
		services.NewOTPService(),
	)
	bookingService := services.NewBookingOrchestratorService(store, machine, services.DefaultOrchestratorConfig(), logger)
	rideService := services.NewRideService(store, logger)
	jwtService := jwt.NewService("handler-test-secret-0123456789abcdef", time.Hour)
	rateLimiter := services.NewRateLimitService(services.RateLimitConfig{MaxAttempts: 4, Window: time.Hour}, logger)

	router := gin.New()
	RegisterRoutes(
		router.Group("/api/v1"),
		NewRideHandler(rideService, logger),
		NewBookingHandler(bookingService, services.NewAuditService(nil, logger), rateLimiter, logger),
		jwtService,
		logger,
	)

	return &testServer{router: router, store: store, jwt: jwtService}
}

func (s *testServer) token(t *testing.T, userID uuid.UUID, roles ...string) string {
	t.Helper()
	token, err := s.jwt.GenerateAccessToken(userID, roles)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	return s.doFrom(t, "", method, path, token, body)
}

// doFrom sends the request as if from clientIP, which must be public to be honoured
func (s *testServer) doFrom(t *testing.T, clientIP, method, path, token string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "RideFusionTest/1.0")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if clientIP != "" {
		req.Header.Set("X-Real-IP", clientIP)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func (s *testServer) seedRide(t *testing.T, seats int) *models.Ride {
	t.Helper()
	ride := &models.Ride{
		DriverID:       uuid.New(),
		StartLocation:  "Colombo",
		EndLocation:    "Kandy",
		StartDateTime:  time.Now().Add(24 * time.Hour),
		TotalSeats:     seats,
		AvailableSeats: seats,
	}
	require.NoError(t, s.store.CreateRide(context.Background(), ride))
	return ride
}

func bookingsPath(rideID uuid.UUID) string {
	return "/api/v1/rides/" + rideID.String() + "/bookings"
}

func bookingField(t *testing.T, resp map[string]interface{}, field string) interface{} {
	t.Helper()
	booking, ok := resp["booking"].(map[string]interface{})
	require.True(t, ok, "response has no booking: %v", resp)
	return booking[field]
}

func TestCreateBooking_Direct(t *testing.T) {
	s := newTestServer(t, false)
	ride := s.seedRide(t, 3)
	token := s.token(t, uuid.New(), jwt.RolePassenger)

	w, resp := s.do(t, http.MethodPost, bookingsPath(ride.ID), token, gin.H{"seats": 2})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "confirmed", bookingField(t, resp, "status"))
	assert.Equal(t, "Booking confirmed successfully!", resp["message"])
	assert.NotContains(t, resp, "confirmation_code")

	w, resp = s.do(t, http.MethodPost, bookingsPath(ride.ID), token, gin.H{"seats": 2})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CAPACITY_EXCEEDED", resp["code"])
	assert.Equal(t, float64(1), resp["remaining"])
	assert.Equal(t, "not enough seats available. Only 1 seats left", resp["message"])

	w, resp = s.do(t, http.MethodGet, "/api/v1/rides/"+ride.ID.String(), token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), resp["available_seats"])
}

func TestCreateBooking_Errors(t *testing.T) {
	s := newTestServer(t, false)
	ride := s.seedRide(t, 3)
	token := s.token(t, uuid.New(), jwt.RolePassenger)

	tests := []struct {
		name           string
		path           string
		token          string
		body           interface{}
		expectedStatus int
		expectedCode   string
	}{
		{"no token", bookingsPath(ride.ID), "", gin.H{"seats": 1}, http.StatusUnauthorized, "MISSING_AUTH_HEADER"},
		{"bad ride id", "/api/v1/rides/not-a-uuid/bookings", token, gin.H{"seats": 1}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"zero seats", bookingsPath(ride.ID), token, gin.H{"seats": 0}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"too many seats", bookingsPath(ride.ID), token, gin.H{"seats": 11}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown ride", bookingsPath(uuid.New()), token, gin.H{"seats": 1}, http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := s.do(t, http.MethodPost, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectedCode, resp["code"])
		})
	}
}

func TestConfirmBooking_OTP(t *testing.T) {
	s := newTestServer(t, true)
	ride := s.seedRide(t, 3)
	passengerID := uuid.New()
	token := s.token(t, passengerID, jwt.RolePassenger)

	w, resp := s.do(t, http.MethodPost, bookingsPath(ride.ID), token, gin.H{"seats": 2})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "pending", bookingField(t, resp, "status"))
	code, ok := resp["confirmation_code"].(string)
	require.True(t, ok)
	bookingID := bookingField(t, resp, "id").(string)
	confirmPath := "/api/v1/bookings/" + bookingID + "/confirm"

	w, resp = s.do(t, http.MethodPost, confirmPath, token, gin.H{"code": "wrong!"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "INVALID_CODE", resp["code"])

	other := s.token(t, uuid.New(), jwt.RolePassenger)
	w, resp = s.do(t, http.MethodPost, confirmPath, other, gin.H{"code": code})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "UNAUTHORIZED", resp["code"])

	w, resp = s.do(t, http.MethodPost, confirmPath, token, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp = s.do(t, http.MethodPost, confirmPath, token, gin.H{"code": code})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "confirmed", resp["status"])
	assert.Equal(t, true, resp["is_verified"])
	assert.NotContains(t, resp, "confirmation_code")
}

func TestConfirmBooking_DirectMode(t *testing.T) {
	s := newTestServer(t, false)
	ride := s.seedRide(t, 3)
	token := s.token(t, uuid.New(), jwt.RolePassenger)

	_, resp := s.do(t, http.MethodPost, bookingsPath(ride.ID), token, gin.H{"seats": 1})
	bookingID := bookingField(t, resp, "id").(string)

	w, resp := s.do(t, http.MethodPost, "/api/v1/bookings/"+bookingID+"/confirm", token, gin.H{"code": "123456"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "CONFIRMATION_NOT_REQUIRED", resp["code"])
}

func TestCancelBooking(t *testing.T) {
	s := newTestServer(t, false)
	ride := s.seedRide(t, 3)
	token := s.token(t, uuid.New(), jwt.RolePassenger)

	_, resp := s.do(t, http.MethodPost, bookingsPath(ride.ID), token, gin.H{"seats": 3})
	bookingID := bookingField(t, resp, "id").(string)
	cancelPath := "/api/v1/bookings/" + bookingID + "/cancel"

	w, resp := s.do(t, http.MethodPost, cancelPath, token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cancelled", resp["status"])

	w, resp = s.do(t, http.MethodPost, cancelPath, token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cancelled", resp["status"])

	stored, err := s.store.GetRide(context.Background(), ride.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.AvailableSeats)

	w, resp = s.do(t, http.MethodPost, "/api/v1/bookings/"+uuid.NewString()+"/cancel", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", resp["code"])
}

func TestDriverEndpoints(t *testing.T) {
	s := newTestServer(t, true)
	ride := s.seedRide(t, 3)
	passenger := s.token(t, uuid.New(), jwt.RolePassenger)
	driver := s.token(t, ride.DriverID, jwt.RoleDriver)
	otherDriver := s.token(t, uuid.New(), jwt.RoleDriver)

	_, resp := s.do(t, http.MethodPost, bookingsPath(ride.ID), passenger, gin.H{"seats": 2})
	bookingID := bookingField(t, resp, "id").(string)
	approvePath := "/api/v1/bookings/" + bookingID + "/approve"

	w, resp := s.do(t, http.MethodPost, approvePath, passenger, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "INSUFFICIENT_PERMISSIONS", resp["code"])

	w, resp = s.do(t, http.MethodPost, approvePath, otherDriver, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "UNAUTHORIZED", resp["code"])

	w, resp = s.do(t, http.MethodPost, approvePath, driver, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "confirmed", resp["status"])

	w, resp = s.do(t, http.MethodGet, bookingsPath(ride.ID), driver, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), resp["count"])

	w, _ = s.do(t, http.MethodGet, bookingsPath(ride.ID), otherDriver, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, resp = s.do(t, http.MethodPost, "/api/v1/bookings/"+bookingID+"/reject", driver, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cancelled", resp["status"])

	w, resp = s.do(t, http.MethodPost, approvePath, driver, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_TRANSITION", resp["code"])
}

func TestListMyBookings_Empty(t *testing.T) {
	s := newTestServer(t, false)
	token := s.token(t, uuid.New(), jwt.RolePassenger)

	w, resp := s.do(t, http.MethodGet, "/api/v1/bookings", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{}, resp["bookings"])
	assert.Equal(t, float64(0), resp["count"])
}

func TestRideEndpoints(t *testing.T) {
	s := newTestServer(t, false)
	driverID := uuid.New()
	driver := s.token(t, driverID, jwt.RoleDriver)
	passenger := s.token(t, uuid.New(), jwt.RolePassenger)

	body := gin.H{
		"start_location": "Colombo",
		"end_location":   "Jaffna",
		"start_datetime": time.Now().Add(48 * time.Hour).Format(time.RFC3339),
		"seats":          4,
		"price_per_seat": 2500,
	}

	w, _ := s.do(t, http.MethodPost, "/api/v1/rides", passenger, body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, resp := s.do(t, http.MethodPost, "/api/v1/rides", driver, body)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, float64(4), resp["available_seats"])
	assert.Equal(t, driverID.String(), resp["driver_id"])
	ridePath := "/api/v1/rides/" + resp["id"].(string)

	past := gin.H{
		"start_location": "Colombo",
		"end_location":   "Jaffna",
		"start_datetime": time.Now().Add(-time.Hour).Format(time.RFC3339),
		"seats":          4,
	}
	w, resp = s.do(t, http.MethodPost, "/api/v1/rides", driver, past)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", resp["code"])

	w, _ = s.do(t, http.MethodDelete, ridePath, s.token(t, uuid.New(), jwt.RoleDriver), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, resp = s.do(t, http.MethodDelete, ridePath, driver, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Ride deleted", resp["message"])

	w, _ = s.do(t, http.MethodGet, ridePath, passenger, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConfirmBooking_RateLimited(t *testing.T) {
	s := newTestServer(t, true)
	ride := s.seedRide(t, 3)
	token := s.token(t, uuid.New(), jwt.RolePassenger)

	_, resp := s.do(t, http.MethodPost, bookingsPath(ride.ID), token, gin.H{"seats": 1})
	code := resp["confirmation_code"].(string)
	confirmPath := "/api/v1/bookings/" + bookingField(t, resp, "id").(string) + "/confirm"

	for i := 0; i < 4; i++ {
		w, _ := s.do(t, http.MethodPost, confirmPath, token, gin.H{"code": "guess"})
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	}

	w, resp := s.do(t, http.MethodPost, confirmPath, token, gin.H{"code": code})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMITED", resp["code"])
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestConfirmBooking_OtherUsersCannotExhaustAttempts(t *testing.T) {
	s := newTestServer(t, true)
	ride := s.seedRide(t, 3)
	passenger := s.token(t, uuid.New(), jwt.RolePassenger)
	driver := s.token(t, ride.DriverID, jwt.RoleDriver)

	_, resp := s.doFrom(t, "203.0.113.10", http.MethodPost, bookingsPath(ride.ID), passenger, gin.H{"seats": 1})
	code := resp["confirmation_code"].(string)
	confirmPath := "/api/v1/bookings/" + bookingField(t, resp, "id").(string) + "/confirm"

	for i := 0; i < 4; i++ {
		w, _ := s.doFrom(t, "198.51.100.7", http.MethodPost, confirmPath, driver, gin.H{"code": "000000"})
		require.Equal(t, http.StatusForbidden, w.Code)
	}
	w, _ := s.doFrom(t, "198.51.100.7", http.MethodPost, confirmPath, driver, gin.H{"code": "000000"})
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	w, resp = s.doFrom(t, "203.0.113.10", http.MethodPost, confirmPath, passenger, gin.H{"code": code})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "confirmed", resp["status"])
}
