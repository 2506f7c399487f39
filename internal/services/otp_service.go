package services

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// OTPLength is the length of the OTP code
	OTPLength = 6

	// otpModulus bounds generated codes to [0, 999999]
	otpModulus = 1000000
)

// OTPService generates and checks booking confirmation codes.
// Codes do not expire; they live as long as the pending booking holding them.
type OTPService struct {
	random io.Reader
}

// NewOTPService creates a new OTP service reading from crypto/rand
func NewOTPService() *OTPService {
	return &OTPService{random: rand.Reader}
}

// NewOTPServiceWithReader creates an OTP service reading from r
func NewOTPServiceWithReader(r io.Reader) *OTPService {
	return &OTPService{random: r}
}

// Generate produces a 6-digit, zero-padded numeric code from four random
// bytes reduced modulo 10^6
func (s *OTPService) Generate() (string, error) {
	var buf [4]byte
	if _, err := io.ReadFull(s.random, buf[:]); err != nil {
		return "", fmt.Errorf("failed to generate OTP: %w", err)
	}

	n := binary.BigEndian.Uint32(buf[:]) % otpModulus
	return FormatOTP(n), nil
}

// Verify reports whether the supplied code matches the expected one
func (s *OTPService) Verify(expected, supplied string) bool {
	return expected != "" && expected == supplied
}

// FormatOTP renders n as a zero-padded 6-digit code
func FormatOTP(n uint32) string {
	return fmt.Sprintf("%0*d", OTPLength, n%otpModulus)
}
