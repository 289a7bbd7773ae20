package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// OTPDigits is the length of one-time codes sent by email and SMS.
const OTPDigits = 6

var otpModulus = big.NewInt(1_000_000)

// GenerateOTP returns a uniformly random zero-padded numeric code.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpModulus)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", OTPDigits, n.Int64()), nil
}

func (s *Service) HashOTP(code string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.otpCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (s *Service) CheckOTP(hash, code string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil
}
