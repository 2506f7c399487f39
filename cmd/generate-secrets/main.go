package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/ridefusion/booking-backend/internal/utils"
	"github.com/ridefusion/booking-backend/pkg/jwt"
)

func main() {
	secretFlag := flag.String("secret", "", "sign a development token with this secret instead of generating one")
	roleFlag := flag.String("role", jwt.RolePassenger, "role for the development token (passenger or driver)")
	flag.Parse()

	fmt.Println("===========================================")
	fmt.Println("JWT Secret Generator for RideFusion Booking")
	fmt.Println("===========================================")
	fmt.Println()

	secret := *secretFlag
	if secret == "" {
		generated, err := utils.GenerateJWTSecret()
		if err != nil {
			log.Fatalf("Failed to generate secret: %v", err)
		}
		secret = generated

		fmt.Println("Add this to your .env file:")
		fmt.Println()
		fmt.Printf("JWT_SECRET=%s\n", secret)
		fmt.Println()
	}

	// A development token helps exercising the API locally
	userID := uuid.New()
	token, err := jwt.NewService(secret, 24*time.Hour).GenerateAccessToken(userID, []string{*roleFlag})
	if err != nil {
		log.Fatalf("Failed to sign development token: %v", err)
	}

	fmt.Printf("Development %s token (user %s, valid 24h):\n\n%s\n\n", *roleFlag, userID, token)
	fmt.Println("IMPORTANT: Keep secrets safe and never commit them to version control!")
	fmt.Println("===========================================")
}
