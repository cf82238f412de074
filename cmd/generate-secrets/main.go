package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/matcha-bookable/bookable-bot/internal/utils"
	"github.com/matcha-bookable/bookable-bot/pkg/jwt"
)

func main() {
	var operator string
	var expiry time.Duration
	flag.StringVar(&operator, "operator", "", "mint an admin API token for this operator using JWT_SECRET")
	flag.DurationVar(&expiry, "expiry", 24*time.Hour, "lifetime of the minted operator token")
	flag.Parse()

	if operator != "" {
		mintOperatorToken(operator, expiry)
		return
	}

	fmt.Println("===========================================")
	fmt.Println("Secret Generator for the Bookable Bot")
	fmt.Println("===========================================")
	fmt.Println()

	webhookBearer, jwtSecret, err := utils.GenerateServiceSecrets()
	if err != nil {
		log.Fatalf("Failed to generate secrets: %v", err)
	}

	fmt.Println("Secrets generated successfully!")
	fmt.Println()
	fmt.Println("Add these to your .env file:")
	fmt.Println()
	fmt.Printf("WEBHOOK_BEARER=%s\n", webhookBearer)
	fmt.Printf("JWT_SECRET=%s\n", jwtSecret)
	fmt.Println()
	fmt.Println("IMPORTANT: Keep these secrets safe and never commit them to version control!")
	fmt.Println("===========================================")
}

func mintOperatorToken(operator string, expiry time.Duration) {
	_ = godotenv.Load()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is not set")
	}

	token, err := jwt.NewService(secret, expiry).GenerateOperatorToken(operator)
	if err != nil {
		log.Fatalf("Failed to mint operator token: %v", err)
	}

	fmt.Println(token)
}
