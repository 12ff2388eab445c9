package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	codeAlphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	minCodeLength = 6
	maxCodeLength = 8
)

var codePattern = regexp.MustCompile(`^[A-Za-z0-9]{6,8}$`)

// GenerateCode возвращает случайный код длиной 6, 7 или 8 символов.
// Длина и каждый символ выбираются равномерно.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(maxCodeLength-minCodeLength+1))
	if err != nil {
		return "", fmt.Errorf("failed to pick code length: %w", err)
	}

	code, err := gonanoid.Generate(codeAlphabet, minCodeLength+int(n.Int64()))
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return code, nil
}
