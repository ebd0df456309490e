package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/vogiaan1904/ticketbottle-allocation/internal/errors"
	"github.com/vogiaan1904/ticketbottle-allocation/internal/models"
)

// OfferTokenIssuer signs short-lived tokens that prove the bearer holds an
// offer. The checkout UI passes the token back with the payment so the
// finalization webhook can cross-check the entry.
type OfferTokenIssuer struct {
	secret []byte
}

func NewOfferTokenIssuer(secret string) *OfferTokenIssuer {
	return &OfferTokenIssuer{secret: []byte(secret)}
}

func (i *OfferTokenIssuer) Generate(entry *models.WaitlistEntry) (string, error) {
	if entry.OfferExpiresAt == nil {
		return "", fmt.Errorf("entry %s has no offer deadline", entry.ID)
	}

	claims := jwt.MapClaims{
		"entry_id": entry.ID,
		"user_id":  entry.UserID,
		"event_id": entry.EventID,
		"exp":      entry.OfferExpiresAt.Unix(),
		"iat":      time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign offer token: %w", err)
	}

	return tokenStr, nil
}

// Validate returns the entry id carried by a valid token.
func (i *OfferTokenIssuer) Validate(tokenStr string) (string, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperrors.ErrOfferTokenInvalid
		}
		return i.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrOfferTokenInvalid, err)
	}
	if !parsed.Valid {
		return "", apperrors.ErrOfferTokenInvalid
	}

	entryID, ok := claims["entry_id"].(string)
	if !ok || entryID == "" {
		return "", apperrors.ErrOfferTokenInvalid
	}

	return entryID, nil
}
