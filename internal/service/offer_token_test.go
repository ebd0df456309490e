package service

import (
	"errors"
	"testing"
	"time"

	apperrors "github.com/vogiaan1904/ticketbottle-allocation/internal/errors"
	"github.com/vogiaan1904/ticketbottle-allocation/internal/models"
)

func offeredEntry(deadline time.Time) *models.WaitlistEntry {
	return &models.WaitlistEntry{
		ID:             "entry-1",
		EventID:        "ev-1",
		UserID:         "user-1",
		Status:         models.EntryStatusOffered,
		OfferExpiresAt: &deadline,
	}
}

func TestOfferTokenRoundTrip(t *testing.T) {
	issuer := NewOfferTokenIssuer("secret")

	token, err := issuer.Generate(offeredEntry(time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	entryID, err := issuer.Validate(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if entryID != "entry-1" {
		t.Errorf("entry id = %s, want entry-1", entryID)
	}
}

func TestOfferTokenRejectsWrongSecret(t *testing.T) {
	token, err := NewOfferTokenIssuer("secret-a").Generate(offeredEntry(time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	_, err = NewOfferTokenIssuer("secret-b").Validate(token)
	if !errors.Is(err, apperrors.ErrOfferTokenInvalid) {
		t.Fatalf("err = %v, want ErrOfferTokenInvalid", err)
	}
}

func TestOfferTokenExpiresWithOffer(t *testing.T) {
	issuer := NewOfferTokenIssuer("secret")

	token, err := issuer.Generate(offeredEntry(time.Now().Add(-time.Minute)))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	_, err = issuer.Validate(token)
	if !errors.Is(err, apperrors.ErrOfferTokenInvalid) {
		t.Fatalf("err = %v, want ErrOfferTokenInvalid", err)
	}
}

func TestOfferTokenRequiresDeadline(t *testing.T) {
	entry := offeredEntry(time.Time{})
	entry.OfferExpiresAt = nil

	if _, err := NewOfferTokenIssuer("secret").Generate(entry); err == nil {
		t.Fatal("generate without deadline should fail")
	}
}

func TestOfferTokenRejectsGarbage(t *testing.T) {
	_, err := NewOfferTokenIssuer("secret").Validate("not-a-token")
	if !errors.Is(err, apperrors.ErrOfferTokenInvalid) {
		t.Fatalf("err = %v, want ErrOfferTokenInvalid", err)
	}
}
