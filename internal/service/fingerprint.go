package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"coachbook/internal/models"
)

// Fingerprint derives the creation dedup key. Two requests from the same
// requester for the same coach, window and location hash identically, so an
// accidental resubmission lands on the existing booking instead of a new row.
func Fingerprint(requesterID int64, req *models.CreateBookingRequest) string {
	payload := fmt.Sprintf("%d|%d|%s|%s|%s",
		requesterID,
		req.CoachID,
		req.StartAt.UTC().Format(time.RFC3339),
		req.EndAt.UTC().Format(time.RFC3339),
		req.Location,
	)
	hash := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(hash[:])
}
