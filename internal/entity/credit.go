package entity

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInsufficientCredits is returned when a conditional debit finds no balance.
var ErrInsufficientCredits = errors.New("insufficient credits")

// CreditCounter names one of the two per-account balances.
type CreditCounter string

const (
	CounterImage CreditCounter = "image"
	CounterVideo CreditCounter = "video"
)

// ParseCreditCounter validates a configured counter name.
func ParseCreditCounter(value string) (CreditCounter, error) {
	switch CreditCounter(strings.ToLower(strings.TrimSpace(value))) {
	case CounterImage:
		return CounterImage, nil
	case CounterVideo:
		return CounterVideo, nil
	default:
		return "", fmt.Errorf("unknown credit counter %q", value)
	}
}

// Column returns the users table column backing the counter.
func (c CreditCounter) Column() string {
	if c == CounterVideo {
		return "video_credits"
	}
	return "image_credits"
}

// Balance reads the counter from an account.
func (c CreditCounter) Balance(user *DbUser) int {
	if user == nil {
		return 0
	}
	if c == CounterVideo {
		return user.VideoCredits
	}
	return user.ImageCredits
}

// PlanAllotment is the credit grant attached to a tier.
type PlanAllotment struct {
	ImageCredits int `json:"image_credits"`
	VideoCredits int `json:"video_credits"`
}

// PlanAllotments lists the credit grant per tier on signup, upgrade and renewal.
var PlanAllotments = map[Tier]PlanAllotment{
	TierGuest:   {},
	TierFree:    {},
	TierTrial:   {ImageCredits: 3, VideoCredits: 5},
	TierBasic:   {ImageCredits: 50, VideoCredits: 100},
	TierCreator: {ImageCredits: 50, VideoCredits: 100},
	TierPro:     {ImageCredits: 200, VideoCredits: 500},
	TierAdmin:   {ImageCredits: 999999, VideoCredits: 999999},
}

// AllotmentFor returns the grant for a tier, zero when unknown.
func AllotmentFor(t Tier) PlanAllotment {
	return PlanAllotments[t]
}
