package entity

import (
	"strings"
	"time"
)

// Tier is the subscription level of an account.
type Tier string

const (
	TierGuest   Tier = "guest"
	TierFree    Tier = "free"
	TierTrial   Tier = "trial"
	TierBasic   Tier = "basic"
	TierPro     Tier = "pro"
	TierAdmin   Tier = "admin"
	TierCreator Tier = "creator"
)

// ParseTier validates a tier name.
func ParseTier(value string) (Tier, bool) {
	t := Tier(strings.ToLower(strings.TrimSpace(value)))
	switch t {
	case TierGuest, TierFree, TierTrial, TierBasic, TierPro, TierAdmin, TierCreator:
		return t, true
	default:
		return "", false
	}
}

// DbUser represents a persisted account.
type DbUser struct {
	ID           uint        `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	Email        string      `gorm:"column:email;type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash string      `gorm:"column:password_hash;type:varchar(255);not null" json:"-"`
	DisplayName  string      `gorm:"column:display_name;type:varchar(255)" json:"display_name"`
	Tier         Tier        `gorm:"column:tier;type:varchar(32);index;not null;default:free" json:"tier"`
	IsActive     bool        `gorm:"column:is_active;not null;default:true" json:"is_active"`
	ImageCredits int         `gorm:"column:image_credits;not null;default:0" json:"image_credits"`
	VideoCredits int         `gorm:"column:video_credits;not null;default:0" json:"video_credits"`
	Credentials  Credentials `gorm:"embedded" json:"-"`
}

// TableName overrides default pluralised name.
func (DbUser) TableName() string {
	return "users"
}

// IsAdmin reports whether the account may use admin endpoints.
func (u *DbUser) IsAdmin() bool {
	return u != nil && u.Tier == TierAdmin
}

// UserSummary is a lightweight user description returned to clients.
type UserSummary struct {
	ID           uint      `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	Tier         Tier      `json:"tier"`
	IsActive     bool      `json:"is_active"`
	ImageCredits int       `json:"image_credits"`
	VideoCredits int       `json:"video_credits"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UserQuery supports listing users with pagination.
type UserQuery struct {
	BaseParams
	Tier    string `json:"tier" form:"tier" query:"tier"`
	Keyword string `json:"keyword" form:"keyword" query:"keyword"`
}

type AuthLoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthRegisterRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"display_name"`
}

type AuthResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      UserSummary `json:"user"`
}

type UserListResponse struct {
	Users []UserSummary `json:"users"`
	Meta  *Meta         `json:"meta"`
}

// TierUpdateRequest changes an account's tier; credits are reset to the
// tier's allotment unless KeepCredits is set.
type TierUpdateRequest struct {
	Tier        string `json:"tier" binding:"required"`
	KeepCredits bool   `json:"keep_credits"`
}

// CreditUpdateRequest sets or adjusts balances. Set wins over Delta.
type CreditUpdateRequest struct {
	ImageCredits *int `json:"image_credits"`
	VideoCredits *int `json:"video_credits"`
	ImageDelta   int  `json:"image_delta"`
	VideoDelta   int  `json:"video_delta"`
}

// CreditBalance is returned by the credits endpoint.
type CreditBalance struct {
	Tier         Tier `json:"tier"`
	ImageCredits int  `json:"image_credits"`
	VideoCredits int  `json:"video_credits"`
}
