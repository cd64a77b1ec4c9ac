package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Book condition values
const (
	BookConditionNew     = "NEW"
	BookConditionLikeNew = "LIKE_NEW"
	BookConditionGood    = "GOOD"
	BookConditionFair    = "FAIR"
)

// Book status values
const (
	BookStatusAvailable = "AVAILABLE"
	BookStatusSold      = "SOLD"
)

// PlatformFeePercent is the markup applied on top of the seller's price
const PlatformFeePercent = 10

// Book represents a used-book listing
type Book struct {
	ID            string         `gorm:"primaryKey" json:"id"`
	Title         string         `gorm:"not null" json:"title"`
	Author        string         `gorm:"not null" json:"author"`
	Condition     string         `gorm:"not null" json:"condition"` // NEW, LIKE_NEW, GOOD, FAIR
	Description   string         `gorm:"type:text;not null" json:"description"`
	SellerPrice   int            `gorm:"not null;check:seller_price > 0" json:"seller_price"`
	PlatformPrice int            `gorm:"not null" json:"platform_price"` // frozen at creation, never recomputed
	ImageURL      string         `json:"image_url,omitempty"`
	Status        string         `gorm:"not null;default:'AVAILABLE';index" json:"status"` // AVAILABLE, SOLD
	SellerID      string         `gorm:"not null;index" json:"seller_id"`
	Seller        User           `gorm:"foreignKey:SellerID" json:"seller"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Book model
func (Book) TableName() string {
	return "books"
}

// BeforeCreate assigns a UUID primary key when none is set
func (b *Book) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// ComputePlatformPrice derives the buyer-facing price from the seller's
// price: seller price plus the platform fee, rounded up to a whole unit.
// Integer math keeps ceil(price * 1.10) exact where float math drifts.
func ComputePlatformPrice(sellerPrice int) int {
	return (sellerPrice*(100+PlatformFeePercent) + 99) / 100
}

// IsValidBookCondition reports whether the given condition is a known value
func IsValidBookCondition(condition string) bool {
	switch condition {
	case BookConditionNew, BookConditionLikeNew, BookConditionGood, BookConditionFair:
		return true
	}
	return false
}
