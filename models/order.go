package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Order status values. An order only ever moves forward:
//
//	PENDING_PAYMENT -> PAYMENT_CONFIRMED -> COMPLETED
//
// PAYMENT_VERIFICATION_PENDING sits between PENDING_PAYMENT and
// PAYMENT_CONFIRMED but is only reachable through manual/administrative
// paths; the buyer's mark_paid action confirms payment directly.
// CANCELLED is declared for the data model but no transition produces it.
const (
	OrderStatusPendingPayment             = "PENDING_PAYMENT"
	OrderStatusPaymentVerificationPending = "PAYMENT_VERIFICATION_PENDING"
	OrderStatusPaymentConfirmed           = "PAYMENT_CONFIRMED"
	OrderStatusCompleted                  = "COMPLETED"
	OrderStatusCancelled                  = "CANCELLED"
)

// Order binds one buyer, one seller, and one book through the
// payment/payout lifecycle. Prices are copied from the book at creation
// time so later listing edits cannot change what was agreed.
type Order struct {
	ID                 string     `gorm:"primaryKey" json:"id"`
	BookID             string     `gorm:"not null;index" json:"book_id"`
	Book               Book       `gorm:"foreignKey:BookID" json:"book"`
	BuyerID            string     `gorm:"not null;index" json:"buyer_id"`
	Buyer              User       `gorm:"foreignKey:BuyerID" json:"buyer"`
	SellerID           string     `gorm:"not null;index" json:"seller_id"`
	Seller             User       `gorm:"foreignKey:SellerID" json:"seller"`
	SellerPrice        int        `gorm:"not null" json:"seller_price"`
	PlatformPrice      int        `gorm:"not null" json:"platform_price"`
	Status             string     `gorm:"not null;default:'PENDING_PAYMENT';index" json:"status"`
	PaymentMarkedAt    *time.Time `json:"payment_marked_at"`
	PaymentConfirmedAt *time.Time `json:"payment_confirmed_at"`
	PayoutSentAt       *time.Time `json:"payout_sent_at"`
	ChatThreadID       string     `gorm:"-" json:"chat_thread_id,omitempty"` // computed field, filled from chat_threads on read
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// TableName specifies the table name for the Order model
func (Order) TableName() string {
	return "orders"
}

// BeforeCreate assigns a UUID primary key when none is set
func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}

// IsParty reports whether the given user is the order's buyer or seller
func (o *Order) IsParty(userID string) bool {
	return o.BuyerID == userID || o.SellerID == userID
}

// ChatEligibleStatuses lists the order statuses for which a chat thread
// should exist. Used by thread backfill paths.
var ChatEligibleStatuses = []string{
	OrderStatusPaymentVerificationPending,
	OrderStatusPaymentConfirmed,
	OrderStatusCompleted,
}

// OrderStatusAllowsChat reports whether buyer/seller messaging is open
// for an order in the given status. Chat unlocks once payment is
// confirmed and stays open after completion.
func OrderStatusAllowsChat(status string) bool {
	return status == OrderStatusPaymentConfirmed || status == OrderStatusCompleted
}
