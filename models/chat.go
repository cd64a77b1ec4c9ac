package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChatMessage content length limit, in characters after trimming
const MaxChatMessageLength = 1000

// ChatThread is the 1:1 messaging channel scoped to one order. Buyer and
// seller ids are denormalized from the order so access checks need no join.
type ChatThread struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	OrderID   string    `gorm:"uniqueIndex;not null" json:"order_id"`
	Order     Order     `gorm:"foreignKey:OrderID" json:"order"`
	BuyerID   string    `gorm:"not null;index" json:"buyer_id"`
	Buyer     User      `gorm:"foreignKey:BuyerID" json:"buyer"`
	SellerID  string    `gorm:"not null;index" json:"seller_id"`
	Seller    User      `gorm:"foreignKey:SellerID" json:"seller"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for the ChatThread model
func (ChatThread) TableName() string {
	return "chat_threads"
}

// BeforeCreate assigns a UUID primary key when none is set
func (t *ChatThread) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// AccessibleBy reports whether the given user may read this thread:
// the thread's buyer, its seller, or any admin.
func (t *ChatThread) AccessibleBy(userID string, isAdmin bool) bool {
	return t.BuyerID == userID || t.SellerID == userID || isAdmin
}

// ChatMessage is one immutable message within a thread
type ChatMessage struct {
	ID        string     `gorm:"primaryKey" json:"id"`
	ThreadID  string     `gorm:"not null;index" json:"thread_id"`
	Thread    ChatThread `gorm:"foreignKey:ThreadID" json:"-"`
	SenderID  string     `gorm:"not null;index" json:"sender_id"`
	Sender    User       `gorm:"foreignKey:SenderID" json:"sender"`
	Content   string     `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time  `json:"created_at"`
}

// TableName specifies the table name for the ChatMessage model
func (ChatMessage) TableName() string {
	return "chat_messages"
}

// BeforeCreate assigns a UUID primary key when none is set
func (m *ChatMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// MergeMessages reconciles two message lists into one, deduplicating by
// message id and sorting by creation time. The live push stream and the
// polling fallback can both deliver the same message; every receiving
// side merges through this function so each message renders exactly once.
func MergeMessages(existing, incoming []ChatMessage) []ChatMessage {
	seen := make(map[string]bool, len(existing))
	merged := make([]ChatMessage, 0, len(existing)+len(incoming))

	for _, m := range existing {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		merged = append(merged, m)
	}
	for _, m := range incoming {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		merged = append(merged, m)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.Before(merged[j].CreatedAt)
	})

	return merged
}
