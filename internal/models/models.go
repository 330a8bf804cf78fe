package models

import (
	"time"
)

const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
)

const (
	OrderStatusPending   = "pending"
	OrderStatusConfirmed = "confirmed"
	OrderStatusShipped   = "shipped"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
)

const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusRefunded = "refunded"
)

const (
	PaymentCashOnDelivery = "cash_on_delivery"
	PaymentOnline         = "online"
)

type User struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string `gorm:"unique;not null"          json:"username"`
	PasswordHash string `gorm:"not null"                 json:"-"`
	Role         string `gorm:"not null;default:buyer"   json:"role"`
}

type RefreshToken struct {
	ID        uint   `gorm:"primaryKey"      json:"id"`
	Token     string `gorm:"unique;not null" json:"token"`
	UserID    uint   `gorm:"index;not null"  json:"user_id"`
	Role      string `gorm:"not null"        json:"role"`
	ExpiresAt int64  `gorm:"not null"        json:"expires_at"`
	Revoked   bool   `gorm:"default:false"   json:"revoked"`
}

type Product struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SellerID      uint      `gorm:"index;not null"           json:"seller_id"`
	Name          string    `gorm:"not null"                 json:"name"`
	Description   string    `json:"description"`
	Price         float64   `gorm:"not null"                 json:"price"`
	StockQuantity int       `gorm:"not null;default:0"       json:"stock_quantity"`
	IsActive      bool      `gorm:"not null;default:true"    json:"is_active"`
	CreatedAt     time.Time `gorm:"autoCreateTime"           json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"           json:"updated_at"`
}

// CartItem holds one row per buyer+product; quantity is merged on repeat adds.
type CartItem struct {
	ID        uint `gorm:"primaryKey"                                       json:"id"`
	UserID    uint `gorm:"not null;uniqueIndex:idx_cart_user_product"       json:"user_id"`
	ProductID uint `gorm:"not null;uniqueIndex:idx_cart_user_product"       json:"product_id"`
	Quantity  uint `gorm:"default:1;check:quantity>0"                      json:"quantity"`
}

// Order is one seller's share of a checkout: checkout creates exactly one
// order per distinct seller present in the cart.
type Order struct {
	ID              uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNumber     string    `gorm:"unique;not null"          json:"order_number"`
	BuyerID         uint      `gorm:"index;not null"           json:"buyer_id"`
	SellerID        uint      `gorm:"index;not null"           json:"seller_id"`
	TotalAmount     float64   `gorm:"not null"                 json:"total_amount"`
	Status          string    `gorm:"not null;default:pending" json:"status"`
	PaymentStatus   string    `gorm:"not null;default:pending" json:"payment_status"`
	PaymentMethod   string    `gorm:"not null"                 json:"payment_method"`
	ShippingAddress string    `gorm:"not null"                 json:"shipping_address"`
	BillingAddress  string    `gorm:"not null"                 json:"billing_address"`
	CreatedAt       time.Time `gorm:"autoCreateTime"           json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime"           json:"updated_at"`

	Items []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
}

type OrderItem struct {
	ID           uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID      uint    `gorm:"index;not null"           json:"order_id"`
	ProductID    uint    `gorm:"not null"                 json:"product_id"`
	Quantity     uint    `gorm:"not null"                 json:"quantity"`
	PricePerUnit float64 `gorm:"not null"                 json:"price_per_unit"`
	TotalPrice   float64 `gorm:"not null"                 json:"total_price"`
}

// ChatThread is a buyer<->seller conversation, optionally about a product.
type ChatThread struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"                          json:"id"`
	BuyerID   uint      `gorm:"not null;uniqueIndex:idx_thread_participants"      json:"buyer_id"`
	SellerID  uint      `gorm:"not null;uniqueIndex:idx_thread_participants"      json:"seller_id"`
	ProductID *uint     `gorm:"uniqueIndex:idx_thread_participants"               json:"product_id,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime"                                    json:"created_at"`
}

type ChatMessage struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ThreadID  uint      `gorm:"index;not null"           json:"thread_id"`
	SenderID  uint      `gorm:"not null"                 json:"sender_id"`
	Body      string    `gorm:"not null"                 json:"body"`
	CreatedAt time.Time `gorm:"autoCreateTime"           json:"created_at"`
}

func ValidOrderTransition(from, to string) bool {
	switch from {
	case OrderStatusPending:
		return to == OrderStatusConfirmed || to == OrderStatusCancelled
	case OrderStatusConfirmed:
		return to == OrderStatusShipped || to == OrderStatusCancelled
	case OrderStatusShipped:
		return to == OrderStatusDelivered
	default:
		return false
	}
}
