package types

import (
	"time"
)

const (
	OrderStatusPending = "pending"
	OrderStatusPaid    = "paid"
)

const (
	SenderRoleUser  = "user"
	SenderRoleAdmin = "admin"
)

// Principal is the verified identity attached to a request or connection.
type Principal struct {
	Id      int  `json:"id"`
	IsAdmin bool `json:"is_admin"`
}

// Role returns the sender role recorded on messages written by p.
func (p Principal) Role() string {
	if p.IsAdmin {
		return SenderRoleAdmin
	}
	return SenderRoleUser
}

type User struct {
	Id        int       `json:"id"`
	Email     string    `json:"email"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

func (u User) Principal() Principal {
	return Principal{Id: u.Id, IsAdmin: u.IsAdmin}
}

type Order struct {
	Id                int       `json:"id"`
	ExternalSessionId string    `json:"external_session_id,omitempty"`
	UserId            *int      `json:"user_id"`
	UserEmail         string    `json:"user_email"`
	AmountTotal       int64     `json:"amount_total"`
	Currency          string    `json:"currency"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
}

type Message struct {
	Id         int       `json:"id"`
	OrderId    int       `json:"order_id"`
	SenderId   int       `json:"sender_id"`
	SenderRole string    `json:"sender_role"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

type Product struct {
	Id          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents"`
	Currency    string `json:"currency"`
}

type Review struct {
	Id        int       `json:"id"`
	ProductId int       `json:"product_id"`
	AuthorId  int       `json:"author_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}
