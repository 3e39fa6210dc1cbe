package database

import "time"

type User struct {
	Id           int       `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
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

type CreateUserParams struct {
	Email        string
	PasswordHash string
}

type CreateOrderParams struct {
	ExternalSessionId string
	UserId            *int
	UserEmail         string
	AmountTotal       int64
	Currency          string
}

type CreateMessageParams struct {
	OrderId    int
	SenderId   int
	SenderRole string
	Text       string
}

type CreateReviewParams struct {
	ProductId int
	AuthorId  int
	Rating    int
	Comment   string
}
