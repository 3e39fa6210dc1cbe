package database

import "errors"

var (
	ErrNotFound        = errors.New("record not found")
	ErrDuplicateEmail  = errors.New("email already registered")
	ErrDuplicateReview = errors.New("review already exists for product")
)

// OrderSupportRepository owns users, orders, messages and the catalog.
// Every mutating method is a single atomic read-modify-write against the
// backing store.
type OrderSupportRepository interface {
	Ping() error
	Close() error

	// CreateUser grants admin to the new user when no admin exists yet.
	CreateUser(params CreateUserParams) (User, error)
	GetUserById(id int) (User, error)
	GetUserByEmail(email string) (User, error)
	SetUserAdmin(id int, isAdmin bool) (User, error)

	GetOrderById(id int) (Order, error)
	ListOrders() ([]Order, error)
	ListOrdersByUser(userId int) ([]Order, error)
	// CreateOrderForSession creates a paid order unless one already exists for
	// params.ExternalSessionId, in which case the existing order is returned
	// and created is false.
	CreateOrderForSession(params CreateOrderParams) (order Order, created bool, err error)

	CreateMessage(params CreateMessageParams) (Message, error)
	// GetMessages returns the order's messages oldest first, ties in
	// insertion order.
	GetMessages(orderId int) ([]Message, error)

	ListProducts() ([]Product, error)
	GetProductById(id int) (Product, error)
	CreateReview(params CreateReviewParams) (Review, error)
	ListReviews(productId int) ([]Review, error)
}

var (
	_ OrderSupportRepository = (*Ledger)(nil)
	_ OrderSupportRepository = (*PgOrderSupportRepository)(nil)
)
