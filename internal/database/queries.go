package database

import (
	"database/sql"
	"time"
)

const (
	userColumns    = "id, email, password_hash, is_admin, created_at"
	orderColumns   = "id, COALESCE(external_session_id, ''), user_id, user_email, amount_total, currency, status, created_at"
	messageColumns = "id, order_id, sender_id, sender_role, text, created_at"
)

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (User, error) {
	var u User
	err := row.Scan(&u.Id, &u.Email, &u.PasswordHash, &u.IsAdmin, &u.CreatedAt)
	return u, err
}

func scanOrder(row scanner) (Order, error) {
	var (
		o      Order
		userId sql.NullInt64
	)
	err := row.Scan(&o.Id, &o.ExternalSessionId, &userId, &o.UserEmail, &o.AmountTotal, &o.Currency, &o.Status, &o.CreatedAt)
	if userId.Valid {
		id := int(userId.Int64)
		o.UserId = &id
	}
	return o, err
}

func scanMessage(row scanner) (Message, error) {
	var m Message
	err := row.Scan(&m.Id, &m.OrderId, &m.SenderId, &m.SenderRole, &m.Text, &m.CreatedAt)
	return m, err
}

func (db *PgOrderSupportRepository) CreateUser(params CreateUserParams) (User, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return User{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	// serialize the admin bootstrap check against concurrent registrations
	if _, err = tx.Exec("LOCK TABLE users IN SHARE ROW EXCLUSIVE MODE"); err != nil {
		return User{}, err
	}

	var hasAdmin bool
	if err = tx.QueryRow("SELECT EXISTS (SELECT 1 FROM users WHERE is_admin)").Scan(&hasAdmin); err != nil {
		return User{}, err
	}

	user, err := scanUser(tx.QueryRow(
		"INSERT INTO users (email, password_hash, is_admin, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING "+userColumns,
		normalizeEmail(params.Email),
		params.PasswordHash,
		!hasAdmin,
		time.Now().UTC(),
	))
	if err != nil {
		if pqErrorName(err) == "unique_violation" {
			return User{}, ErrDuplicateEmail
		}
		return User{}, err
	}

	if err = tx.Commit(); err != nil {
		return User{}, err
	}

	return user, nil
}

func (db *PgOrderSupportRepository) GetUserById(id int) (User, error) {
	user, err := scanUser(db.conn.QueryRow("SELECT "+userColumns+" FROM users WHERE id = $1", id))
	return user, notFound(err)
}

func (db *PgOrderSupportRepository) GetUserByEmail(email string) (User, error) {
	user, err := scanUser(db.conn.QueryRow(
		"SELECT "+userColumns+" FROM users WHERE lower(email) = $1 LIMIT 1",
		normalizeEmail(email),
	))
	return user, notFound(err)
}

func (db *PgOrderSupportRepository) SetUserAdmin(id int, isAdmin bool) (User, error) {
	user, err := scanUser(db.conn.QueryRow(
		"UPDATE users SET is_admin = $2 WHERE id = $1 RETURNING "+userColumns,
		id,
		isAdmin,
	))
	return user, notFound(err)
}

func (db *PgOrderSupportRepository) GetOrderById(id int) (Order, error) {
	order, err := scanOrder(db.conn.QueryRow("SELECT "+orderColumns+" FROM orders WHERE id = $1", id))
	return order, notFound(err)
}

func (db *PgOrderSupportRepository) listOrders(query string, args ...any) ([]Order, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}

	return orders, rows.Err()
}

func (db *PgOrderSupportRepository) ListOrders() ([]Order, error) {
	return db.listOrders("SELECT " + orderColumns + " FROM orders ORDER BY id")
}

func (db *PgOrderSupportRepository) ListOrdersByUser(userId int) ([]Order, error) {
	return db.listOrders("SELECT "+orderColumns+" FROM orders WHERE user_id = $1 ORDER BY id", userId)
}

func (db *PgOrderSupportRepository) CreateOrderForSession(params CreateOrderParams) (Order, bool, error) {
	var userId sql.NullInt64
	if params.UserId != nil {
		userId = sql.NullInt64{Int64: int64(*params.UserId), Valid: true}
	}

	order, err := scanOrder(db.conn.QueryRow(
		"INSERT INTO orders (external_session_id, user_id, user_email, amount_total, currency, status, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7) "+
			"ON CONFLICT (external_session_id) DO NOTHING RETURNING "+orderColumns,
		params.ExternalSessionId,
		userId,
		params.UserEmail,
		params.AmountTotal,
		params.Currency,
		OrderStatusPaid,
		time.Now().UTC(),
	))
	if err == nil {
		return order, true, nil
	}
	if err != sql.ErrNoRows {
		return Order{}, false, err
	}

	// conflict: the order already exists
	order, err = scanOrder(db.conn.QueryRow(
		"SELECT "+orderColumns+" FROM orders WHERE external_session_id = $1",
		params.ExternalSessionId,
	))
	if err != nil {
		return Order{}, false, err
	}

	return order, false, nil
}

func (db *PgOrderSupportRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	msg, err := scanMessage(db.conn.QueryRow(
		"INSERT INTO messages (order_id, sender_id, sender_role, text, created_at) "+
			"VALUES ($1, $2, $3, $4, GREATEST(now(), (SELECT MAX(created_at) FROM messages WHERE order_id = $1))) "+
			"RETURNING "+messageColumns,
		params.OrderId,
		params.SenderId,
		params.SenderRole,
		params.Text,
	))
	if pqErrorName(err) == "foreign_key_violation" {
		return Message{}, ErrNotFound
	}

	return msg, err
}

func (db *PgOrderSupportRepository) GetMessages(orderId int) ([]Message, error) {
	rows, err := db.conn.Query(
		"SELECT "+messageColumns+" FROM messages WHERE order_id = $1 ORDER BY created_at, id",
		orderId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

func (db *PgOrderSupportRepository) ListProducts() ([]Product, error) {
	rows, err := db.conn.Query("SELECT id, name, description, price_cents, currency FROM products ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]Product, 0)
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.Id, &p.Name, &p.Description, &p.PriceCents, &p.Currency); err != nil {
			return nil, err
		}
		products = append(products, p)
	}

	return products, rows.Err()
}

func (db *PgOrderSupportRepository) GetProductById(id int) (Product, error) {
	var p Product
	err := db.conn.QueryRow(
		"SELECT id, name, description, price_cents, currency FROM products WHERE id = $1",
		id,
	).Scan(&p.Id, &p.Name, &p.Description, &p.PriceCents, &p.Currency)

	return p, notFound(err)
}

func (db *PgOrderSupportRepository) CreateReview(params CreateReviewParams) (Review, error) {
	var r Review
	err := db.conn.QueryRow(
		"INSERT INTO reviews (product_id, author_id, rating, comment, created_at) "+
			"VALUES ($1, $2, $3, $4, $5) RETURNING id, product_id, author_id, rating, comment, created_at",
		params.ProductId,
		params.AuthorId,
		params.Rating,
		params.Comment,
		time.Now().UTC(),
	).Scan(&r.Id, &r.ProductId, &r.AuthorId, &r.Rating, &r.Comment, &r.CreatedAt)

	switch pqErrorName(err) {
	case "unique_violation":
		return Review{}, ErrDuplicateReview
	case "foreign_key_violation":
		return Review{}, ErrNotFound
	}

	return r, err
}

func (db *PgOrderSupportRepository) ListReviews(productId int) ([]Review, error) {
	rows, err := db.conn.Query(
		"SELECT id, product_id, author_id, rating, comment, created_at FROM reviews WHERE product_id = $1 ORDER BY id",
		productId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reviews := make([]Review, 0)
	for rows.Next() {
		var r Review
		if err := rows.Scan(&r.Id, &r.ProductId, &r.AuthorId, &r.Rating, &r.Comment, &r.CreatedAt); err != nil {
			return nil, err
		}
		reviews = append(reviews, r)
	}

	return reviews, rows.Err()
}
