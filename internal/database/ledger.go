package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// Snapshot is the whole persisted document.
type Snapshot struct {
	Users    []User    `json:"users"`
	Products []Product `json:"products"`
	Reviews  []Review  `json:"reviews"`
	Orders   []Order   `json:"orders"`
	Messages []Message `json:"messages"`
}

// Ledger is a file-backed OrderSupportRepository. Mutations hold mu for the
// whole read-modify-write cycle and publish the new snapshot with a rename,
// so readers only ever see a complete file.
type Ledger struct {
	path    string
	log     *log.Logger
	mu      sync.Mutex
	now     func() time.Time
	syncDir func(dir string) error
}

// OpenLedger opens the snapshot at path, seeding and persisting a fresh one
// if none exists.
func OpenLedger(path string, logger *log.Logger) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	l := &Ledger{
		path:    path,
		log:     logger,
		now:     func() time.Time { return time.Now().UTC() },
		syncDir: syncDir,
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.loadOrSeed(); err != nil {
		return nil, err
	}

	return l, nil
}

func (l *Ledger) Ping() error {
	_, err := os.Stat(l.path)
	return err
}

func (l *Ledger) Close() error {
	return nil
}

// read returns the latest committed snapshot.
func (l *Ledger) read() (*Snapshot, error) {
	snap, err := l.load()
	if errors.Is(err, fs.ErrNotExist) {
		l.mu.Lock()
		defer l.mu.Unlock()
		return l.loadOrSeed()
	}
	return snap, err
}

// update applies fn to the latest snapshot and writes the result back. If fn
// returns an error nothing is written.
func (l *Ledger) update(fn func(s *Snapshot) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap, err := l.loadOrSeed()
	if err != nil {
		return err
	}

	if err := fn(snap); err != nil {
		return err
	}

	return l.write(snap)
}

// loadOrSeed must be called with mu held.
func (l *Ledger) loadOrSeed() (*Snapshot, error) {
	snap, err := l.load()
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	l.log.Printf("no snapshot at %q, seeding catalog", l.path)
	snap = newSeedSnapshot()
	if err := l.write(snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (l *Ledger) load() (*Snapshot, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, err
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %q: %w", l.path, err)
	}
	return &snap, nil
}

func (l *Ledger) write(snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(l.path)
	file, err := os.CreateTemp(dir, "."+filepath.Base(l.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temporary snapshot: %w", err)
	}
	tmpPath := file.Name()

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temporary snapshot: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temporary snapshot: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temporary snapshot: %w", err)
	}

	if err := os.Rename(tmpPath, l.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename snapshot into place: %w", err)
	}

	// the snapshot is already in place; a failed directory sync only weakens
	// durability across a crash
	if err := l.syncDir(dir); err != nil {
		l.log.Printf("ledger: sync data directory %s: %v", dir, err)
	}

	return nil
}

// syncDir flushes dir so a preceding rename survives a crash.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()

	return d.Sync()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (l *Ledger) CreateUser(params CreateUserParams) (User, error) {
	var user User
	err := l.update(func(s *Snapshot) error {
		email := normalizeEmail(params.Email)
		hasAdmin := false
		nextId := 1
		for _, u := range s.Users {
			if u.Email == email {
				return ErrDuplicateEmail
			}
			hasAdmin = hasAdmin || u.IsAdmin
			nextId = max(nextId, u.Id+1)
		}

		user = User{
			Id:           nextId,
			Email:        email,
			PasswordHash: params.PasswordHash,
			IsAdmin:      !hasAdmin,
			CreatedAt:    l.now(),
		}
		s.Users = append(s.Users, user)
		return nil
	})
	if err != nil {
		return User{}, err
	}

	return user, nil
}

func (l *Ledger) GetUserById(id int) (User, error) {
	snap, err := l.read()
	if err != nil {
		return User{}, err
	}

	for _, u := range snap.Users {
		if u.Id == id {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (l *Ledger) GetUserByEmail(email string) (User, error) {
	snap, err := l.read()
	if err != nil {
		return User{}, err
	}

	email = normalizeEmail(email)
	for _, u := range snap.Users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (l *Ledger) SetUserAdmin(id int, isAdmin bool) (User, error) {
	var user User
	err := l.update(func(s *Snapshot) error {
		for i := range s.Users {
			if s.Users[i].Id == id {
				s.Users[i].IsAdmin = isAdmin
				user = s.Users[i]
				return nil
			}
		}
		return ErrNotFound
	})
	if err != nil {
		return User{}, err
	}

	return user, nil
}

func (l *Ledger) GetOrderById(id int) (Order, error) {
	snap, err := l.read()
	if err != nil {
		return Order{}, err
	}

	for _, o := range snap.Orders {
		if o.Id == id {
			return o, nil
		}
	}
	return Order{}, ErrNotFound
}

func (l *Ledger) ListOrders() ([]Order, error) {
	snap, err := l.read()
	if err != nil {
		return nil, err
	}

	orders := make([]Order, len(snap.Orders))
	copy(orders, snap.Orders)
	return orders, nil
}

func (l *Ledger) ListOrdersByUser(userId int) ([]Order, error) {
	snap, err := l.read()
	if err != nil {
		return nil, err
	}

	orders := make([]Order, 0)
	for _, o := range snap.Orders {
		if o.UserId != nil && *o.UserId == userId {
			orders = append(orders, o)
		}
	}
	return orders, nil
}

func (l *Ledger) CreateOrderForSession(params CreateOrderParams) (Order, bool, error) {
	var (
		order   Order
		created bool
	)

	err := l.update(func(s *Snapshot) error {
		nextId := 1
		for _, o := range s.Orders {
			if o.ExternalSessionId == params.ExternalSessionId {
				order = o
				return errNoChange
			}
			nextId = max(nextId, o.Id+1)
		}

		order = Order{
			Id:                nextId,
			ExternalSessionId: params.ExternalSessionId,
			UserId:            params.UserId,
			UserEmail:         params.UserEmail,
			AmountTotal:       params.AmountTotal,
			Currency:          params.Currency,
			Status:            OrderStatusPaid,
			CreatedAt:         l.now(),
		}
		s.Orders = append(s.Orders, order)
		created = true
		return nil
	})
	if err != nil && !errors.Is(err, errNoChange) {
		return Order{}, false, err
	}

	return order, created, nil
}

// errNoChange aborts an update without writing.
var errNoChange = errors.New("no change")

func (l *Ledger) CreateMessage(params CreateMessageParams) (Message, error) {
	var msg Message
	err := l.update(func(s *Snapshot) error {
		if !slices.ContainsFunc(s.Orders, func(o Order) bool { return o.Id == params.OrderId }) {
			return ErrNotFound
		}

		// created_at never goes backwards within an order so that display
		// order matches append order
		nextId := 1
		createdAt := l.now()
		for _, m := range s.Messages {
			nextId = max(nextId, m.Id+1)
			if m.OrderId == params.OrderId && m.CreatedAt.After(createdAt) {
				createdAt = m.CreatedAt
			}
		}

		msg = Message{
			Id:         nextId,
			OrderId:    params.OrderId,
			SenderId:   params.SenderId,
			SenderRole: params.SenderRole,
			Text:       params.Text,
			CreatedAt:  createdAt,
		}
		s.Messages = append(s.Messages, msg)
		return nil
	})
	if err != nil {
		return Message{}, err
	}

	return msg, nil
}

func (l *Ledger) GetMessages(orderId int) ([]Message, error) {
	snap, err := l.read()
	if err != nil {
		return nil, err
	}

	messages := make([]Message, 0)
	for _, m := range snap.Messages {
		if m.OrderId == orderId {
			messages = append(messages, m)
		}
	}

	slices.SortStableFunc(messages, func(a, b Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return messages, nil
}

func (l *Ledger) ListProducts() ([]Product, error) {
	snap, err := l.read()
	if err != nil {
		return nil, err
	}

	products := make([]Product, len(snap.Products))
	copy(products, snap.Products)
	return products, nil
}

func (l *Ledger) GetProductById(id int) (Product, error) {
	snap, err := l.read()
	if err != nil {
		return Product{}, err
	}

	for _, p := range snap.Products {
		if p.Id == id {
			return p, nil
		}
	}
	return Product{}, ErrNotFound
}

func (l *Ledger) CreateReview(params CreateReviewParams) (Review, error) {
	var review Review
	err := l.update(func(s *Snapshot) error {
		if !slices.ContainsFunc(s.Products, func(p Product) bool { return p.Id == params.ProductId }) {
			return ErrNotFound
		}

		nextId := 1
		for _, r := range s.Reviews {
			if r.ProductId == params.ProductId && r.AuthorId == params.AuthorId {
				return ErrDuplicateReview
			}
			nextId = max(nextId, r.Id+1)
		}

		review = Review{
			Id:        nextId,
			ProductId: params.ProductId,
			AuthorId:  params.AuthorId,
			Rating:    params.Rating,
			Comment:   params.Comment,
			CreatedAt: l.now(),
		}
		s.Reviews = append(s.Reviews, review)
		return nil
	})
	if err != nil {
		return Review{}, err
	}

	return review, nil
}

func (l *Ledger) ListReviews(productId int) ([]Review, error) {
	snap, err := l.read()
	if err != nil {
		return nil, err
	}

	reviews := make([]Review, 0)
	for _, r := range snap.Reviews {
		if r.ProductId == productId {
			reviews = append(reviews, r)
		}
	}
	return reviews, nil
}
