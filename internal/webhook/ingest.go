// Package webhook turns payment-completion notifications into orders. Each
// external checkout session yields at most one order no matter how many times
// the event is delivered.
package webhook

import (
	"errors"
	"log"
	"time"

	"github.com/npezzotti/go-ordersupport/internal/database"
	"github.com/npezzotti/go-ordersupport/internal/stats"
	"github.com/npezzotti/go-ordersupport/internal/types"
)

// OrderNotifier publishes newly created orders to connected staff.
type OrderNotifier interface {
	NotifyOrderCreated(order types.Order) error
}

type Result struct {
	EventType string
	Handled   bool
	Created   bool
	Order     *types.Order
}

type Ingestor struct {
	log       *log.Logger
	db        database.OrderSupportRepository
	notifier  OrderNotifier
	stats     stats.StatsProvider
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

// NewIngestor builds an ingestor. An empty secret disables signature checks
// and every payload is trusted; this is only meant for local development.
func NewIngestor(logger *log.Logger, db database.OrderSupportRepository, notifier OrderNotifier, su stats.StatsProvider, secret string, tolerance time.Duration) *Ingestor {
	su.RegisterMetric(stats.NumWebhooksReceived)
	su.RegisterMetric(stats.NumOrdersCreated)

	if secret == "" {
		logger.Println("WARNING: no webhook secret configured, unsigned webhook payloads will be trusted")
	}

	return &Ingestor{
		log:       logger,
		db:        db,
		notifier:  notifier,
		stats:     su,
		secret:    secret,
		tolerance: tolerance,
		now:       time.Now,
	}
}

// Ingest verifies and applies one delivery. Duplicate deliveries succeed
// without creating anything. Errors wrap ErrSignature, ErrMalformedEvent or a
// store failure.
func (in *Ingestor) Ingest(payload []byte, signature string) (Result, error) {
	in.stats.Incr(stats.NumWebhooksReceived)

	if in.secret != "" {
		if err := VerifySignature(payload, signature, in.secret, in.tolerance, in.now()); err != nil {
			in.log.Printf("webhook: %v", err)
			return Result{}, err
		}
	} else {
		in.log.Println("webhook: accepting unsigned payload, no secret configured")
	}

	event, err := ParseEvent(payload)
	if err != nil {
		in.log.Printf("webhook: %v", err)
		return Result{}, err
	}

	res := Result{EventType: event.Type}
	if !event.MaterializesOrder() {
		in.log.Printf("webhook: ignoring event %q of type %q", event.Id, event.Type)
		return res, nil
	}
	res.Handled = true

	session := event.Data.Object
	params := database.CreateOrderParams{
		ExternalSessionId: session.Id,
		UserId:            session.UserId(),
		UserEmail:         session.Email(),
		AmountTotal:       session.AmountTotal,
		Currency:          session.Currency,
	}
	if params.UserEmail == "" && params.UserId != nil {
		params.UserEmail = in.lookupEmail(*params.UserId)
	}

	order, created, err := in.db.CreateOrderForSession(params)
	if err != nil {
		in.log.Printf("webhook: create order for session %q: %v", session.Id, err)
		return Result{}, err
	}

	pub := order.Public()
	res.Order = &pub
	res.Created = created

	if !created {
		in.log.Printf("webhook: order %d already exists for session %q", order.Id, session.Id)
		return res, nil
	}

	in.log.Printf("webhook: created order %d for session %q", order.Id, session.Id)
	in.stats.Incr(stats.NumOrdersCreated)

	// the order is committed; failing to notify staff must not undo it
	if err := in.notifier.NotifyOrderCreated(pub); err != nil {
		in.log.Printf("webhook: notify admins of order %d: %v", order.Id, err)
	}

	return res, nil
}

func (in *Ingestor) lookupEmail(userId int) string {
	user, err := in.db.GetUserById(userId)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			in.log.Printf("webhook: lookup user %d: %v", userId, err)
		}
		return ""
	}
	return user.Email
}
