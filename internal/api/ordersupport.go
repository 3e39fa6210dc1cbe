package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-ordersupport/internal/config"
	"github.com/npezzotti/go-ordersupport/internal/database"
	"github.com/npezzotti/go-ordersupport/internal/server"
	"github.com/npezzotti/go-ordersupport/internal/webhook"
)

type OrderSupportApp struct {
	log            *log.Logger
	db             database.OrderSupportRepository
	mux            *http.Server
	cs             *server.ChatServer
	ingestor       *webhook.Ingestor
	validate       *validator.Validate
	signingKey     []byte
	allowedOrigins []string
}

func NewOrderSupportApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, db database.OrderSupportRepository, ingestor *webhook.Ingestor, cfg *config.Config) *OrderSupportApp {
	s := &OrderSupportApp{
		log:            logger,
		db:             db,
		cs:             cs,
		ingestor:       ingestor,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("POST /api/auth/register", s.register)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.HandleFunc("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.HandleFunc("PUT /api/users/{id}/admin", s.authMiddleware(s.setUserAdmin))
	mux.HandleFunc("GET /api/orders", s.authMiddleware(s.listOrders))
	mux.HandleFunc("GET /api/orders/{id}", s.authMiddleware(s.getOrder))
	mux.HandleFunc("GET /api/orders/{id}/messages", s.authMiddleware(s.getOrderMessages))
	mux.HandleFunc("GET /api/products", s.listProducts)
	mux.HandleFunc("GET /api/products/{id}/reviews", s.listReviews)
	mux.HandleFunc("POST /api/products/{id}/reviews", s.authMiddleware(s.createReview))
	mux.HandleFunc("POST /api/webhook", s.receiveWebhook)
	mux.HandleFunc("GET /healthz", s.healthz)
	mux.HandleFunc("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	s.mux = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *OrderSupportApp) Handler() http.Handler {
	return s.mux.Handler
}

func (s *OrderSupportApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *OrderSupportApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
