package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-ordersupport/internal/authz"
	"github.com/npezzotti/go-ordersupport/internal/database"
	"github.com/npezzotti/go-ordersupport/internal/server"
	"github.com/npezzotti/go-ordersupport/internal/types"
	"github.com/npezzotti/go-ordersupport/internal/webhook"
)

const maxWebhookBodySize = 1 << 20

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type SetAdminRequest struct {
	IsAdmin *bool `json:"is_admin" validate:"required"`
}

type CreateReviewRequest struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

type WebhookResponse struct {
	Received bool `json:"received"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

func (s *OrderSupportApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *OrderSupportApp) writeError(w http.ResponseWriter, errResp *ApiError) {
	if errResp.StatusCode >= http.StatusInternalServerError && errResp.Err != nil {
		s.log.Printf("request failed: %v", errResp)
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

// decodeAndValidate reads a JSON body into v and runs struct validation.
func (s *OrderSupportApp) decodeAndValidate(r *http.Request, v any) *ApiError {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return NewBadRequestError()
	}
	if err := s.validate.Struct(v); err != nil {
		return NewValidationError(err)
	}
	return nil
}

func pathId(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (s *OrderSupportApp) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if errResp := s.decodeAndValidate(r, &req); errResp != nil {
		s.writeError(w, errResp)
		return
	}

	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	user, err := s.db.CreateUser(database.CreateUserParams{
		Email:        req.Email,
		PasswordHash: pwdHash,
	})
	if err != nil {
		if errors.Is(err, database.ErrDuplicateEmail) {
			s.writeError(w, NewConflictError("email already registered"))
			return
		}
		s.writeError(w, NewInternalServerError(err))
		return
	}

	if user.IsAdmin {
		s.log.Printf("bootstrapped user %d as the first admin", user.Id)
	}

	s.writeJson(w, http.StatusCreated, user.Public())
}

func (s *OrderSupportApp) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if errResp := s.decodeAndValidate(r, &req); errResp != nil {
		s.writeError(w, errResp)
		return
	}

	user, err := s.db.GetUserByEmail(req.Email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.writeError(w, NewUnauthorizedError())
			return
		}
		s.writeError(w, NewInternalServerError(err))
		return
	}

	if !verifyPassword(user.PasswordHash, req.Password) {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	token, err := s.createJwtForSession(user.Id, defaultExp)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	http.SetCookie(w, createJwtCookie(token, defaultExp))
	s.writeJson(w, http.StatusOK, user.Public())
}

func (s *OrderSupportApp) logout(w http.ResponseWriter, _ *http.Request) {
	// instruct browser to delete cookie by overwriting it with an expired token
	http.SetCookie(w, createJwtCookie("", -time.Hour))
	w.WriteHeader(http.StatusNoContent)
}

func (s *OrderSupportApp) session(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	user, err := s.db.GetUserById(p.Id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.writeError(w, NewNotFoundError())
			return
		}
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, user.Public())
}

func (s *OrderSupportApp) setUserAdmin(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}
	if !p.IsAdmin {
		s.writeError(w, NewForbiddenError())
		return
	}

	userId, ok := pathId(r)
	if !ok {
		s.writeError(w, NewBadRequestError())
		return
	}

	var req SetAdminRequest
	if errResp := s.decodeAndValidate(r, &req); errResp != nil {
		s.writeError(w, errResp)
		return
	}

	user, err := s.db.SetUserAdmin(userId, *req.IsAdmin)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.writeError(w, NewNotFoundError())
			return
		}
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.log.Printf("admin %d set is_admin=%t on user %d", p.Id, *req.IsAdmin, user.Id)
	s.writeJson(w, http.StatusOK, user.Public())
}

func (s *OrderSupportApp) listOrders(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	var (
		orders []database.Order
		err    error
	)
	if p.IsAdmin {
		orders, err = s.db.ListOrders()
	} else {
		orders, err = s.db.ListOrdersByUser(p.Id)
	}
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	res := make([]types.Order, 0, len(orders))
	for _, o := range orders {
		res = append(res, o.Public())
	}

	s.writeJson(w, http.StatusOK, res)
}

// authorizedOrder loads the order named in the path and applies the access
// rule. It writes the error response itself and reports false on failure.
func (s *OrderSupportApp) authorizedOrder(w http.ResponseWriter, r *http.Request) (types.Order, bool) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return types.Order{}, false
	}

	orderId, ok := pathId(r)
	if !ok {
		s.writeError(w, NewBadRequestError())
		return types.Order{}, false
	}

	dbOrder, err := s.db.GetOrderById(orderId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.writeError(w, NewNotFoundError())
		} else {
			s.writeError(w, NewInternalServerError(err))
		}
		return types.Order{}, false
	}

	order := dbOrder.Public()
	if err := authz.Authorize(p, order); err != nil {
		s.log.Printf("user %d denied access to order %d", p.Id, order.Id)
		s.writeError(w, NewForbiddenError())
		return types.Order{}, false
	}

	return order, true
}

func (s *OrderSupportApp) getOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := s.authorizedOrder(w, r)
	if !ok {
		return
	}

	s.writeJson(w, http.StatusOK, order)
}

func (s *OrderSupportApp) getOrderMessages(w http.ResponseWriter, r *http.Request) {
	order, ok := s.authorizedOrder(w, r)
	if !ok {
		return
	}

	msgs, err := s.db.GetMessages(order.Id)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, database.PublicMessages(msgs))
}

func (s *OrderSupportApp) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.db.ListProducts()
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	res := make([]types.Product, 0, len(products))
	for _, p := range products {
		res = append(res, p.Public())
	}

	s.writeJson(w, http.StatusOK, res)
}

func (s *OrderSupportApp) listReviews(w http.ResponseWriter, r *http.Request) {
	productId, ok := pathId(r)
	if !ok {
		s.writeError(w, NewBadRequestError())
		return
	}

	if _, err := s.db.GetProductById(productId); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.writeError(w, NewNotFoundError())
			return
		}
		s.writeError(w, NewInternalServerError(err))
		return
	}

	reviews, err := s.db.ListReviews(productId)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	res := make([]types.Review, 0, len(reviews))
	for _, rv := range reviews {
		res = append(res, rv.Public())
	}

	s.writeJson(w, http.StatusOK, res)
}

func (s *OrderSupportApp) createReview(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	productId, ok := pathId(r)
	if !ok {
		s.writeError(w, NewBadRequestError())
		return
	}

	var req CreateReviewRequest
	if errResp := s.decodeAndValidate(r, &req); errResp != nil {
		s.writeError(w, errResp)
		return
	}

	review, err := s.db.CreateReview(database.CreateReviewParams{
		ProductId: productId,
		AuthorId:  p.Id,
		Rating:    req.Rating,
		Comment:   strings.TrimSpace(req.Comment),
	})
	if err != nil {
		switch {
		case errors.Is(err, database.ErrNotFound):
			s.writeError(w, NewNotFoundError())
		case errors.Is(err, database.ErrDuplicateReview):
			s.writeError(w, NewConflictError("product already reviewed"))
		default:
			s.writeError(w, NewInternalServerError(err))
		}
		return
	}

	s.writeJson(w, http.StatusCreated, review.Public())
}

// receiveWebhook verifies the signature against the raw body, so the body
// must not be decoded before Ingest sees it.
func (s *OrderSupportApp) receiveWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodySize))
	if err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	res, err := s.ingestor.Ingest(body, r.Header.Get(webhook.SignatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrSignature):
			s.writeJson(w, http.StatusBadRequest, SignatureErrorResponse{Error: err.Error()})
		case errors.Is(err, webhook.ErrMalformedEvent):
			errResp := NewBadRequestError()
			errResp.Message = err.Error()
			s.writeError(w, errResp)
		default:
			s.writeError(w, NewInternalServerError(err))
		}
		return
	}

	if res.Created {
		s.log.Printf("webhook %q created order %d", res.EventType, res.Order.Id)
	}

	s.writeJson(w, http.StatusOK, WebhookResponse{Received: true})
}

func (s *OrderSupportApp) healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Printf("health check failed: %v", err)
		s.writeJson(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable"})
		return
	}

	s.writeJson(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *OrderSupportApp) serveWs(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(p, conn, s.cs, s.log)
	if !s.cs.RegisterClient(client) {
		conn.Close()
		return
	}

	go client.Write()
	go client.Read()
}
