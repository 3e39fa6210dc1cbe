package server

import (
	"net/http"
	"time"

	"github.com/npezzotti/go-ordersupport/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ClientMessage struct {
	BaseMessage
	Join    *Join    `json:"join,omitempty"`
	Leave   *Leave   `json:"leave,omitempty"`
	Publish *Publish `json:"publish,omitempty"`
	client  *Client
	// internal is set on leaves generated by a disconnect; they get no reply
	internal bool
}

type Join struct {
	OrderId int `json:"order_id"`
}

type Leave struct {
	OrderId int `json:"order_id"`
}

type Publish struct {
	OrderId int    `json:"order_id"`
	Text    string `json:"text"`
}

type ServerMessage struct {
	BaseMessage
	Response     *Response      `json:"response,omitempty"`
	Message      *types.Message `json:"message,omitempty"`
	Notification *Notification  `json:"notification,omitempty"`
}

type Response struct {
	ResponseCode int             `json:"response_code"`
	Ok           bool            `json:"ok,omitempty"`
	Error        string          `json:"error,omitempty"`
	Messages     []types.Message `json:"messages,omitzero"`
	Msg          *types.Message  `json:"msg,omitempty"`
}

type Notification struct {
	OrderCreated *types.Order `json:"order_created,omitempty"`
}

func newResponse(id, code int, errMsg string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: code,
			Ok:           errMsg == "",
			Error:        errMsg,
		},
	}
}

func NoErrOK(id int) *ServerMessage {
	return newResponse(id, http.StatusOK, "")
}

// NoErrJoined acknowledges a join with the order's full history.
func NoErrJoined(id int, history []types.Message) *ServerMessage {
	msg := newResponse(id, http.StatusOK, "")
	if history == nil {
		history = []types.Message{}
	}
	msg.Response.Messages = history
	return msg
}

// NoErrSent acknowledges a publish with the stored message.
func NoErrSent(id int, m types.Message) *ServerMessage {
	msg := newResponse(id, http.StatusOK, "")
	msg.Response.Msg = &m
	return msg
}

func ErrNotAuthorized(id int) *ServerMessage {
	return newResponse(id, http.StatusForbidden, "Not authorized")
}

func ErrOrderNotFound(id int) *ServerMessage {
	return newResponse(id, http.StatusNotFound, "order not found")
}

func ErrNotJoined(id int) *ServerMessage {
	return newResponse(id, http.StatusForbidden, "not joined to order")
}

func ErrEmptyText(id int) *ServerMessage {
	return newResponse(id, http.StatusBadRequest, "message text cannot be empty")
}

func ErrTextTooLong(id int) *ServerMessage {
	return newResponse(id, http.StatusBadRequest, "message text is too long")
}

func ErrTooManyRequests(id int) *ServerMessage {
	return newResponse(id, http.StatusTooManyRequests, "too many messages")
}

func ErrInternalError(id int) *ServerMessage {
	return newResponse(id, http.StatusInternalServerError, "internal server error")
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return newResponse(id, http.StatusServiceUnavailable, "service unavailable")
}

func ErrInvalidMessage(id int) *ServerMessage {
	return newResponse(max(id, 0), http.StatusBadRequest, "invalid message format")
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
