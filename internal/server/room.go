package server

import (
	"errors"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/npezzotti/go-ordersupport/internal/authz"
	"github.com/npezzotti/go-ordersupport/internal/database"
	"github.com/npezzotti/go-ordersupport/internal/stats"
)

const (
	idleRoomTimeout = time.Second * 5
	maxTextLength   = 2000
)

type exitReq struct {
	// force exits even if clients are still joined
	force bool
	done  chan bool
}

// Room is the live channel for a single order. Its state is owned by the
// goroutine running start, so joins, leaves and publishes are applied one at
// a time in arrival order.
type Room struct {
	orderId       int
	cs            *ChatServer
	joinChan      chan *ClientMessage
	leaveChan     chan *ClientMessage
	clientMsgChan chan *ClientMessage
	clients       map[*Client]struct{}
	log           *log.Logger
	// killTimer is used to automatically unload the room when it is no longer active
	killTimer *time.Timer
	exit      chan exitReq
	done      chan struct{}
}

func newRoom(orderId int, cs *ChatServer) *Room {
	return &Room{
		orderId:       orderId,
		cs:            cs,
		joinChan:      make(chan *ClientMessage, 256),
		leaveChan:     make(chan *ClientMessage, 256),
		clientMsgChan: make(chan *ClientMessage, 256),
		clients:       make(map[*Client]struct{}),
		log:           cs.log,
		exit:          make(chan exitReq),
		done:          make(chan struct{}),
	}
}

func (r *Room) start() {
	r.log.Printf("starting room for order %d", r.orderId)
	r.killTimer = time.NewTimer(idleRoomTimeout)
	r.killTimer.Stop()
	defer close(r.done)

	for {
		select {
		case join := <-r.joinChan:
			r.handleJoin(join)
		case leave := <-r.leaveChan:
			r.handleLeave(leave)
		case msg := <-r.clientMsgChan:
			r.handlePublish(msg)
		case <-r.killTimer.C:
			r.handleRoomTimeout()
		case e := <-r.exit:
			if r.handleRoomExit(e) {
				return
			}
		}
	}
}

// armTimer starts the idle countdown when the room is empty.
func (r *Room) armTimer() {
	if len(r.clients) == 0 {
		r.killTimer.Reset(idleRoomTimeout)
	} else {
		r.killTimer.Stop()
	}
}

func (r *Room) handleRoomTimeout() {
	r.log.Printf("room for order %d timed out", r.orderId)
	select {
	case r.cs.unloadRoomChan <- r.orderId:
	default:
		// server is busy, try again later
		r.killTimer.Reset(idleRoomTimeout)
	}
}

// handleRoomExit reports whether the room stopped. An idle unload is refused
// when a client joined or a join is queued since the timer fired.
func (r *Room) handleRoomExit(e exitReq) bool {
	if !e.force && (len(r.clients) > 0 || len(r.joinChan) > 0) {
		r.log.Printf("room for order %d is active again, not unloading", r.orderId)
		r.armTimer()
		e.done <- false
		return false
	}

	r.log.Printf("room for order %d is exiting", r.orderId)
	for c := range r.clients {
		c.delRoom(r.orderId)
	}
	clear(r.clients)
	r.killTimer.Stop()

	for {
		select {
		case msg := <-r.joinChan:
			msg.client.queueMessage(ErrServiceUnavailable(msg.Id))
		case msg := <-r.clientMsgChan:
			msg.client.queueMessage(ErrServiceUnavailable(msg.Id))
		case <-r.leaveChan:
		default:
			e.done <- true
			return true
		}
	}
}

func (r *Room) handleJoin(join *ClientMessage) {
	defer r.armTimer()

	c := join.client
	order, err := r.cs.db.GetOrderById(r.orderId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.queueMessage(ErrOrderNotFound(join.Id))
			return
		}
		r.log.Println("GetOrderById:", err)
		c.queueMessage(ErrInternalError(join.Id))
		return
	}

	if err := authz.Authorize(c.principal, order.Public()); err != nil {
		r.log.Printf("client %s (user %d) denied access to order %d", c.id, c.principal.Id, r.orderId)
		c.queueMessage(ErrNotAuthorized(join.Id))
		return
	}

	// history is read on the room goroutine, so no message can be published
	// between the snapshot and the client joining the fan-out set
	history, err := r.cs.db.GetMessages(r.orderId)
	if err != nil {
		r.log.Println("GetMessages:", err)
		c.queueMessage(ErrInternalError(join.Id))
		return
	}

	if !r.addClient(c) {
		r.log.Printf("client %s closed before joining order %d", c.id, r.orderId)
		return
	}
	c.queueMessage(NoErrJoined(join.Id, database.PublicMessages(history)))
}

func (r *Room) handleLeave(leave *ClientMessage) {
	defer r.armTimer()

	c := leave.client
	if !r.removeClient(c) {
		if !leave.internal {
			c.queueMessage(ErrNotJoined(leave.Id))
		}
		return
	}

	if !leave.internal {
		c.queueMessage(NoErrOK(leave.Id))
	}
}

func (r *Room) handlePublish(msg *ClientMessage) {
	c := msg.client
	if _, ok := r.clients[c]; !ok {
		c.queueMessage(ErrNotJoined(msg.Id))
		return
	}

	text := strings.TrimSpace(msg.Publish.Text)
	if text == "" {
		c.queueMessage(ErrEmptyText(msg.Id))
		return
	}
	if utf8.RuneCountInString(text) > maxTextLength {
		c.queueMessage(ErrTextTooLong(msg.Id))
		return
	}

	saved, err := r.cs.db.CreateMessage(database.CreateMessageParams{
		OrderId:    r.orderId,
		SenderId:   c.principal.Id,
		SenderRole: c.principal.Role(),
		Text:       text,
	})
	if err != nil {
		r.log.Println("CreateMessage:", err)
		if errors.Is(err, database.ErrNotFound) {
			c.queueMessage(ErrOrderNotFound(msg.Id))
		} else {
			c.queueMessage(ErrInternalError(msg.Id))
		}
		return
	}

	m := saved.Public()
	c.queueMessage(NoErrSent(msg.Id, m))
	r.cs.stats.Incr(stats.NumMessagesSent)

	r.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Message:     &m,
	})
}

func (r *Room) addClient(c *Client) bool {
	if !c.addRoom(r) {
		return false
	}
	r.clients[c] = struct{}{}
	return true
}

func (r *Room) removeClient(c *Client) bool {
	if _, ok := r.clients[c]; !ok {
		return false
	}

	delete(r.clients, c)
	c.delRoom(r.orderId)
	r.log.Printf("removed client %s from order %d, %d remaining", c.id, r.orderId, len(r.clients))
	return true
}

// broadcast delivers msg to every joined client, the sender included.
func (r *Room) broadcast(msg *ServerMessage) {
	for client := range r.clients {
		client.queueMessage(msg)
	}
}
