package server

import (
	"context"
	"errors"
	"log"

	"github.com/npezzotti/go-ordersupport/internal/database"
	"github.com/npezzotti/go-ordersupport/internal/stats"
	"github.com/npezzotti/go-ordersupport/internal/types"
)

var ErrNotifyUnavailable = errors.New("admin notification channel unavailable")

type stopReq struct {
	done chan struct{}
}

// ChatServer owns the set of connected clients and the live order rooms.
// Every admin connection is also subscribed to the admin broadcast channel.
type ChatServer struct {
	log            *log.Logger
	db             database.OrderSupportRepository
	stats          stats.StatsProvider
	clients        map[*Client]struct{}
	admins         map[*Client]struct{}
	rooms          map[int]*Room
	joinChan       chan *ClientMessage
	registerChan   chan *Client
	deregisterChan chan *Client
	unloadRoomChan chan int
	broadcastChan  chan *ServerMessage
	stop           chan stopReq
	done           chan struct{}
}

func NewChatServer(logger *log.Logger, db database.OrderSupportRepository, su stats.StatsProvider) (*ChatServer, error) {
	su.RegisterMetric(stats.NumActiveClients)
	su.RegisterMetric(stats.NumActiveRooms)
	su.RegisterMetric(stats.NumConnectedAdmins)
	su.RegisterMetric(stats.NumMessagesSent)

	return &ChatServer{
		log:            logger,
		db:             db,
		stats:          su,
		clients:        make(map[*Client]struct{}),
		admins:         make(map[*Client]struct{}),
		rooms:          make(map[int]*Room),
		joinChan:       make(chan *ClientMessage, 256),
		registerChan:   make(chan *Client),
		deregisterChan: make(chan *Client),
		unloadRoomChan: make(chan int, 64),
		broadcastChan:  make(chan *ServerMessage, 64),
		stop:           make(chan stopReq),
		done:           make(chan struct{}),
	}, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case joinMsg := <-cs.joinChan:
			cs.handleJoin(joinMsg)
		case client := <-cs.registerChan:
			cs.addClient(client)
		case client := <-cs.deregisterChan:
			cs.removeClient(client)
		case orderId := <-cs.unloadRoomChan:
			cs.unloadRoom(orderId)
		case msg := <-cs.broadcastChan:
			cs.broadcastToAdmins(msg)
		case req := <-cs.stop:
			cs.shutdown()
			close(req.done)
			return
		}
	}
}

// RegisterClient adds c to the server. It returns false once the server has
// stopped.
func (cs *ChatServer) RegisterClient(c *Client) bool {
	select {
	case cs.registerChan <- c:
		return true
	case <-cs.done:
		return false
	}
}

// NotifyOrderCreated queues an order_created notification for every connected
// admin. It never blocks; a full queue or stopped server is reported as
// ErrNotifyUnavailable.
func (cs *ChatServer) NotifyOrderCreated(order types.Order) error {
	select {
	case <-cs.done:
		return ErrNotifyUnavailable
	default:
	}

	msg := &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Notification: &Notification{
			OrderCreated: &order,
		},
	}

	select {
	case cs.broadcastChan <- msg:
		return nil
	default:
		return ErrNotifyUnavailable
	}
}

func (cs *ChatServer) handleJoin(joinMsg *ClientMessage) {
	orderId := joinMsg.Join.OrderId
	room, ok := cs.rooms[orderId]
	if !ok {
		if _, err := cs.db.GetOrderById(orderId); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				joinMsg.client.queueMessage(ErrOrderNotFound(joinMsg.Id))
			} else {
				cs.log.Println("GetOrderById:", err)
				joinMsg.client.queueMessage(ErrInternalError(joinMsg.Id))
			}
			return
		}

		room = newRoom(orderId, cs)
		cs.rooms[orderId] = room
		cs.stats.Incr(stats.NumActiveRooms)
		go room.start()
	}

	select {
	case room.joinChan <- joinMsg:
	default:
		cs.log.Printf("join channel full for order %d", orderId)
		joinMsg.client.queueMessage(ErrServiceUnavailable(joinMsg.Id))
	}
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clients[c] = struct{}{}
	cs.stats.Incr(stats.NumActiveClients)

	if c.principal.IsAdmin {
		cs.admins[c] = struct{}{}
		cs.stats.Incr(stats.NumConnectedAdmins)
	}
	cs.log.Printf("registered client %s for user %d (admin=%t)", c.id, c.principal.Id, c.principal.IsAdmin)
}

func (cs *ChatServer) removeClient(c *Client) {
	if _, ok := cs.clients[c]; !ok {
		return
	}

	delete(cs.clients, c)
	cs.stats.Decr(stats.NumActiveClients)

	if _, ok := cs.admins[c]; ok {
		delete(cs.admins, c)
		cs.stats.Decr(stats.NumConnectedAdmins)
	}
	cs.log.Printf("deregistered client %s", c.id)
}

func (cs *ChatServer) unloadRoom(orderId int) {
	r, ok := cs.rooms[orderId]
	if !ok {
		return
	}

	done := make(chan bool, 1)
	r.exit <- exitReq{done: done}
	if !<-done {
		return
	}

	delete(cs.rooms, orderId)
	cs.stats.Decr(stats.NumActiveRooms)
	cs.log.Printf("unloaded room for order %d", orderId)
}

func (cs *ChatServer) broadcastToAdmins(msg *ServerMessage) {
	if len(cs.admins) == 0 {
		cs.log.Println("no admins connected, dropping notification")
		return
	}

	for c := range cs.admins {
		c.queueMessage(msg)
	}
}

func (cs *ChatServer) shutdown() {
	cs.log.Println("shutting down rooms")
	for id, r := range cs.rooms {
		done := make(chan bool, 1)
		r.exit <- exitReq{force: true, done: done}
		<-done
		delete(cs.rooms, id)
	}

	// closing done first lets disconnecting clients skip deregistration
	close(cs.done)
	for c := range cs.clients {
		c.stopClient()
	}
}

// Shutdown stops all rooms and disconnects every client.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("shutting down chat server")
	req := stopReq{done: make(chan struct{})}

	select {
	case cs.stop <- req:
	case <-cs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
