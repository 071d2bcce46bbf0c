package ws

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/lupus-manager/lupus/internal/logging"
	"github.com/lupus-manager/lupus/internal/metrics"
)

// Sender delivers one frame to a connected client.
type Sender interface {
	Send(msg []byte) error
}

// Registry tracks connected push clients by id.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Sender
	log     *logrus.Entry
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]Sender),
		log:     logging.NewLogger("registry"),
	}
}

// Register adds or replaces the client with the given id.
func (r *Registry) Register(id string, s Sender) {
	r.mu.Lock()
	r.clients[id] = s
	n := len(r.clients)
	r.mu.Unlock()
	metrics.Clients.Set(float64(n))
}

// Unregister removes a client. Unknown ids are ignored.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	delete(r.clients, id)
	n := len(r.clients)
	r.mu.Unlock()
	metrics.Clients.Set(float64(n))
}

// Count returns the number of registered clients.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Broadcast sends msg to every registered client and returns how many
// deliveries succeeded. The lock is only held while copying the client set;
// a failing client is logged and skipped.
func (r *Registry) Broadcast(msg []byte) int {
	type target struct {
		id string
		s  Sender
	}

	r.mu.RLock()
	targets := make([]target, 0, len(r.clients))
	for id, s := range r.clients {
		targets = append(targets, target{id, s})
	}
	r.mu.RUnlock()

	delivered := 0
	for _, t := range targets {
		if err := safeSend(t.s, msg); err != nil {
			r.log.WithError(err).WithField("client", t.id).Warn("Dropping frame for client")
			metrics.Deliveries.WithLabelValues("failed").Inc()
			continue
		}
		metrics.Deliveries.WithLabelValues("ok").Inc()
		delivered++
	}
	return delivered
}

// safeSend turns a panicking Send (e.g. a send on a closed channel) into an
// error.
func safeSend(s Sender, msg []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("send panicked: %v", r)
		}
	}()
	return s.Send(msg)
}
