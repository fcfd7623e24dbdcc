// Package pubsub provides a basic Publish/Subscribe implementation.
package pubsub

import (
	"log/slog"
	"sync"
)

const defaultBuffer = 4

// Publisher allows clients to subscribe and sends them the information provided by Publish.
//
// Publish never blocks: if a subscriber's channel is full, the message is dropped for that subscriber.
type Publisher[T any] struct {
	clients map[chan T]struct{}
	logger  *slog.Logger
	buffer  int
	retain  bool
	last    *T
	lock    sync.RWMutex
}

// Option configures a Publisher
type Option func(*options)

type options struct {
	buffer int
	retain bool
}

// WithBuffer sets the capacity of each subscriber's channel.
func WithBuffer(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.buffer = size
		}
	}
}

// WithRetain makes the Publisher remember the last published value and send it to every new subscriber.
func WithRetain() Option {
	return func(o *options) {
		o.retain = true
	}
}

// New returns a new Publisher
func New[T any](logger *slog.Logger, opts ...Option) *Publisher[T] {
	o := options{buffer: defaultBuffer}
	for _, opt := range opts {
		opt(&o)
	}
	return &Publisher[T]{
		clients: make(map[chan T]struct{}),
		logger:  logger,
		buffer:  o.buffer,
		retain:  o.retain,
	}
}

// Subscribe registers the caller and returns a new channel on which it will publish updates.
func (p *Publisher[T]) Subscribe() <-chan T {
	p.lock.Lock()
	defer p.lock.Unlock()
	ch := make(chan T, p.buffer)
	p.clients[ch] = struct{}{}
	if p.last != nil {
		ch <- *p.last
	}
	p.logger.Debug("subscriber added", slog.Int("subscribers", len(p.clients)))
	return ch
}

// Unsubscribe removes the registered client/channel.
func (p *Publisher[T]) Unsubscribe(ch <-chan T) {
	p.lock.Lock()
	defer p.lock.Unlock()
	for client := range p.clients {
		if client == ch {
			delete(p.clients, client)
			break
		}
	}
	p.logger.Debug("subscriber removed", slog.Int("subscribers", len(p.clients)))
}

// Publish sends info to all registered clients.
func (p *Publisher[T]) Publish(info T) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.retain {
		p.last = &info
	}
	for ch := range p.clients {
		select {
		case ch <- info:
		default:
			p.logger.Warn("subscriber not keeping up. message dropped")
		}
	}
}

// Subscribers returns the current number of subscribers
func (p *Publisher[T]) Subscribers() int {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return len(p.clients)
}
