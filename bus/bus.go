// Package bus is the in-process message fabric between the runtime service
// and its observers (stats, tests). Topics are plain string paths; a
// retained message is redelivered to late subscribers.
package bus

import (
	"sync"
)

// Topic is a sequence of path elements, e.g. T("mcu", "state").
type Topic []string

// T builds a topic from its elements.
func T(elems ...string) Topic { return Topic(elems) }

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
}

type Subscription struct {
	topic Topic
	ch    chan *Message
	conn  *Connection
}

func (s *Subscription) Topic() Topic             { return s.topic }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

type node struct {
	children map[string]*node
	subs     []*Subscription
	retained *Message
}

type Bus struct {
	mu   sync.RWMutex
	root *node
	qLen int
}

// New creates a bus with the given per-subscription queue length.
func New(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8 // safe default
	}
	return &Bus{root: &node{}, qLen: queueLen}
}

func (b *Bus) addSubscription(topic Topic, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	for _, el := range topic {
		if n.children == nil {
			n.children = make(map[string]*node)
		}
		child, ok := n.children[el]
		if !ok {
			child = &node{}
			n.children[el] = child
		}
		n = child
	}
	n.subs = append(n.subs, sub)

	// Late joiners still see the retained message.
	if n.retained != nil {
		select {
		case sub.ch <- n.retained:
		default:
		}
	}
}

// Publish delivers a message to all subscribers of its exact topic.
// Delivery never blocks: a full subscriber queue drops its oldest entry.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	for _, el := range msg.Topic {
		if n.children == nil {
			if !msg.Retained {
				return
			}
			n.children = make(map[string]*node)
		}
		child, ok := n.children[el]
		if !ok {
			if !msg.Retained {
				return
			}
			child = &node{}
			n.children[el] = child
		}
		n = child
	}

	for _, sub := range n.subs {
		select {
		case sub.ch <- msg:
		default:
			<-sub.ch
			sub.ch <- msg
		}
	}

	if msg.Retained {
		if msg.Payload == nil {
			n.retained = nil
		} else {
			n.retained = msg
		}
	}
}

func (b *Bus) unsubscribe(topic Topic, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	var path []*node
	for _, el := range topic {
		if n.children == nil {
			return
		}
		child, ok := n.children[el]
		if !ok {
			return
		}
		path = append(path, n)
		n = child
	}

	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			break
		}
	}

	// Prune now-empty trie nodes.
	for i := len(topic) - 1; i >= 0; i-- {
		parent := path[i]
		child := parent.children[topic[i]]
		if len(child.subs) == 0 && len(child.children) == 0 && child.retained == nil {
			delete(parent.children, topic[i])
		} else {
			break
		}
	}
}

// Connection groups subscriptions with a common owner so a service can
// tear all of them down at once.
type Connection struct {
	bus  *Bus
	mu   sync.Mutex
	subs []*Subscription
	name string
}

func (b *Bus) NewConnection(name string) *Connection {
	return &Connection{bus: b, name: name}
}

func (c *Connection) Publish(msg *Message) { c.bus.Publish(msg) }

// PublishRetained is shorthand for publishing a retained payload.
func (c *Connection) PublishRetained(topic Topic, payload any) {
	c.bus.Publish(&Message{Topic: topic, Payload: payload, Retained: true})
}

func (c *Connection) Subscribe(topic Topic) *Subscription {
	sub := &Subscription{
		topic: topic,
		ch:    make(chan *Message, c.bus.qLen),
		conn:  c,
	}
	c.bus.addSubscription(topic, sub)
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub
}

func (c *Connection) Unsubscribe(sub *Subscription) {
	c.bus.unsubscribe(sub.topic, sub)
	c.mu.Lock()
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	close(sub.ch)
}

// Disconnect closes all subscriptions owned by this connection.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		c.bus.unsubscribe(sub.topic, sub)
		close(sub.ch)
	}
}
