// Package events relays the node's event lines to subscribers. Every line
// starts with the part of the node that raised it ("consensus: ...",
// "scheduler: ..."), which is the topic a subscriber can filter on.
package events

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// Topic names the part of the node an event comes from.
type Topic string

// Set of topics the node raises events on.
const (
	TopicConsensus Topic = "consensus"
	TopicScheduler Topic = "scheduler"
	TopicCommit    Topic = "commit"
	TopicState     Topic = "state"
	TopicWorker    Topic = "worker"
	TopicP2P       Topic = "p2p"
	TopicUnknown   Topic = "unknown"
)

// ParseTopics turns a comma separated list into topics. An empty list
// subscribes to everything.
func ParseTopics(list string) []Topic {
	var topics []Topic
	for _, name := range strings.Split(list, ",") {
		if name = strings.TrimSpace(name); name != "" {
			topics = append(topics, Topic(strings.ToLower(name)))
		}
	}

	return topics
}

// TopicOf returns the topic of an event line: the text before the first
// colon.
func TopicOf(event string) Topic {
	prefix, _, found := strings.Cut(event, ":")
	if !found || prefix == "" || strings.ContainsAny(prefix, " \t") {
		return TopicUnknown
	}

	return Topic(prefix)
}

// =============================================================================

// subscription is a channel plus the topics it wants, all when empty.
type subscription struct {
	ch     chan string
	topics map[Topic]struct{}
}

func (s subscription) wants(topic Topic) bool {
	if len(s.topics) == 0 {
		return true
	}

	_, ok := s.topics[topic]
	return ok
}

// Events maintains a mapping of unique id and subscriptions so goroutines
// can register and receive events.
type Events struct {
	m       map[string]subscription
	mu      sync.RWMutex
	dropped atomic.Uint64
}

// New constructs an events for registering and receiving events.
func New() *Events {
	return &Events{
		m: make(map[string]subscription),
	}
}

// Shutdown closes and removes all channels that were provided by
// the call to Acquire.
func (evt *Events) Shutdown() {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	for id, sub := range evt.m {
		delete(evt.m, id)
		close(sub.ch)
	}
}

// Acquire takes a unique id and the topics to receive and returns a channel
// that receives the matching events. No topics means every event. Acquiring
// a known id replaces its topics and keeps the channel.
func (evt *Events) Acquire(id string, topics ...Topic) chan string {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	set := make(map[Topic]struct{}, len(topics))
	for _, topic := range topics {
		set[topic] = struct{}{}
	}

	if sub, exists := evt.m[id]; exists {
		sub.topics = set
		evt.m[id] = sub
		return sub.ch
	}

	// Since a message will be dropped if the websocket receiver is
	// not ready to receive, this arbitrary buffer should give the receiver
	// enough time to not lose a message. Websocket send could take long.
	const messageBuffer = 100

	sub := subscription{
		ch:     make(chan string, messageBuffer),
		topics: set,
	}
	evt.m[id] = sub

	return sub.ch
}

// Release closes and removes the channel that was provided by
// the call to Acquire.
func (evt *Events) Release(id string) error {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	sub, exists := evt.m[id]
	if !exists {
		return fmt.Errorf("id %q does not exist", id)
	}

	delete(evt.m, id)
	close(sub.ch)
	return nil
}

// Send signals an event to every subscription that wants its topic. Send
// will not block waiting for a receiver, an event a full channel can't take
// is counted as dropped.
func (evt *Events) Send(event string) {
	topic := TopicOf(event)

	evt.mu.RLock()
	defer evt.mu.RUnlock()

	for _, sub := range evt.m {
		if !sub.wants(topic) {
			continue
		}

		select {
		case sub.ch <- event:
		default:
			evt.dropped.Add(1)
		}
	}
}

// Dropped returns the number of events subscribers were too slow to take.
func (evt *Events) Dropped() uint64 {
	return evt.dropped.Load()
}
