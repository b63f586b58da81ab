package ingest

import (
	"fmt"
	"sync"
)

type State int

const (
	Idle State = iota
	ExchangingToken
	FetchingTransactions
	Persisting
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case ExchangingToken:
		return "ExchangingToken"
	case FetchingTransactions:
		return "FetchingTransactions"
	case Persisting:
		return "Persisting"
	case Done:
		return "Done"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// StatusSlot holds the latest human-readable status. Subscribers get every
// update on a buffered channel; slow subscribers miss updates rather than
// block the pipeline.
type StatusSlot struct {
	mu     sync.RWMutex
	latest string
	subs   []chan string
}

func NewStatusSlot() *StatusSlot {
	return &StatusSlot{}
}

func (s *StatusSlot) Publish(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.latest = msg
	for _, ch := range s.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (s *StatusSlot) Latest() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Subscribe returns a channel receiving later updates.
func (s *StatusSlot) Subscribe(buffer int) <-chan string {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan string, buffer)

	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}
