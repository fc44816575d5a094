// Package bookingtest provides test doubles for the booking ports.
package bookingtest

import (
	"context"
	"sync"

	"github.com/ariefcatur/go-tour-booking/internal/booking"
)

var _ booking.EventPublisher = (*Recorder)(nil)

// Recorder keeps every published event. Set Err to make Publish fail.
type Recorder struct {
	Err error

	mu     sync.Mutex
	events []booking.Event
}

func (r *Recorder) Publish(_ context.Context, ev booking.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Events() []booking.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]booking.Event(nil), r.events...)
}

func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}
