package tracking

import (
	"errors"
	"fmt"
)

// Bank holds one Filter per modality and advances them together, once
// per frame.
type Bank struct {
	filters [numModalities]*Filter
}

// NewBank creates a filter bank
func NewBank(config Config) *Bank {
	b := &Bank{}
	for _, m := range Modalities {
		b.filters[m] = NewFilter(m, config)
	}
	return b
}

// Update feeds every filter either its observation from frame or a miss.
// Diverged filters are reset and reported in the returned error while
// the remaining filters carry on.
func (b *Bank) Update(frame Frame) (Signals, error) {
	var out Signals
	var errs []error
	for _, m := range Modalities {
		obs, ok := frame.Get(m)
		if !ok {
			out[m] = b.filters[m].Miss()
			continue
		}
		sig, err := b.filters[m].Observe(obs)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m, err))
		}
		out[m] = sig
	}
	return out, errors.Join(errs...)
}

// Tick advances every filter by one missing frame.
func (b *Bank) Tick() Signals {
	var out Signals
	for _, m := range Modalities {
		out[m] = b.filters[m].Miss()
	}
	return out
}

// Signals returns the current state without advancing.
func (b *Bank) Signals() Signals {
	var out Signals
	for _, m := range Modalities {
		out[m] = b.filters[m].Signal()
	}
	return out
}

// Reset clears all filters.
func (b *Bank) Reset() {
	for _, f := range b.filters {
		f.Reset()
	}
}
