// Package store persists checkout snapshots so an interrupted purchase can
// resume. Sensitive fields are encrypted at rest; snapshots older than the
// TTL are purged on read.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"certflow/internal/checkout/models"
)

// Snapshot is the persisted unit: the step the holder was on, the full form
// state, and when it was written.
type Snapshot struct {
	CurrentStep models.StepIndex      `json:"currentStep"`
	State       *models.CheckoutState `json:"state"`
	SavedAt     time.Time             `json:"savedAt"`
}

// Store is the persistence gateway. Load returns (nil, nil) when no
// snapshot exists or the stored one has expired; expired snapshots are
// removed as a side effect.
type Store interface {
	Save(ctx context.Context, key string, snap *Snapshot) error
	Load(ctx context.Context, key string) (*Snapshot, error)
	Clear(ctx context.Context, key string) error
}

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// codec serializes snapshots with field-level encryption applied on the way
// in and removed on the way out. All store implementations share it.
type codec struct {
	cipher *Cipher
}

func (c codec) encode(snap *Snapshot) ([]byte, error) {
	out := *snap
	if snap.State != nil {
		state := cloneState(snap.State)
		c.applyToState(state, c.cipher.Encrypt)
		out.State = state
	}
	payload, err := json.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return payload, nil
}

func (c codec) decode(payload []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.State != nil {
		c.applyToState(snap.State, c.cipher.Decrypt)
	}
	return &snap, nil
}

// applyToState runs fn over every sensitive field in place. The transform
// must tolerate values in either form; Decrypt passes plaintext through so
// snapshots written before encryption shipped still load.
func (c codec) applyToState(state *models.CheckoutState, fn func(string) (string, error)) {
	apply := func(field *string) {
		if *field == "" {
			return
		}
		if v, err := fn(*field); err == nil {
			*field = v
		}
	}
	if state.Customer != nil {
		apply(&state.Customer.NationalID)
		apply(&state.Customer.BirthDate)
		apply(&state.Customer.Email)
		apply(&state.Customer.Phone)
		apply(&state.Customer.Verification.AltCredentialNumber)
	}
	if state.Payer != nil && state.Payer.Details != nil {
		apply(&state.Payer.Details.Document)
		apply(&state.Payer.Details.Email)
		apply(&state.Payer.Details.Phone)
	}
}

// cloneState deep-copies the pointered parts the codec mutates.
func cloneState(in *models.CheckoutState) *models.CheckoutState {
	out := *in
	if in.Customer != nil {
		customer := *in.Customer
		out.Customer = &customer
	}
	if in.Payer != nil {
		payer := *in.Payer
		if in.Payer.Details != nil {
			details := *in.Payer.Details
			payer.Details = &details
		}
		out.Payer = &payer
	}
	if in.Schedule != nil {
		schedule := *in.Schedule
		out.Schedule = &schedule
	}
	if in.Protocol != nil {
		protocol := *in.Protocol
		out.Protocol = &protocol
	}
	if in.Payment != nil {
		payment := *in.Payment
		out.Payment = &payment
	}
	return &out
}
