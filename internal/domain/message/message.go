// Package message models short messages waiting for local delivery.
package message

import (
	"context"
	"fmt"
	"time"

	"github.com/orris-inc/cellcore/internal/shared/id"
)

// DefaultAttemptBudget is the number of delivery attempts a message gets.
const DefaultAttemptBudget = 3

// PendingMessage is one queued short message.
type PendingMessage struct {
	ID             string    `json:"id"`
	SenderIMSI     string    `json:"sender_imsi"`
	SenderNumber   string    `json:"sender_number"`
	SenderEndpoint string    `json:"sender_endpoint,omitempty"`
	DestIMSI       string    `json:"dest_imsi"`
	DestNumber     string    `json:"dest_number"`
	Payload        string    `json:"payload"`
	NextAttempt    time.Time `json:"next_attempt"`
	Attempts       int       `json:"attempts"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewPendingMessage creates a message due immediately with the full attempt budget.
func NewPendingMessage(senderIMSI, senderNumber, senderEndpoint, destIMSI, destNumber, payload string, budget int, now time.Time) (*PendingMessage, error) {
	if destIMSI == "" {
		return nil, fmt.Errorf("message without destination")
	}
	if budget <= 0 {
		budget = DefaultAttemptBudget
	}

	msgID, err := id.NewMessageID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}

	return &PendingMessage{
		ID:             msgID,
		SenderIMSI:     senderIMSI,
		SenderNumber:   senderNumber,
		SenderEndpoint: senderEndpoint,
		DestIMSI:       destIMSI,
		DestNumber:     destNumber,
		Payload:        payload,
		NextAttempt:    now,
		Attempts:       budget,
		CreatedAt:      now,
	}, nil
}

// Due reports whether the message may be attempted at now.
func (m *PendingMessage) Due(now time.Time) bool {
	return !m.NextAttempt.After(now)
}

// Defer pushes the next attempt without consuming one.
func (m *PendingMessage) Defer(now time.Time, cooldown time.Duration) {
	m.NextAttempt = now.Add(cooldown)
}

// Fail consumes one attempt and reschedules. It returns false once the budget is spent.
func (m *PendingMessage) Fail(now time.Time, backoff time.Duration) bool {
	m.Attempts--
	if m.Attempts <= 0 {
		m.Attempts = 0
		return false
	}
	m.NextAttempt = now.Add(backoff)
	return true
}

// Delivery is what the messaging collaborator places on the network.
type Delivery struct {
	MessageID    string `json:"message_id"`
	From         string `json:"from"`
	FromNumber   string `json:"from_number"`
	FromEndpoint string `json:"from_endpoint,omitempty"`
	To           string `json:"to"`
	ToNumber     string `json:"to_number"`
	Payload      string `json:"payload"`
}

// DeliveryTo builds the delivery of m towards location.
func (m *PendingMessage) DeliveryTo(location string) Delivery {
	return Delivery{
		MessageID:    m.ID,
		From:         m.SenderIMSI,
		FromNumber:   m.SenderNumber,
		FromEndpoint: m.SenderEndpoint,
		To:           location,
		ToNumber:     m.DestNumber,
		Payload:      m.Payload,
	}
}

// Placer places one message. A false result without error means the far end refused it.
type Placer interface {
	PlaceMessage(ctx context.Context, d Delivery) (bool, error)
}
