// Package notification delivers in-app notifications to users.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	id "captable/pkg/domain"
)

// Kind is the notification type the client renders.
type Kind string

const (
	KindCompanyActivated  Kind = "COMPANY_ACTIVATED"
	KindCompanyCNPJFailed Kind = "COMPANY_CNPJ_FAILED"
)

// Request carries everything needed to render the notification without
// reading the company again.
type Request struct {
	ID          uuid.UUID    `json:"id"`
	UserID      id.UserID    `json:"userId"`
	Kind        Kind         `json:"kind"`
	CompanyID   id.CompanyID `json:"companyId"`
	CompanyName string       `json:"companyName"`
	ErrorCode   string       `json:"errorCode,omitempty"`
	Message     string       `json:"message,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// Notifier submits a notification. Delivery is fire-and-forget.
type Notifier interface {
	Submit(ctx context.Context, req Request) error
}

// Recorder keeps submitted notifications in memory.
type Recorder struct {
	mu       sync.Mutex
	requests []Request
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Submit(_ context.Context, req Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	return nil
}

// Sent returns a copy of everything submitted so far.
func (r *Recorder) Sent() []Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Request(nil), r.requests...)
}
