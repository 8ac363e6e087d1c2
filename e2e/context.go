// Package e2e runs the verification pipeline end to end in-process: the
// company service, an in-memory queue, the mock registry and the real
// worker and side-effect coordinator.
package e2e

import (
	"context"
	"fmt"
	"time"

	"captable/internal/company/models"
	"captable/internal/company/service"
	"captable/internal/company/store"
	"captable/internal/directory"
	"captable/internal/mail"
	"captable/internal/notification"
	"captable/internal/registry"
	"captable/internal/verification"
	"captable/internal/verification/queue"
	id "captable/pkg/domain"
	audit "captable/pkg/platform/audit"
	"captable/pkg/platform/audit/publisher"
	auditmemory "captable/pkg/platform/audit/store/memory"
)

// TestContext holds one scenario's wiring and state.
type TestContext struct {
	Companies  *store.InMemoryStore
	Registry   *registry.MockClient
	Queue      *queue.Memory
	Service    *service.Service
	Worker     *verification.Worker
	Contacts   *directory.InMemory
	Notifier   *notification.Recorder
	Outbox     *mail.Outbox
	AuditStore *auditmemory.InMemoryStore

	UserID    id.UserID
	CompanyID id.CompanyID
	LastErr   error
}

// NewTestContext wires a fresh pipeline.
func NewTestContext() *TestContext {
	tc := &TestContext{
		Companies:  store.NewInMemory(),
		Registry:   registry.NewMockClient(),
		Queue:      queue.NewMemory(queue.DefaultPolicy()),
		Contacts:   directory.NewInMemory(),
		Notifier:   notification.NewRecorder(),
		Outbox:     mail.NewOutbox(),
		AuditStore: auditmemory.NewInMemoryStore(),
		UserID:     id.NewUserID(),
	}
	auditPublisher := publisher.NewPublisher(tc.AuditStore)
	tc.Service = service.New(tc.Companies, verification.NewDispatcher(tc.Queue),
		service.WithAuditPublisher(auditPublisher))
	coordinator := verification.NewCoordinator(auditPublisher, tc.Notifier, tc.Outbox, tc.Contacts)
	tc.Worker = verification.NewWorker(tc.Companies, tc.Registry, coordinator,
		verification.WithLookupTimeout(2*time.Second))
	return tc
}

func (tc *TestContext) RegisterUser(email, locale string) {
	tc.Contacts.Put(directory.Contact{UserID: tc.UserID, Email: email, Locale: locale, FirstName: "Test"})
}

func (tc *TestContext) SetRegistryStatus(cnpj string, status registry.RegistrationStatus) {
	tc.Registry.Statuses[models.NormalizeCNPJ(cnpj)] = status
}

func (tc *TestContext) FailRegistry(cnpj string, times int) {
	tc.Registry.FailFirst[models.NormalizeCNPJ(cnpj)] = times
}

func (tc *TestContext) RegistryCalls(cnpj string) int {
	return tc.Registry.Calls(models.NormalizeCNPJ(cnpj))
}

func (tc *TestContext) CreateCompany(ctx context.Context, name, cnpj string) error {
	c, err := tc.Service.Create(ctx, service.CreateRequest{Name: name, RegistrationNumber: cnpj, CreatorUserID: tc.UserID})
	tc.LastErr = err
	if err == nil {
		tc.CompanyID = c.ID
	}
	return nil
}

func (tc *TestContext) RetryVerification(ctx context.Context) error {
	_, err := tc.Service.RetryVerification(ctx, tc.CompanyID, tc.UserID)
	tc.LastErr = err
	return nil
}

func (tc *TestContext) UpdateStatus(ctx context.Context, to models.Status) error {
	_, err := tc.Service.UpdateStatus(ctx, tc.CompanyID, to, tc.UserID)
	tc.LastErr = err
	return nil
}

func (tc *TestContext) Drain(ctx context.Context) error {
	return tc.Queue.Drain(ctx, tc.Worker)
}

func (tc *TestContext) Company(ctx context.Context) (*models.Company, error) {
	if tc.CompanyID.IsNil() {
		return nil, fmt.Errorf("no company created in this scenario")
	}
	return tc.Service.Get(ctx, tc.CompanyID)
}

func (tc *TestContext) SetupStatus(ctx context.Context) (*models.SetupStatus, error) {
	return tc.Service.SetupStatus(ctx, tc.CompanyID)
}

func (tc *TestContext) Notifications() []notification.Request { return tc.Notifier.Sent() }
func (tc *TestContext) Emails() []mail.Request                 { return tc.Outbox.Sent() }

func (tc *TestContext) AuditActions(ctx context.Context) ([]audit.Action, error) {
	events, err := tc.AuditStore.ListByCompany(ctx, tc.CompanyID)
	if err != nil {
		return nil, err
	}
	actions := make([]audit.Action, 0, len(events))
	for _, e := range events {
		actions = append(actions, e.Action)
	}
	return actions, nil
}

func (tc *TestContext) Err() error { return tc.LastErr }
