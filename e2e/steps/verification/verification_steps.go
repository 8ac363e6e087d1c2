package verification

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"

	"captable/internal/company/models"
	"captable/internal/mail"
	"captable/internal/notification"
	"captable/internal/registry"
	dErrors "captable/pkg/domain-errors"
	audit "captable/pkg/platform/audit"
)

// TestContext is what the steps need from the scenario harness.
type TestContext interface {
	RegisterUser(email, locale string)
	SetRegistryStatus(cnpj string, status registry.RegistrationStatus)
	FailRegistry(cnpj string, times int)
	RegistryCalls(cnpj string) int
	CreateCompany(ctx context.Context, name, cnpj string) error
	RetryVerification(ctx context.Context) error
	UpdateStatus(ctx context.Context, to models.Status) error
	Drain(ctx context.Context) error
	Company(ctx context.Context) (*models.Company, error)
	SetupStatus(ctx context.Context) (*models.SetupStatus, error)
	Notifications() []notification.Request
	Emails() []mail.Request
	AuditActions(ctx context.Context) ([]audit.Action, error)
	Err() error
}

// RegisterSteps registers verification pipeline step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &verificationSteps{tc: tc}

	// Setup
	ctx.Step(`^a user with email "([^"]*)" and locale "([^"]*)"$`, steps.userWithEmail)
	ctx.Step(`^a user without an email address$`, steps.userWithoutEmail)
	ctx.Step(`^the registry reports "([^"]*)" with status "([^"]*)"$`, steps.registryStatus)
	ctx.Step(`^the registry is unavailable for the next (\d+) lookups of "([^"]*)"$`, steps.registryUnavailable)

	// Actions
	ctx.Step(`^the user creates company "([^"]*)" with registration number "([^"]*)"$`, steps.createCompany)
	ctx.Step(`^the user retries the verification$`, steps.retry)
	ctx.Step(`^the user changes the company status to "([^"]*)"$`, steps.changeStatus)
	ctx.Step(`^the verification queue is processed$`, steps.drain)

	// Assertions
	ctx.Step(`^the request succeeds$`, steps.requestSucceeds)
	ctx.Step(`^the request is rejected with "([^"]*)"$`, steps.requestRejected)
	ctx.Step(`^the company status is "([^"]*)"$`, steps.companyStatus)
	ctx.Step(`^the company is verified$`, steps.companyVerified)
	ctx.Step(`^the setup status shows cnpj validation "([^"]*)"$`, steps.setupStatus)
	ctx.Step(`^the verification error code is "([^"]*)"$`, steps.errorCode)
	ctx.Step(`^the registry was queried (\d+) times? for "([^"]*)"$`, steps.registryCalls)
	ctx.Step(`^(\d+) "([^"]*)" notifications? (?:was|were) sent$`, steps.notificationsSent)
	ctx.Step(`^(\d+) "([^"]*)" emails? (?:was|were) sent in locale "([^"]*)"$`, steps.emailsSent)
	ctx.Step(`^no email was sent$`, steps.noEmail)
	ctx.Step(`^the audit trail contains (\d+) "([^"]*)" events?$`, steps.auditContains)
}

type verificationSteps struct {
	tc TestContext
}

func (s *verificationSteps) userWithEmail(_ context.Context, email, locale string) error {
	s.tc.RegisterUser(email, locale)
	return nil
}

func (s *verificationSteps) userWithoutEmail(_ context.Context) error {
	s.tc.RegisterUser("", "pt-BR")
	return nil
}

func (s *verificationSteps) registryStatus(_ context.Context, cnpj, status string) error {
	s.tc.SetRegistryStatus(cnpj, registry.RegistrationStatus(status))
	return nil
}

func (s *verificationSteps) registryUnavailable(_ context.Context, times int, cnpj string) error {
	s.tc.FailRegistry(cnpj, times)
	return nil
}

func (s *verificationSteps) createCompany(ctx context.Context, name, cnpj string) error {
	return s.tc.CreateCompany(ctx, name, cnpj)
}

func (s *verificationSteps) retry(ctx context.Context) error {
	return s.tc.RetryVerification(ctx)
}

func (s *verificationSteps) changeStatus(ctx context.Context, status string) error {
	return s.tc.UpdateStatus(ctx, models.Status(status))
}

func (s *verificationSteps) drain(ctx context.Context) error {
	return s.tc.Drain(ctx)
}

func (s *verificationSteps) requestSucceeds(_ context.Context) error {
	if err := s.tc.Err(); err != nil {
		return fmt.Errorf("expected success, got %w", err)
	}
	return nil
}

func (s *verificationSteps) requestRejected(_ context.Context, code string) error {
	err := s.tc.Err()
	if err == nil {
		return fmt.Errorf("expected %s error, request succeeded", code)
	}
	if !dErrors.HasCode(err, dErrors.Code(code)) {
		return fmt.Errorf("expected %s error, got %s: %w", code, dErrors.CodeOf(err), err)
	}
	return nil
}

func (s *verificationSteps) companyStatus(ctx context.Context, status string) error {
	c, err := s.tc.Company(ctx)
	if err != nil {
		return err
	}
	if string(c.Status) != status {
		return fmt.Errorf("expected company status %s, got %s", status, c.Status)
	}
	return nil
}

func (s *verificationSteps) companyVerified(ctx context.Context) error {
	c, err := s.tc.Company(ctx)
	if err != nil {
		return err
	}
	if c.VerifiedAt == nil {
		return fmt.Errorf("expected verifiedAt to be set")
	}
	if c.Verification.Registry == nil {
		return fmt.Errorf("expected the registry snapshot to be stored")
	}
	return nil
}

func (s *verificationSteps) setupStatus(ctx context.Context, status string) error {
	st, err := s.tc.SetupStatus(ctx)
	if err != nil {
		return err
	}
	if string(st.CNPJValidation.Status) != status {
		return fmt.Errorf("expected cnpj validation %s, got %s", status, st.CNPJValidation.Status)
	}
	return nil
}

func (s *verificationSteps) errorCode(ctx context.Context, code string) error {
	c, err := s.tc.Company(ctx)
	if err != nil {
		return err
	}
	if c.Verification.Error == nil {
		return fmt.Errorf("expected verification error %s, record has none", code)
	}
	if c.Verification.Error.Code != code {
		return fmt.Errorf("expected verification error %s, got %s", code, c.Verification.Error.Code)
	}
	return nil
}

func (s *verificationSteps) registryCalls(_ context.Context, times int, cnpj string) error {
	if got := s.tc.RegistryCalls(cnpj); got != times {
		return fmt.Errorf("expected %d registry lookups, got %d", times, got)
	}
	return nil
}

func (s *verificationSteps) notificationsSent(_ context.Context, count int, kind string) error {
	got := 0
	for _, n := range s.tc.Notifications() {
		if string(n.Kind) == kind {
			got++
		}
	}
	if got != count {
		return fmt.Errorf("expected %d %s notifications, got %d", count, kind, got)
	}
	return nil
}

func (s *verificationSteps) emailsSent(_ context.Context, count int, template, locale string) error {
	got := 0
	for _, e := range s.tc.Emails() {
		if string(e.Template) == template && e.Locale == locale {
			got++
		}
	}
	if got != count {
		return fmt.Errorf("expected %d %s emails in %s, got %d", count, template, locale, got)
	}
	return nil
}

func (s *verificationSteps) noEmail(_ context.Context) error {
	if n := len(s.tc.Emails()); n != 0 {
		return fmt.Errorf("expected no email, got %d", n)
	}
	return nil
}

func (s *verificationSteps) auditContains(ctx context.Context, count int, action string) error {
	actions, err := s.tc.AuditActions(ctx)
	if err != nil {
		return err
	}
	got := 0
	for _, a := range actions {
		if string(a) == action {
			got++
		}
	}
	if got != count {
		return fmt.Errorf("expected %d %s audit events, got %d (trail: %v)", count, action, got, actions)
	}
	return nil
}

