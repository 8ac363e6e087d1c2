// Package mail submits transactional emails to the delivery service.
// Rendering happens downstream; this package only picks the template and
// locale and carries the data the template needs.
package mail

import (
	"context"
	"strings"
	"sync"

	id "captable/pkg/domain"
)

// Template names one transactional email.
type Template string

const (
	TemplateVerificationSuccess Template = "company-verification-success"
	TemplateVerificationFailed  Template = "company-verification-failed"
)

const DefaultLocale = "pt-BR"

var supportedLocales = map[string]string{
	"pt-br": "pt-BR",
	"pt":    "pt-BR",
	"en":    "en",
	"en-us": "en",
	"es":    "es",
}

// NormalizeLocale maps a user preference onto a supported locale, falling
// back to pt-BR.
func NormalizeLocale(locale string) string {
	key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(locale), "_", "-"))
	if l, ok := supportedLocales[key]; ok {
		return l
	}
	if base, _, found := strings.Cut(key, "-"); found {
		if l, ok := supportedLocales[base]; ok {
			return l
		}
	}
	return DefaultLocale
}

var subjects = map[Template]map[string]string{
	TemplateVerificationSuccess: {
		"pt-BR": "Sua empresa foi verificada",
		"en":    "Your company has been verified",
		"es":    "Su empresa ha sido verificada",
	},
	TemplateVerificationFailed: {
		"pt-BR": "Não foi possível verificar o CNPJ da sua empresa",
		"en":    "We could not verify your company's CNPJ",
		"es":    "No pudimos verificar el CNPJ de su empresa",
	},
}

// Subject returns the localized subject line for template.
func Subject(t Template, locale string) string {
	return subjects[t][NormalizeLocale(locale)]
}

// Request is one email submission.
type Request struct {
	To        string            `json:"to"`
	Locale    string            `json:"locale"`
	Template  Template          `json:"template"`
	Subject   string            `json:"subject"`
	CompanyID id.CompanyID      `json:"companyId"`
	Data      map[string]string `json:"data"`
}

// Mailer submits an email for delivery.
type Mailer interface {
	Send(ctx context.Context, req Request) error
}

// Outbox keeps sent emails in memory.
type Outbox struct {
	mu   sync.Mutex
	sent []Request
}

func NewOutbox() *Outbox {
	return &Outbox{}
}

func (o *Outbox) Send(_ context.Context, req Request) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, req)
	return nil
}

func (o *Outbox) Sent() []Request {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Request(nil), o.sent...)
}
