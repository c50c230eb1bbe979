// Package protocol issues the service-request ticket that must exist before
// payment can be created.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"certflow/internal/checkout/models"
	"certflow/internal/platform/config"
	"certflow/internal/platform/metrics"
	dErrors "certflow/pkg/domain-errors"
)

// IssueRequest is the payload the upstream registration service expects.
// Birth date is normalized to YYYY-MM-DD before it leaves the issuer.
type IssueRequest struct {
	ProductCode string
	LegalName   string
	NationalID  string
	BirthDate   string
	Email       string
	PhoneArea   string
	PhoneNumber string
	Address     models.Address
}

// IssuerClient registers the certificate request upstream and returns the
// protocol number.
type IssuerClient interface {
	Register(ctx context.Context, req IssueRequest) (string, error)
}

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// Issuer validates the customer data and performs a single registration
// attempt. There is no retry; a failed attempt is reported to the caller
// and the flow stays where it is.
type Issuer struct {
	client  IssuerClient
	logger  *slog.Logger
	metrics *metrics.Metrics
	clock   Clock
	product config.Product
}

type Option func(*Issuer)

func WithLogger(logger *slog.Logger) Option {
	return func(i *Issuer) {
		i.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Issuer) {
		i.metrics = m
	}
}

func WithClock(clock Clock) Option {
	return func(i *Issuer) {
		if clock != nil {
			i.clock = clock
		}
	}
}

func New(client IssuerClient, product config.Product, opts ...Option) (*Issuer, error) {
	if client == nil {
		return nil, errors.New("issuer client is required")
	}
	i := &Issuer{
		client:  client,
		logger:  slog.Default(),
		clock:   time.Now,
		product: product,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Issue registers the request and returns the active ticket. Incomplete
// identity data fails fast without a collaborator call.
func (i *Issuer) Issue(ctx context.Context, customer *models.Customer) (*models.ProtocolTicket, error) {
	if !customer.IdentityComplete() {
		return nil, dErrors.New(dErrors.CodePrecondition, "identity data incomplete for protocol issuance")
	}

	birthDate, err := NormalizeBirthDate(customer.BirthDate)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid birth date")
	}

	phone := models.DigitsOnly(customer.Phone)
	if len(phone) < 10 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "phone must carry area code and number")
	}

	req := IssueRequest{
		ProductCode: i.product.Code,
		LegalName:   customer.LegalName,
		NationalID:  models.DigitsOnly(customer.NationalID),
		BirthDate:   birthDate,
		Email:       customer.Email,
		PhoneArea:   phone[:2],
		PhoneNumber: phone[2:],
		Address:     customer.Address,
	}

	number, err := i.client.Register(ctx, req)
	if err != nil {
		i.logger.ErrorContext(ctx, "protocol issuance failed", "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "protocol issuance failed")
	}

	ticket := &models.ProtocolTicket{
		Number:      number,
		ProductCode: i.product.Code,
		IssuedAt:    i.clock(),
		Status:      models.ProtocolActive,
	}
	if i.metrics != nil {
		i.metrics.ProtocolsIssued.Inc()
	}
	i.logger.InfoContext(ctx, "protocol issued", "protocol", number)
	return ticket, nil
}

// NormalizeBirthDate accepts YYYY-MM-DD, DD/MM/YYYY and bare DDMMYYYY and
// returns YYYY-MM-DD. The result is parsed back to reject impossible dates.
func NormalizeBirthDate(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	var normalized string
	switch {
	case len(s) == 10 && s[4] == '-' && s[7] == '-':
		normalized = s
	case len(s) == 10 && s[2] == '/' && s[5] == '/':
		normalized = fmt.Sprintf("%s-%s-%s", s[6:10], s[3:5], s[0:2])
	case len(models.DigitsOnly(s)) == 8 && s == models.DigitsOnly(s):
		normalized = fmt.Sprintf("%s-%s-%s", s[4:8], s[2:4], s[0:2])
	default:
		return "", fmt.Errorf("unrecognized date format %q", raw)
	}
	if _, err := time.Parse("2006-01-02", normalized); err != nil {
		return "", fmt.Errorf("invalid date %q", raw)
	}
	return normalized, nil
}
