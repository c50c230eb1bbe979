package protocol

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"certflow/internal/checkout/models"
	"certflow/internal/platform/config"
	dErrors "certflow/pkg/domain-errors"
)

type IssuerTestSuite struct {
	suite.Suite

	client *MockIssuerClient
	issuer *Issuer
}

func TestIssuerTestSuite(t *testing.T) {
	suite.Run(t, new(IssuerTestSuite))
}

func (s *IssuerTestSuite) SetupTest() {
	s.client = NewMockIssuerClient()
	issuer, err := New(s.client, config.Product{Code: "ecpf-a1", Name: "e-CPF A1 (1 year)", Price: 109.00})
	s.Require().NoError(err)
	s.issuer = issuer
}

func (s *IssuerTestSuite) completeCustomer() *models.Customer {
	return &models.Customer{
		NationalID: "529.982.247-25",
		LegalName:  "MARIA DE SOUZA",
		BirthDate:  "15/01/1990",
		Email:      "maria@example.com",
		Phone:      "(11) 98888-7777",
		Address: models.Address{
			PostalCode: "01310-100",
			Street:     "Avenida Paulista",
			Number:     "1000",
			District:   "Bela Vista",
			City:       "São Paulo",
			Region:     "SP",
		},
	}
}

func (s *IssuerTestSuite) TestIssueReturnsActiveTicket() {
	ticket, err := s.issuer.Issue(context.Background(), s.completeCustomer())
	s.Require().NoError(err)
	s.NotEmpty(ticket.Number)
	s.Equal("ecpf-a1", ticket.ProductCode)
	s.Equal(models.ProtocolActive, ticket.Status)
	s.False(ticket.IssuedAt.IsZero())
}

func (s *IssuerTestSuite) TestIssueFailsFastOnIncompleteData() {
	tests := []struct {
		name   string
		mutate func(*models.Customer)
	}{
		{"missing name", func(c *models.Customer) { c.LegalName = "" }},
		{"missing email", func(c *models.Customer) { c.Email = "" }},
		{"missing birth date", func(c *models.Customer) { c.BirthDate = "" }},
		{"short national id", func(c *models.Customer) { c.NationalID = "1234" }},
		{"missing address number", func(c *models.Customer) { c.Address.Number = "" }},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			customer := s.completeCustomer()
			tt.mutate(customer)
			before := s.client.next

			_, err := s.issuer.Issue(context.Background(), customer)
			s.Require().Error(err)
			s.Equal(dErrors.CodePrecondition, dErrors.GetCode(err))
			s.Equal(before, s.client.next)
		})
	}
}

func (s *IssuerTestSuite) TestIssueSingleAttemptOnFailure() {
	s.client.Err = errors.New("upstream 500")
	_, err := s.issuer.Issue(context.Background(), s.completeCustomer())
	s.Require().Error(err)
	s.Equal(dErrors.CodeUnavailable, dErrors.GetCode(err))
}

func (s *IssuerTestSuite) TestIssueRejectsBadDate() {
	customer := s.completeCustomer()
	customer.BirthDate = "1990/15/01"
	_, err := s.issuer.Issue(context.Background(), customer)
	s.Require().Error(err)
	s.Equal(dErrors.CodeBadRequest, dErrors.GetCode(err))
}

func (s *IssuerTestSuite) TestIssueHonorsLatency() {
	s.client.Latency = 50 * time.Millisecond
	start := time.Now()
	_, err := s.issuer.Issue(context.Background(), s.completeCustomer())
	s.Require().NoError(err)
	s.GreaterOrEqual(time.Since(start), 50*time.Millisecond)
}

func TestNormalizeBirthDate(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"already iso", "1990-01-15", "1990-01-15", false},
		{"slash format", "15/01/1990", "1990-01-15", false},
		{"bare digits", "15011990", "1990-01-15", false},
		{"padded input", " 15/01/1990 ", "1990-01-15", false},
		{"impossible day", "32/01/1990", "", true},
		{"impossible month", "15/13/1990", "", true},
		{"garbage", "not-a-date", "", true},
		{"empty", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeBirthDate(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
