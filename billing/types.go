package billing

import (
	"strings"
	"time"
)

// Credentials identify the customer against the provider API. They are held
// by the session and never exposed to the agent.
type Credentials struct {
	Document string `json:"cpfCnpj"`
	Password string `json:"password"`
	Contract string `json:"contractId"`
}

// Valid reports whether the credentials can authorize API calls
func (c Credentials) Valid() bool {
	return CleanDocument(c.Document) != "" && c.Contract != "" && c.Contract != "0"
}

// Invoice is a receivable title of a contract
type Invoice struct {
	ID            string  `json:"id"`
	DueDate       string  `json:"vencimento"`
	UpdatedDue    string  `json:"vencimento_atualizado,omitempty"`
	Amount        float64 `json:"valor"`
	Corrected     float64 `json:"valor_corrigido,omitempty"`
	Paid          float64 `json:"valor_pago,omitempty"`
	PaidAt        string  `json:"data_pagamento,omitempty"`
	Status        string  `json:"situacao"`
	DigitableLine string  `json:"linha_digitavel,omitempty"`
	PixCode       string  `json:"codigo_pix,omitempty"`
	BoletoLink    string  `json:"link_boleto,omitempty"`
	ReceiptLink   string  `json:"link_recibo,omitempty"`
	Description   string  `json:"descricao,omitempty"`
}

// IsPaid reports whether the invoice situation mentions payment
func (i Invoice) IsPaid() bool {
	return strings.Contains(strings.ToLower(i.Status), "pago")
}

// OpenInvoices filters out paid invoices, keeping order
func OpenInvoices(invoices []Invoice) []Invoice {
	var open []Invoice
	for _, inv := range invoices {
		if !inv.IsPaid() {
			open = append(open, inv)
		}
	}
	return open
}

// RadiusSession is one PPPoE accounting session
type RadiusSession struct {
	Username       string
	Start          string
	Stop           string
	UploadBytes    float64
	DownloadBytes  float64
	TerminateCause string
	NASAddress     string
	IP             string
	MAC            string
	SessionID      string
	Login          string
	Plan           string
	Online         bool
}

// StartTime parses the session start, zero when unknown
func (r RadiusSession) StartTime() time.Time {
	t, _ := parseDate(r.Start)
	return t
}

// TrafficSession is one line of the monthly usage extract
type TrafficSession struct {
	Date     string
	Start    string
	End      string
	Download float64
	Upload   float64
	Total    float64
	Duration string
	IP       string
	MAC      string
}

// Traffic is the monthly usage extract
type Traffic struct {
	Year     string
	Month    string
	Plan     string
	Login    string
	Total    float64
	Sessions []TrafficSession
}

// Totals sums download and upload over all sessions
func (t *Traffic) Totals() (download, upload float64) {
	for _, s := range t.Sessions {
		download += s.Download
		upload += s.Upload
	}
	return download, upload
}

// UnlockResult is the answer to a trust-unlock request
type UnlockResult struct {
	Status   int
	Company  string
	Protocol string
	Unlocked bool
	Message  string
}

// Success reports application-level success
func (u UnlockResult) Success() bool {
	return u.Status == 1 || u.Unlocked
}

// Ticket describes a support ticket to open
type Ticket struct {
	Content        string
	Contact        string
	ContactPhone   string
	OccurrenceType string
}

// TicketResult is the answer to a ticket request
type TicketResult struct {
	Status   int
	Message  string
	Protocol string
	TicketID string
}

// Success reports application-level success
func (t TicketResult) Success() bool {
	return t.Status == 1 || t.Status == 200 || t.Protocol != "" || t.TicketID != ""
}

// EmailResult is the answer to an invoice resend
type EmailResult struct {
	Sent    bool
	Message string
}
