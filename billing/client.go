package billing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBaseURL   = "https://citrn.sgp.net.br/api/central"
	DefaultURAURL    = "https://citrn.sgp.net.br/api/ura/chamado/"
	DefaultRadiusURL = "https://citrn.sgp.net.br/ws/radius/radacct/list/all/"
)

// ErrUnavailable is returned when the provider API cannot answer and no
// cached copy exists
var ErrUnavailable = errors.New("billing api unavailable")

// ErrRejected is returned when the provider API refuses the credentials or
// the request itself
var ErrRejected = errors.New("billing api rejected the request")

// Options configures a Client
type Options struct {
	BaseURL   string
	URAURL    string
	RadiusURL string
	App       string
	Token     string
	Timeout   time.Duration
	Cache     InvoiceCache
}

// Client talks to the SGP provider API
type Client struct {
	baseURL   string
	uraURL    string
	radiusURL string
	app       string
	token     string
	http      *http.Client
	cache     InvoiceCache
}

// NewClient creates a provider API client
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.URAURL == "" {
		opts.URAURL = DefaultURAURL
	}
	if opts.RadiusURL == "" {
		opts.RadiusURL = DefaultRadiusURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		uraURL:    opts.URAURL,
		radiusURL: opts.RadiusURL,
		app:       opts.App,
		token:     opts.Token,
		http:      &http.Client{Timeout: opts.Timeout},
		cache:     opts.Cache,
	}
}

func (c *Client) form(creds Credentials, withApp bool) url.Values {
	v := url.Values{}
	v.Set("cpfcnpj", CleanDocument(creds.Document))
	v.Set("senha", creds.Password)
	v.Set("contrato", creds.Contract)
	if withApp {
		v.Set("app", c.app)
		v.Set("token", c.token)
	}
	return v
}

// postForm posts a form to an endpoint below the base URL and decodes JSON.
// The HTTP status is returned alongside the body for callers that inspect it.
func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values) (int, any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *Client) postJSON(ctx context.Context, target string, payload any) (int, any, error) {
	body, err := sonic.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (int, any, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read %s: %w", req.URL.Path, err)
	}

	var data any
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := sonic.Unmarshal(raw, &data); err != nil {
			return resp.StatusCode, nil, fmt.Errorf("decode %s (HTTP %d): %w", req.URL.Path, resp.StatusCode, err)
		}
	}
	return resp.StatusCode, data, nil
}

func ok(status int) bool {
	return status >= 200 && status < 300
}

// Invoices lists the contract's invoices, newest due date first. When the
// API is unreachable or failing server-side, the last list cached for the
// same credentials is served instead. Rejections never fall back.
func (c *Client) Invoices(ctx context.Context, creds Credentials) ([]Invoice, error) {
	if creds.Contract == "" || creds.Contract == "0" {
		return nil, nil
	}

	key := invoiceCacheKey(creds)
	invoices, err := c.fetchInvoices(ctx, creds)
	if err == nil {
		if c.cache != nil {
			if cerr := c.cache.Store(ctx, key, invoices); cerr != nil {
				log.Warn().Err(cerr).Str("contract", creds.Contract).Msg("⚠️ Failed to cache invoices")
			}
		}
		return invoices, nil
	}
	if errors.Is(err, ErrRejected) {
		log.Warn().Err(err).Str("contract", creds.Contract).Msg("⚠️ Invoice request rejected")
		return nil, err
	}

	log.Warn().Err(err).Str("contract", creds.Contract).Msg("⚠️ Invoice API failed, trying cache")
	if c.cache != nil {
		cached, cerr := c.cache.Load(ctx, key)
		if cerr == nil {
			return cached, nil
		}
		if !errors.Is(cerr, ErrCacheMiss) {
			log.Warn().Err(cerr).Msg("⚠️ Invoice cache read failed")
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (c *Client) fetchInvoices(ctx context.Context, creds Credentials) ([]Invoice, error) {
	status, data, err := c.postForm(ctx, "/titulos/", c.form(creds, true))
	if status >= 400 && status < 500 {
		return nil, fmt.Errorf("%w: falha ao buscar faturas: HTTP %d", ErrRejected, status)
	}
	if err != nil {
		return nil, err
	}
	if !ok(status) {
		return nil, fmt.Errorf("falha ao buscar faturas: HTTP %d", status)
	}

	var raw []map[string]any
	switch {
	case objects(field(field(data, "data"), "faturas")) != nil:
		raw = objects(field(field(data, "data"), "faturas"))
	case objects(data) != nil:
		raw = objects(data)
	case objects(field(data, "titulos")) != nil:
		raw = objects(field(data, "titulos"))
	default:
		raw = objects(field(data, "faturas"))
	}
	if msg, rejected := payloadRejected(data, raw != nil); rejected {
		return nil, fmt.Errorf("%w: %s", ErrRejected, msg)
	}

	invoices := make([]Invoice, 0, len(raw))
	for _, item := range raw {
		invoices = append(invoices, invoiceFrom(item))
	}
	sort.SliceStable(invoices, func(i, j int) bool {
		a, _ := parseDate(invoices[i].DueDate)
		b, _ := parseDate(invoices[j].DueDate)
		return a.After(b)
	})
	return invoices, nil
}

// payloadRejected reports whether a 2xx object body carries an application
// level failure: a status other than success, or a bare message with no
// invoice list.
func payloadRejected(data any, hasList bool) (string, bool) {
	obj, isObj := data.(map[string]any)
	if !isObj {
		return "", false
	}
	msg := text(obj["msg"])
	if msg == "" {
		msg = "resposta sem faturas"
	}
	if s, has := obj["status"]; has && !successStatus(s) {
		return msg, true
	}
	if done, has := obj["sucesso"].(bool); has && !done {
		return msg, true
	}
	if !hasList && text(obj["msg"]) != "" {
		return msg, true
	}
	return "", false
}

func successStatus(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "ok", "success", "sucesso", "1", "200":
			return true
		}
		return false
	default:
		n := parseAmount(x)
		return n == 1 || n == 200
	}
}

func invoiceFrom(item map[string]any) Invoice {
	inv := Invoice{
		ID:            text(first(item, "id", "id_titulo", "numero_documento")),
		DueDate:       text(first(item, "vencimento", "data_vencimento")),
		UpdatedDue:    text(item["vencimento_atualizado"]),
		Amount:        parseAmount(first(item, "valor", "valor_titulo", "valor_total")),
		Corrected:     parseAmount(first(item, "valorcorrigido", "valor_corrigido", "valor")),
		Paid:          parseAmount(first(item, "valor_pago", "pago")),
		PaidAt:        text(first(item, "data_pagamento", "pagamento")),
		Status:        text(first(item, "status", "situacao")),
		DigitableLine: text(first(item, "linhadigitavel", "linha_digitavel", "codigo_barra")),
		PixCode:       text(first(item, "codigopix", "qr_code_pix")),
		BoletoLink:    text(first(item, "link_completo", "link", "url_imprimir", "url")),
		ReceiptLink:   text(first(item, "recibo", "link_recibo")),
		Description:   text(first(item, "descricao", "historico")),
	}
	if inv.Status == "" {
		inv.Status = "Aberto"
		if inv.PaidAt != "" {
			inv.Status = "Pago"
		}
	}
	if inv.Description == "" {
		inv.Description = "Fatura Mensal"
	}
	return inv
}

// SendInvoiceEmail asks the provider to email the current invoice
func (c *Client) SendInvoiceEmail(ctx context.Context, creds Credentials, email string) (EmailResult, error) {
	form := c.form(creds, false)
	form.Set("email", email)

	status, data, err := c.postForm(ctx, "/envia2via/", form)
	if err != nil {
		return EmailResult{}, err
	}

	msg := text(field(data, "msg"))
	sent := ok(status) && (parseAmount(field(data, "status")) == 1 ||
		field(data, "sucesso") == true ||
		strings.Contains(strings.ToLower(msg), "sucesso"))

	if msg == "" {
		msg = "Erro ao enviar e-mail."
		if sent {
			msg = "E-mail enviado com sucesso."
		}
	}
	return EmailResult{Sent: sent, Message: msg}, nil
}

// TrafficExtract returns the usage extract of a month. A nil extract with a
// nil error means the API has no data for that month.
func (c *Client) TrafficExtract(ctx context.Context, creds Credentials, month, year int) (*Traffic, error) {
	form := c.form(creds, true)
	form.Set("ano", fmt.Sprintf("%d", year))
	form.Set("mes", fmt.Sprintf("%02d", month))

	status, data, err := c.postForm(ctx, "/extratouso/", form)
	if err != nil {
		return nil, err
	}
	if !ok(status) {
		return nil, fmt.Errorf("falha ao buscar extrato de tráfego: HTTP %d", status)
	}

	payload, isObj := field(data, "data").(map[string]any)
	if parseAmount(field(data, "status")) != 200 || !isObj {
		return nil, nil
	}

	t := &Traffic{
		Year:  text(payload["ano"]),
		Month: text(payload["mes"]),
		Plan:  text(payload["plano"]),
		Login: text(payload["login"]),
		Total: parseAmount(payload["total"]),
	}
	for _, s := range objects(payload["list"]) {
		t.Sessions = append(t.Sessions, TrafficSession{
			Date:     text(s["data"]),
			Start:    text(s["dataini"]),
			End:      text(s["datafim"]),
			Download: parseAmount(s["download"]),
			Upload:   parseAmount(s["upload"]),
			Total:    parseAmount(s["total"]),
			Duration: text(s["tempo"]),
			IP:       text(s["ip"]),
			MAC:      text(s["mac"]),
		})
	}
	return t, nil
}

// ConnectionDiagnostics returns every PPPoE session of the customer, newest
// first. A session without stop time is online.
func (c *Client) ConnectionDiagnostics(ctx context.Context, creds Credentials) ([]RadiusSession, error) {
	status, data, err := c.postJSON(ctx, c.radiusURL, map[string]any{
		"app":         c.app,
		"token":       c.token,
		"tipoconexao": "ppp",
		"cpfcnpj":     CleanDocument(creds.Document),
	})
	if err != nil {
		return nil, err
	}
	if !ok(status) {
		return nil, fmt.Errorf("radius api error: HTTP %d", status)
	}

	var services []map[string]any
	switch {
	case objects(field(data, "result")) != nil:
		services = objects(field(data, "result"))
	case objects(field(field(data, "data"), "result")) != nil:
		services = objects(field(field(data, "data"), "result"))
	case objects(field(data, "data")) != nil:
		services = objects(field(data, "data"))
	default:
		services = objects(data)
	}

	var sessions []RadiusSession
	for _, svc := range services {
		for _, s := range objects(svc["radacct"]) {
			stop := text(s["acctstoptime"])
			sessions = append(sessions, RadiusSession{
				Username:       textOr(s["username"], svc["pppoe_login"]),
				Start:          text(s["acctstarttime"]),
				Stop:           stop,
				UploadBytes:    parseAmount(s["acctinputoctets"]),
				DownloadBytes:  parseAmount(s["acctoutputoctets"]),
				TerminateCause: text(s["acctterminatecause"]),
				NASAddress:     text(s["nasipaddress"]),
				IP:             textOr(s["framedipaddress"], svc["ip"]),
				MAC:            text(s["callingstationid"]),
				SessionID:      text(s["acctsessionid"]),
				Login:          text(svc["pppoe_login"]),
				Plan:           text(svc["plano"]),
				Online:         stop == "",
			})
		}
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].StartTime().After(sessions[j].StartTime())
	})
	return sessions, nil
}

// UnlockTrust requests a temporary trust unlock of a blocked contract
func (c *Client) UnlockTrust(ctx context.Context, creds Credentials) (UnlockResult, error) {
	status, data, err := c.postForm(ctx, "/promessapagamento/", c.form(creds, false))
	if err != nil {
		return UnlockResult{}, err
	}
	if !ok(status) {
		return UnlockResult{}, fmt.Errorf("falha na conexão ao tentar liberar serviço: HTTP %d", status)
	}

	return UnlockResult{
		Status:   int(parseAmount(field(data, "status"))),
		Company:  text(field(data, "razaosocial")),
		Protocol: text(field(data, "protocolo")),
		Unlocked: field(data, "liberado") == true,
		Message:  text(field(data, "msg")),
	}, nil
}

// OpenTicket opens a support ticket on the contract
func (c *Client) OpenTicket(ctx context.Context, creds Credentials, t Ticket) (TicketResult, error) {
	status, data, err := c.postJSON(ctx, c.uraURL, map[string]any{
		"app":               c.app,
		"token":             c.token,
		"contrato":          creds.Contract,
		"ocorrenciatipo":    t.OccurrenceType,
		"conteudo":          t.Content,
		"observacao":        fmt.Sprintf("Contato: %s | Tel: %s", t.Contact, t.ContactPhone),
		"notificar_cliente": 1,
	})
	if err != nil {
		return TicketResult{}, err
	}
	if !ok(status) {
		return TicketResult{}, fmt.Errorf("erro ao abrir chamado: HTTP %d", status)
	}

	return TicketResult{
		Status:   int(parseAmount(field(data, "status"))),
		Message:  text(field(data, "msg")),
		Protocol: text(field(data, "protocolo")),
		TicketID: text(field(data, "id_chamado")),
	}, nil
}
