package functions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/citmax/maxxi-live/billing"
	"github.com/citmax/maxxi-live/deezer"
	"github.com/citmax/maxxi-live/live"
	"github.com/citmax/maxxi-live/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBilling struct {
	mu sync.Mutex

	invoices    []billing.Invoice
	invoicesErr error
	email       billing.EmailResult
	emailTo     string
	emailCalls  int
	traffic     *billing.Traffic
	trafficArgs [2]int
	sessions    []billing.RadiusSession
	unlock      billing.UnlockResult
	ticket      billing.TicketResult
	opened      billing.Ticket
}

func (f *fakeBilling) Invoices(context.Context, billing.Credentials) ([]billing.Invoice, error) {
	return f.invoices, f.invoicesErr
}

func (f *fakeBilling) SendInvoiceEmail(_ context.Context, _ billing.Credentials, email string) (billing.EmailResult, error) {
	f.mu.Lock()
	f.emailTo = email
	f.emailCalls++
	f.mu.Unlock()
	return f.email, nil
}

func (f *fakeBilling) TrafficExtract(_ context.Context, _ billing.Credentials, month, year int) (*billing.Traffic, error) {
	f.mu.Lock()
	f.trafficArgs = [2]int{month, year}
	f.mu.Unlock()
	return f.traffic, nil
}

func (f *fakeBilling) ConnectionDiagnostics(context.Context, billing.Credentials) ([]billing.RadiusSession, error) {
	return f.sessions, nil
}

func (f *fakeBilling) UnlockTrust(context.Context, billing.Credentials) (billing.UnlockResult, error) {
	return f.unlock, nil
}

func (f *fakeBilling) OpenTicket(_ context.Context, _ billing.Credentials, t billing.Ticket) (billing.TicketResult, error) {
	f.mu.Lock()
	f.opened = t
	f.mu.Unlock()
	return f.ticket, nil
}

type fakeMusic struct {
	tracks []deezer.Track
	err    error
}

func (f fakeMusic) Search(context.Context, string) ([]deezer.Track, error) {
	return f.tracks, f.err
}

var creds = billing.Credentials{Document: "123.456.789-00", Password: "x", Contract: "42"}

func newTestDispatcher(b *fakeBilling, music fakeMusic) *Dispatcher {
	d := NewDispatcher(b, music, nil)
	d.now = func() time.Time { return time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC) }
	return d
}

func TestDispatchPreservesOrderAndIDs(t *testing.T) {
	b := &fakeBilling{
		sessions: []billing.RadiusSession{{Online: true}},
		unlock:   billing.UnlockResult{Status: 1},
	}
	d := newTestDispatcher(b, fakeMusic{})

	calls := []live.ToolCall{
		{ID: "a", Name: CheckConnection},
		{ID: "b", Name: "doSomethingElse"},
		{ID: "c", Name: UnlockTrust},
	}
	results := d.Dispatch(context.Background(), Session{Credentials: creds}, calls)

	require.Len(t, results, 3)
	assert.Equal(t, live.ToolResult{ID: "a", Name: CheckConnection, Result: "O cliente está online agora."}, results[0])
	assert.Equal(t, live.ToolResult{ID: "b", Name: "doSomethingElse", Result: "Ferramenta não implementada."}, results[1])
	assert.Equal(t, live.ToolResult{ID: "c", Name: UnlockTrust, Result: "Desbloqueio de confiança solicitado com sucesso."}, results[2])
	assert.Equal(t, map[string]any{"result": "Ferramenta não implementada."}, results[1].Response())
}

func TestDispatchEmptyBatch(t *testing.T) {
	d := newTestDispatcher(&fakeBilling{}, fakeMusic{})
	assert.Empty(t, d.Dispatch(context.Background(), Session{}, nil))
}

func TestCheckInvoices(t *testing.T) {
	tests := []struct {
		name     string
		invoices []billing.Invoice
		want     string
	}{
		{
			name: "open with pix",
			invoices: []billing.Invoice{
				{DueDate: "2025-03-15", Amount: 99.9, Status: "Aberto", PixCode: "000201pix"},
				{DueDate: "2025-02-15", Amount: 99.9, Status: "Pago"},
				{DueDate: "2025-01-15", Amount: 89.9, Status: "Vencido"},
			},
			want: "Encontrei 2 faturas abertas. A primeira vence em 15/03/2025, valor R$ 99,90. Código Pix: 000201pix",
		},
		{
			name:     "open without pix",
			invoices: []billing.Invoice{{DueDate: "2025-03-15", Amount: 1234.5, Status: "Aberto"}},
			want:     "Encontrei 1 faturas abertas. A primeira vence em 15/03/2025, valor R$ 1.234,50.",
		},
		{
			name:     "all paid",
			invoices: []billing.Invoice{{Status: "Pago"}},
			want:     "Não há faturas pendentes.",
		},
		{
			name: "none",
			want: "Não há faturas pendentes.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDispatcher(&fakeBilling{invoices: tt.invoices}, fakeMusic{})
			got := d.Invoke(context.Background(), Session{Credentials: creds}, live.ToolCall{Name: CheckInvoices})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBackendErrorBecomesText(t *testing.T) {
	m := metrics.New("test")
	d := NewDispatcher(&fakeBilling{invoicesErr: errors.New("timeout")}, fakeMusic{}, m)

	got := d.Invoke(context.Background(), Session{Credentials: creds}, live.ToolCall{Name: CheckInvoices})
	assert.Equal(t, "Erro ao executar: timeout", got)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues(CheckInvoices, "error")), 1e-9)
}

func TestMissingCredentials(t *testing.T) {
	d := newTestDispatcher(&fakeBilling{}, fakeMusic{})

	for _, name := range []string{SendInvoiceEmail, OpenSupportTicket, UnlockTrust, CheckInvoices, CheckConnection, CheckTraffic} {
		got := d.Invoke(context.Background(), Session{}, live.ToolCall{Name: name})
		assert.Contains(t, got, "credenciais", name)
	}
}

func TestSendInvoiceEmail(t *testing.T) {
	var visuals []Visual
	sess := Session{
		Credentials: creds,
		Context:     "Nome: João Silva\nEmail: joao@example.com\nPlano: 300MB",
		OnVisual:    func(v Visual) { visuals = append(visuals, v) },
	}

	b := &fakeBilling{email: billing.EmailResult{Sent: true, Message: "Fatura enviada com sucesso"}}
	d := newTestDispatcher(b, fakeMusic{})

	got := d.Invoke(context.Background(), sess, live.ToolCall{Name: SendInvoiceEmail})
	assert.Equal(t, "Fatura enviada com sucesso", got)
	assert.Equal(t, "joao@example.com", b.emailTo)
	require.Len(t, visuals, 1)
	assert.Equal(t, Visual{ViewType: "status", Title: "E-mail Enviado", Content: "Fatura enviada com sucesso", SecondaryContent: "joao@example.com"}, visuals[0])

	got = d.Invoke(context.Background(), sess, live.ToolCall{Name: SendInvoiceEmail, Args: map[string]any{"email": "outro@example.com"}})
	assert.Equal(t, "Fatura enviada com sucesso", got)
	assert.Equal(t, "outro@example.com", b.emailTo)
}

func TestSendInvoiceEmailNoAddress(t *testing.T) {
	tests := []struct {
		name    string
		context string
		args    map[string]any
	}{
		{"no email line", "Nome: João\n", nil},
		{"empty email line", "Nome: João\nEmail: \nPlano: 300MB", nil},
		{"not registered", "Nome: João\nEmail: Não cadastrado\nPlano: 300MB", nil},
		{"not registered at end", "Nome: João\nEmail: Não cadastrado", map[string]any{"email": ""}},
		{"not registered as argument", "Nome: João\n", map[string]any{"email": "Não cadastrado"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var visuals []Visual
			b := &fakeBilling{email: billing.EmailResult{Sent: true, Message: "Fatura enviada com sucesso"}}
			d := newTestDispatcher(b, fakeMusic{})
			sess := Session{Credentials: creds, Context: tt.context, OnVisual: func(v Visual) { visuals = append(visuals, v) }}

			got := d.Invoke(context.Background(), sess, live.ToolCall{Name: SendInvoiceEmail, Args: tt.args})
			assert.Equal(t, "Erro: E-mail não encontrado no cadastro.", got)
			assert.Zero(t, b.emailCalls, "billing API must not be called")
			assert.Empty(t, b.emailTo)
			assert.Empty(t, visuals)
		})
	}
}

func TestShowVisualInfo(t *testing.T) {
	var got Visual
	sess := Session{OnVisual: func(v Visual) { got = v }}
	d := newTestDispatcher(&fakeBilling{}, fakeMusic{})

	res := d.Invoke(context.Background(), sess, live.ToolCall{Name: ShowVisualInfo, Args: map[string]any{
		"viewType": "pix", "title": "Pix", "content": "000201", "secondaryContent": "Vence 15/03",
	}})
	assert.Equal(t, "Tela atualizada com sucesso.", res)
	assert.Equal(t, Visual{ViewType: "pix", Title: "Pix", Content: "000201", SecondaryContent: "Vence 15/03"}, got)
}

func TestCheckConnection(t *testing.T) {
	online := &fakeBilling{sessions: []billing.RadiusSession{
		{Online: true, IP: "100.64.0.10", Login: "joao", Start: "2025-03-09 08:00:00"},
	}}
	d := newTestDispatcher(online, fakeMusic{})
	assert.Equal(t,
		"O cliente está online agora. IP: 100.64.0.10. Login: joao. Conectado desde 09/03/2025.",
		d.Invoke(context.Background(), Session{Credentials: creds}, live.ToolCall{Name: CheckConnection}))

	offline := &fakeBilling{sessions: []billing.RadiusSession{
		{Stop: "2025-03-09 23:10:00", TerminateCause: "Lost-Carrier"},
	}}
	d = newTestDispatcher(offline, fakeMusic{})
	assert.Equal(t,
		"O equipamento parece estar offline. Última conexão encerrada em 09/03/2025 (motivo: Lost-Carrier).",
		d.Invoke(context.Background(), Session{Credentials: creds}, live.ToolCall{Name: CheckConnection}))

	d = newTestDispatcher(&fakeBilling{}, fakeMusic{})
	assert.Equal(t, "O equipamento parece estar offline.",
		d.Invoke(context.Background(), Session{Credentials: creds}, live.ToolCall{Name: CheckConnection}))
}

func TestCheckTraffic(t *testing.T) {
	b := &fakeBilling{traffic: &billing.Traffic{Sessions: []billing.TrafficSession{
		{Download: 1.5 * 1024 * 1024 * 1024, Upload: 0.5 * 1024 * 1024 * 1024},
	}}}
	d := newTestDispatcher(b, fakeMusic{})

	got := d.Invoke(context.Background(), Session{Credentials: creds}, live.ToolCall{Name: CheckTraffic, Args: map[string]any{"mes": float64(2), "ano": "2025"}})
	assert.Equal(t, "Consumo de 02/2025: download 1,50 GB, upload 0,50 GB, total 2,00 GB.", got)
	assert.Equal(t, [2]int{2, 2025}, b.trafficArgs)

	b.traffic = nil
	got = d.Invoke(context.Background(), Session{Credentials: creds}, live.ToolCall{Name: CheckTraffic})
	assert.Equal(t, "Não encontrei dados de consumo para 03/2025.", got)
	assert.Equal(t, [2]int{3, 2025}, b.trafficArgs)
}

func TestUnlockTrustFailure(t *testing.T) {
	d := newTestDispatcher(&fakeBilling{unlock: billing.UnlockResult{Message: "Cliente já utilizou o desbloqueio"}}, fakeMusic{})
	got := d.Invoke(context.Background(), Session{Credentials: creds}, live.ToolCall{Name: UnlockTrust})
	assert.Equal(t, "Não foi possível realizar o desbloqueio: Cliente já utilizou o desbloqueio", got)
}

func TestOpenSupportTicket(t *testing.T) {
	b := &fakeBilling{ticket: billing.TicketResult{Status: 1, Protocol: "2025031000123"}}
	d := newTestDispatcher(b, fakeMusic{})

	got := d.Invoke(context.Background(), Session{Credentials: creds}, live.ToolCall{Name: OpenSupportTicket, Args: map[string]any{
		"conteudo": "Sem sinal desde ontem", "contato": "João", "contato_numero": "11999990000", "ocorrenciatipo": float64(200),
	}})
	assert.Equal(t, "Chamado aberto com sucesso. Protocolo: 2025031000123.", got)
	assert.Equal(t, billing.Ticket{Content: "Sem sinal desde ontem", Contact: "João", ContactPhone: "11999990000", OccurrenceType: "200"}, b.opened)

	got = d.Invoke(context.Background(), Session{Credentials: creds}, live.ToolCall{Name: OpenSupportTicket, Args: map[string]any{"conteudo": "x"}})
	assert.Contains(t, got, "Erro:")
}

func TestSearchDeezer(t *testing.T) {
	track := deezer.Track{
		Title:  "Tempo Perdido",
		Link:   "https://deezer.com/track/1",
		Artist: deezer.Artist{Name: "Legião Urbana"},
		Album:  deezer.Album{Title: "Dois", CoverMedium: "m.jpg", CoverBig: "b.jpg"},
	}

	var visual Visual
	var playing deezer.Track
	sess := Session{
		OnVisual: func(v Visual) { visual = v },
		OnTrack:  func(t deezer.Track) { playing = t },
	}

	d := newTestDispatcher(&fakeBilling{}, fakeMusic{tracks: []deezer.Track{track}})
	got := d.Invoke(context.Background(), sess, live.ToolCall{Name: SearchDeezer, Args: map[string]any{"query": "tempo perdido"}})

	assert.Equal(t, "Encontrei a música Tempo Perdido de Legião Urbana. Coloquei na tela para você.", got)
	assert.Equal(t, "music", visual.ViewType)
	assert.Equal(t, "Tempo Perdido", visual.Title)
	assert.Equal(t, "Legião Urbana", visual.Content)
	assert.JSONEq(t, `{"cover":"b.jpg","link":"https://deezer.com/track/1"}`, visual.SecondaryContent)
	assert.Equal(t, track, playing)

	d = newTestDispatcher(&fakeBilling{}, fakeMusic{})
	got = d.Invoke(context.Background(), sess, live.ToolCall{Name: SearchDeezer, Args: map[string]any{"query": "zzzz"}})
	assert.Equal(t, "Não encontrei essa música no Deezer.", got)
}

func TestDeclarations(t *testing.T) {
	decls := Declarations()
	require.Len(t, decls, 8)

	names := make(map[string]bool)
	for _, d := range decls {
		names[d.Name] = true
		require.NotNil(t, d.Parameters, d.Name)
	}
	for _, n := range []string{SendInvoiceEmail, ShowVisualInfo, OpenSupportTicket, UnlockTrust, CheckInvoices, CheckConnection, CheckTraffic, SearchDeezer} {
		assert.True(t, names[n], n)
	}
	assert.Len(t, Tools(), 1)
}
