package functions

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/citmax/maxxi-live/billing"
	"github.com/citmax/maxxi-live/deezer"
	"github.com/citmax/maxxi-live/live"
	"github.com/citmax/maxxi-live/metrics"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const maxConcurrentCalls = 4

// Billing is the provider API surface the tools use
type Billing interface {
	Invoices(ctx context.Context, creds billing.Credentials) ([]billing.Invoice, error)
	SendInvoiceEmail(ctx context.Context, creds billing.Credentials, email string) (billing.EmailResult, error)
	TrafficExtract(ctx context.Context, creds billing.Credentials, month, year int) (*billing.Traffic, error)
	ConnectionDiagnostics(ctx context.Context, creds billing.Credentials) ([]billing.RadiusSession, error)
	UnlockTrust(ctx context.Context, creds billing.Credentials) (billing.UnlockResult, error)
	OpenTicket(ctx context.Context, creds billing.Credentials, t billing.Ticket) (billing.TicketResult, error)
}

// MusicSearcher finds tracks for searchDeezer
type MusicSearcher interface {
	Search(ctx context.Context, query string) ([]deezer.Track, error)
}

// Visual is a display request surfaced to the host UI
type Visual struct {
	ViewType         string `json:"viewType"`
	Title            string `json:"title"`
	Content          string `json:"content"`
	SecondaryContent string `json:"secondaryContent,omitempty"`
}

// Session carries the per-session inputs of tool execution. Credentials are
// read-only and never shown to the agent.
type Session struct {
	Credentials billing.Credentials
	Context     string
	OnVisual    func(Visual)
	OnTrack     func(deezer.Track)
}

func (s Session) visual(v Visual) {
	if s.OnVisual != nil {
		s.OnVisual(v)
	}
}

// Dispatcher executes agent tool calls against the backend services
type Dispatcher struct {
	billing Billing
	music   MusicSearcher
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewDispatcher creates a dispatcher. metrics may be nil.
func NewDispatcher(b Billing, music MusicSearcher, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		billing: b,
		music:   music,
		metrics: m,
		now:     time.Now,
	}
}

// Dispatch runs a batch of calls concurrently and returns exactly one result
// per call, in call order and carrying the call's ID.
func (d *Dispatcher) Dispatch(ctx context.Context, sess Session, calls []live.ToolCall) []live.ToolResult {
	results := make([]live.ToolResult, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentCalls)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = live.ToolResult{
				ID:     call.ID,
				Name:   call.Name,
				Result: d.Invoke(gctx, sess, call),
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Invoke runs one call and returns the text reported back to the agent.
// Failures are reported as text, never as Go errors.
func (d *Dispatcher) Invoke(ctx context.Context, sess Session, call live.ToolCall) string {
	started := d.now()
	log.Info().Str("tool", call.Name).Str("id", call.ID).Msg("🔧 Function call")

	result, err := d.invoke(ctx, sess, call)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		log.Warn().Err(err).Str("tool", call.Name).Msg("⚠️ Function call failed")
		result = "Erro ao executar: " + err.Error()
	}
	d.metrics.ToolCall(call.Name, outcome, d.now().Sub(started).Seconds())
	return result
}

func (d *Dispatcher) invoke(ctx context.Context, sess Session, call live.ToolCall) (string, error) {
	args := call.Args
	if args == nil {
		args = map[string]any{}
	}

	switch call.Name {
	case ShowVisualInfo:
		return d.showVisualInfo(sess, args), nil
	case SearchDeezer:
		return d.searchDeezer(ctx, sess, args)
	case SendInvoiceEmail, OpenSupportTicket, UnlockTrust, CheckInvoices, CheckConnection, CheckTraffic:
	default:
		log.Warn().Str("tool", call.Name).Msg("⚠️ Unknown function called")
		return "Ferramenta não implementada.", nil
	}

	if !sess.Credentials.Valid() {
		return "Erro de autenticação: credenciais do cliente indisponíveis.", nil
	}

	switch call.Name {
	case SendInvoiceEmail:
		return d.sendInvoiceEmail(ctx, sess, args)
	case OpenSupportTicket:
		return d.openSupportTicket(ctx, sess, args)
	case UnlockTrust:
		return d.unlockTrust(ctx, sess)
	case CheckInvoices:
		return d.checkInvoices(ctx, sess)
	case CheckConnection:
		return d.checkConnection(ctx, sess)
	default:
		return d.checkTraffic(ctx, sess, args)
	}
}

var emailLine = regexp.MustCompile(`Email: (.*?)(?:\n|$)`)

// contextEmail extracts the customer email from the context text
func contextEmail(contextText string) string {
	m := emailLine.FindStringSubmatch(contextText)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func (d *Dispatcher) sendInvoiceEmail(ctx context.Context, sess Session, args map[string]any) (string, error) {
	email := stringArg(args, "email")
	if email == "" {
		email = contextEmail(sess.Context)
	}
	if email == "" || email == "Não cadastrado" {
		return "Erro: E-mail não encontrado no cadastro.", nil
	}

	res, err := d.billing.SendInvoiceEmail(ctx, sess.Credentials, email)
	if err != nil {
		return "", err
	}

	title := "E-mail Enviado"
	if !res.Sent {
		title = "Falha no Envio"
	}
	sess.visual(Visual{ViewType: "status", Title: title, Content: res.Message, SecondaryContent: email})
	return res.Message, nil
}

func (d *Dispatcher) showVisualInfo(sess Session, args map[string]any) string {
	sess.visual(Visual{
		ViewType:         stringArg(args, "viewType"),
		Title:            stringArg(args, "title"),
		Content:          stringArg(args, "content"),
		SecondaryContent: stringArg(args, "secondaryContent"),
	})
	return "Tela atualizada com sucesso."
}

func (d *Dispatcher) checkInvoices(ctx context.Context, sess Session) (string, error) {
	invoices, err := d.billing.Invoices(ctx, sess.Credentials)
	if err != nil {
		return "", err
	}

	open := billing.OpenInvoices(invoices)
	if len(open) == 0 {
		return "Não há faturas pendentes.", nil
	}

	inv := open[0]
	result := fmt.Sprintf("Encontrei %d faturas abertas. A primeira vence em %s, valor %s.",
		len(open), billing.FormatDate(inv.DueDate), billing.FormatCurrency(inv.Amount))
	if inv.PixCode != "" {
		result += " Código Pix: " + inv.PixCode
	}
	return result, nil
}

func (d *Dispatcher) checkConnection(ctx context.Context, sess Session) (string, error) {
	sessions, err := d.billing.ConnectionDiagnostics(ctx, sess.Credentials)
	if err != nil {
		return "", err
	}

	for _, s := range sessions {
		if !s.Online {
			continue
		}
		result := "O cliente está online agora."
		if s.IP != "" {
			result += " IP: " + s.IP + "."
		}
		if s.Login != "" {
			result += " Login: " + s.Login + "."
		}
		if s.Start != "" {
			result += " Conectado desde " + billing.FormatDate(s.Start) + "."
		}
		return result, nil
	}

	result := "O equipamento parece estar offline."
	if len(sessions) > 0 && sessions[0].Stop != "" {
		result += " Última conexão encerrada em " + billing.FormatDate(sessions[0].Stop)
		if sessions[0].TerminateCause != "" {
			result += " (motivo: " + sessions[0].TerminateCause + ")"
		}
		result += "."
	}
	return result, nil
}

func (d *Dispatcher) checkTraffic(ctx context.Context, sess Session, args map[string]any) (string, error) {
	now := d.now()
	month := intArg(args, "mes")
	if month < 1 || month > 12 {
		month = int(now.Month())
	}
	year := intArg(args, "ano")
	if year <= 0 {
		year = now.Year()
	}

	traffic, err := d.billing.TrafficExtract(ctx, sess.Credentials, month, year)
	if err != nil {
		return "", err
	}
	if traffic == nil {
		return fmt.Sprintf("Não encontrei dados de consumo para %02d/%d.", month, year), nil
	}

	down, up := traffic.Totals()
	total := traffic.Total
	if total <= 0 {
		total = down + up
	}
	return fmt.Sprintf("Consumo de %02d/%d: download %s, upload %s, total %s.",
		month, year, billing.BytesToGB(down), billing.BytesToGB(up), billing.BytesToGB(total)), nil
}

func (d *Dispatcher) unlockTrust(ctx context.Context, sess Session) (string, error) {
	res, err := d.billing.UnlockTrust(ctx, sess.Credentials)
	if err != nil {
		return "", err
	}

	if !res.Success() {
		msg := res.Message
		if msg == "" {
			msg = "solicitação recusada pelo sistema"
		}
		return "Não foi possível realizar o desbloqueio: " + msg, nil
	}

	result := "Desbloqueio de confiança solicitado com sucesso."
	if res.Protocol != "" {
		result += " Protocolo: " + res.Protocol + "."
	}
	return result, nil
}

func (d *Dispatcher) openSupportTicket(ctx context.Context, sess Session, args map[string]any) (string, error) {
	ticket := billing.Ticket{
		Content:        stringArg(args, "conteudo"),
		Contact:        stringArg(args, "contato"),
		ContactPhone:   stringArg(args, "contato_numero"),
		OccurrenceType: stringArg(args, "ocorrenciatipo"),
	}
	if ticket.Content == "" || ticket.Contact == "" || ticket.ContactPhone == "" || ticket.OccurrenceType == "" {
		return "Erro: para abrir o chamado preciso da descrição, do nome e telefone de contato e do tipo de ocorrência.", nil
	}

	res, err := d.billing.OpenTicket(ctx, sess.Credentials, ticket)
	if err != nil {
		return "", err
	}
	if !res.Success() {
		msg := res.Message
		if msg == "" {
			msg = "solicitação recusada pelo sistema"
		}
		return "Não foi possível abrir o chamado: " + msg, nil
	}

	result := "Chamado aberto com sucesso."
	if res.Protocol != "" {
		result += " Protocolo: " + res.Protocol + "."
	}
	return result, nil
}

func (d *Dispatcher) searchDeezer(ctx context.Context, sess Session, args map[string]any) (string, error) {
	query := stringArg(args, "query")
	if query == "" {
		return "Erro: informe o nome da música, artista ou gênero.", nil
	}

	tracks, err := d.music.Search(ctx, query)
	if err != nil {
		return "", err
	}
	if len(tracks) == 0 {
		return "Não encontrei essa música no Deezer.", nil
	}

	best := tracks[0]
	extra, err := sonic.MarshalString(map[string]string{
		"cover": best.Cover(),
		"link":  best.Link,
	})
	if err != nil {
		return "", fmt.Errorf("encode track details: %w", err)
	}

	sess.visual(Visual{ViewType: "music", Title: best.Title, Content: best.Artist.Name, SecondaryContent: extra})
	if sess.OnTrack != nil {
		sess.OnTrack(best)
	}
	return fmt.Sprintf("Encontrei a música %s de %s. Coloquei na tela para você.", best.Title, best.Artist.Name), nil
}

// stringArg reads a string argument, tolerating numbers
func stringArg(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	default:
		return ""
	}
}

// intArg reads an integer argument, tolerating numeric strings
func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}
