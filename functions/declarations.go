package functions

import "google.golang.org/genai"

// Tool names understood by the dispatcher
const (
	SendInvoiceEmail  = "sendInvoiceEmail"
	ShowVisualInfo    = "showVisualInfo"
	OpenSupportTicket = "openSupportTicket"
	UnlockTrust       = "unlockTrust"
	CheckInvoices     = "checkInvoices"
	CheckConnection   = "checkConnection"
	CheckTraffic      = "checkTraffic"
	SearchDeezer      = "searchDeezer"
)

func str(description string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Description: description}
}

func object(properties map[string]*genai.Schema, required ...string) *genai.Schema {
	if properties == nil {
		properties = map[string]*genai.Schema{}
	}
	return &genai.Schema{Type: genai.TypeObject, Properties: properties, Required: required}
}

// Declarations returns the closed set of tools offered to the agent
func Declarations() []*genai.FunctionDeclaration {
	return []*genai.FunctionDeclaration{
		{
			Name:        SendInvoiceEmail,
			Description: "Envia a 2ª via da fatura para o e-mail do cliente. Tente usar o e-mail do contexto antes de perguntar um novo.",
			Parameters: object(map[string]*genai.Schema{
				"email": str("E-mail de destino. Opcional se já existir no contexto do cliente."),
			}),
		},
		{
			Name:        ShowVisualInfo,
			Description: "Exibe informações visuais na tela do usuário (QR Codes, Texto Grande, Status). Use isso quando o usuário pedir Pix ou detalhes.",
			Parameters: object(map[string]*genai.Schema{
				"viewType":         str("Tipo de visualização: 'pix', 'invoice_detail', 'status', 'text'"),
				"title":            str("Título curto para exibir"),
				"content":          str("Conteúdo principal (ex: Código Pix Copia e Cola, Valor, ou Status)"),
				"secondaryContent": str("Informação secundária (ex: Data de Vencimento, IP)"),
			}, "viewType", "title", "content"),
		},
		{
			Name:        OpenSupportTicket,
			Description: "Abre um chamado técnico ou solicitação para o provedor quando o problema não pode ser resolvido pela IA.",
			Parameters: object(map[string]*genai.Schema{
				"conteudo":       str("Descrição detalhada do problema ou solicitação."),
				"contato":        str("Nome da pessoa para contato."),
				"contato_numero": str("Número de telefone para contato (obrigatório)."),
				"ocorrenciatipo": str("ID do tipo de ocorrência conforme lista (ex: \"200\" para reparo, \"22\" para financeiro)."),
			}, "conteudo", "contato", "contato_numero", "ocorrenciatipo"),
		},
		{
			Name:        UnlockTrust,
			Description: "Realiza o desbloqueio de confiança (liberação temporária) da internet por 3 dias para clientes bloqueados ou reduzidos.",
			Parameters:  object(nil),
		},
		{
			Name:        CheckInvoices,
			Description: "Consulta faturas em aberto, valores, vencimentos e códigos Pix.",
			Parameters:  object(nil),
		},
		{
			Name:        CheckConnection,
			Description: "Verifica status técnico atual da conexão (Online/Offline), IP, MAC e histórico de quedas recente.",
			Parameters:  object(nil),
		},
		{
			Name:        CheckTraffic,
			Description: "Consulta o consumo de internet (download/upload) de um mês específico.",
			Parameters: object(map[string]*genai.Schema{
				"mes": {Type: genai.TypeNumber, Description: "Mês numérico (1-12). Se não informado, usa o atual."},
				"ano": {Type: genai.TypeNumber, Description: "Ano com 4 dígitos. Se não informado, usa o atual."},
			}),
		},
		{
			Name:        SearchDeezer,
			Description: "Busca músicas na biblioteca do Deezer. Use para recomendar faixas ou quando o usuário pedir música.",
			Parameters: object(map[string]*genai.Schema{
				"query": str("Termo de busca (Nome da música, artista ou gênero)."),
			}, "query"),
		},
	}
}

// Tools wraps the declarations for a Live session config
func Tools() []*genai.Tool {
	return []*genai.Tool{{FunctionDeclarations: Declarations()}}
}
