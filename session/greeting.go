package session

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	fallbackName    = "Cliente"
	birthdayMessage = " E meus parabéns! Feliz aniversário! Muita saúde e paz pra você."
	notInformed     = "Não informado"
)

var (
	nameLine  = regexp.MustCompile(`Nome: (.*?)(?:\n|$)`)
	birthLine = regexp.MustCompile(`Data Nascimento: (.*?)(?:\n|$)`)
)

// Greeting builds the opening line the agent must speak, from the customer
// context and the local time of the call.
func Greeting(contextText string, now time.Time) string {
	return fmt.Sprintf("%s, %s!%s Aqui é o Maxxi. Como posso ajudar?",
		salutation(now.Hour()), firstName(contextText), birthdayClause(contextText, now))
}

func salutation(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "Bom dia"
	case hour >= 12 && hour < 18:
		return "Boa tarde"
	default:
		return "Boa noite"
	}
}

func firstName(contextText string) string {
	m := nameLine.FindStringSubmatch(contextText)
	if m == nil {
		return fallbackName
	}
	fields := strings.Fields(m[1])
	if len(fields) == 0 {
		return fallbackName
	}
	return fields[0]
}

func birthdayClause(contextText string, now time.Time) string {
	m := birthLine.FindStringSubmatch(contextText)
	if m == nil {
		return ""
	}
	raw := strings.TrimSpace(m[1])
	if raw == "" || raw == notInformed {
		return ""
	}

	month, day, ok := parseBirthDate(raw)
	if !ok || month != int(now.Month()) || day != now.Day() {
		return ""
	}
	return birthdayMessage
}

// parseBirthDate accepts YYYY-MM-DD, YYYY/MM/DD and DD/MM/YYYY, with an
// optional time part after the date.
func parseBirthDate(raw string) (month, day int, ok bool) {
	if i := strings.IndexAny(raw, " T"); i > 0 {
		raw = raw[:i]
	}

	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == '-' || r == '/' })
	if len(parts) != 3 {
		return 0, 0, false
	}

	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, 0, false
		}
		nums[i] = n
	}

	switch {
	case len(parts[0]) == 4:
		month, day = nums[1], nums[2]
	case len(parts[2]) == 4:
		day, month = nums[0], nums[1]
	default:
		return 0, 0, false
	}

	if month < 1 || month > 12 || day < 1 || day > 31 {
		return 0, 0, false
	}
	return month, day, true
}
