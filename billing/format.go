package billing

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// CleanDocument strips everything but digits from a CPF/CNPJ
func CleanDocument(doc string) string {
	var b strings.Builder
	for _, r := range doc {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// BytesToGB renders a byte count as gigabytes with a decimal comma
func BytesToGB(bytes float64) string {
	if bytes <= 0 || math.IsNaN(bytes) {
		return "0,00 GB"
	}
	gb := bytes / (1024 * 1024 * 1024)
	return strings.Replace(strconv.FormatFloat(gb, 'f', 2, 64), ".", ",", 1) + " GB"
}

// FormatCurrency renders an amount in Brazilian reais, e.g. "R$ 1.234,56"
func FormatCurrency(value float64) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		value = 0
	}

	sign := ""
	if value < 0 {
		sign = "-"
		value = -value
	}

	cents := int64(math.Round(value * 100))
	whole := strconv.FormatInt(cents/100, 10)

	var grouped strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(r)
	}
	return fmt.Sprintf("%sR$ %s,%02d", sign, grouped.String(), cents%100)
}

// FormatDate renders an API date as DD/MM/YYYY when it can be parsed
func FormatDate(s string) string {
	if t, ok := parseDate(s); ok {
		return t.Format("02/01/2006")
	}
	return s
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseAmount accepts numbers and strings like "R$ 1.234,56" or "99.90"
func parseAmount(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(x, "R$", ""))
		if strings.Contains(s, ",") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// text renders scalar JSON values as strings
func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// textOr returns the first of two values that renders non-empty
func textOr(v, fallback any) string {
	if s := text(v); s != "" {
		return s
	}
	return text(fallback)
}

// first returns the first non-empty field among keys
func first(m map[string]any, keys ...string) any {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && s == "" {
			continue
		}
		if f, isNum := v.(float64); isNum && f == 0 {
			continue
		}
		return v
	}
	return nil
}

func objects(v any) []map[string]any {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func field(v any, key string) any {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return m[key]
}
