// internal/service/template_service.go
package service

import (
	"sort"
	"strings"

	"github.com/unclebandit/mailcampaign-sender/internal/model"
)

// RenderTemplate replaces every {{key}} in template with data[key] in a single
// pass. Placeholders not present in data are left untouched.
func RenderTemplate(template string, data map[string]string) string {
	if template == "" || len(data) == 0 {
		return template
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, "{{"+k+"}}", data[k])
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// MemberVariables returns the personalization attributes of m.
func MemberVariables(m *model.Member) map[string]string {
	if m == nil {
		m = &model.Member{}
	}
	fullName := m.FullName
	if fullName == "" {
		fullName = strings.TrimSpace(m.FirstName + " " + m.LastName)
	}
	return map[string]string{
		"first_name":   m.FirstName,
		"last_name":    m.LastName,
		"full_name":    fullName,
		"email":        m.Email,
		"mobile":       m.Mobile,
		"company_name": m.CompanyName,
		"address":      m.Address,
		"country":      m.Country,
	}
}

// Personalize renders text for one member.
func Personalize(text string, m *model.Member) string {
	return RenderTemplate(text, MemberVariables(m))
}
