package guest

import "strings"

// Masking rules for low-trust read paths. The thresholds are a product
// decision; keep every rule in this file so they can change together.

// MaskedContact is the privacy-reduced customer snapshot stored on a
// guest session.
type MaskedContact struct {
	Name   string `json:"name,omitempty"`
	Phone  string `json:"phone,omitempty"`
	Email  string `json:"email,omitempty"`
	ChatID string `json:"chat_id,omitempty"`
}

// Mask reduces raw contact fields to their masked form.
func Mask(name, phone, email, chatID string) MaskedContact {
	return MaskedContact{
		Name:   MaskName(name),
		Phone:  MaskPhone(phone),
		Email:  MaskEmail(email),
		ChatID: MaskChatID(chatID),
	}
}

// MaskPhone reveals only the last 4 digits of the digits-only form.
func MaskPhone(phone string) string {
	var digits []rune
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) == 0 {
		return ""
	}
	if len(digits) <= 4 {
		return string(digits)
	}
	return strings.Repeat("*", len(digits)-4) + string(digits[len(digits)-4:])
}

// MaskName reveals the first and last character.
func MaskName(name string) string {
	runes := []rune(strings.TrimSpace(name))
	if len(runes) == 0 {
		return ""
	}
	if len(runes) <= 2 {
		return string(runes[0]) + "*"
	}
	return string(runes[0]) + strings.Repeat("*", len(runes)-2) + string(runes[len(runes)-1])
}

// MaskEmail masks the local-part interior and keeps the domain.
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return MaskName(email)
	}
	local, domain := email[:at], email[at:]
	runes := []rune(local)
	if len(runes) <= 2 {
		return string(runes[0]) + "***" + domain
	}
	return string(runes[0]) + "***" + string(runes[len(runes)-1]) + domain
}

// MaskChatID reveals only the edges of a chat-platform id.
func MaskChatID(id string) string {
	runes := []rune(id)
	if len(runes) == 0 {
		return ""
	}
	if len(runes) <= 4 {
		return string(runes[0]) + "***"
	}
	return string(runes[:2]) + "***" + string(runes[len(runes)-2:])
}
