package validation

import (
	"html"

	"github.com/microcosm-cc/bluemonday"

	"zentoso/backend/internal/domain"
)

// strict removes every element and attribute and keeps text content.
var strict = bluemonday.StrictPolicy()

// Sanitize returns plain text. Entities escaped by the policy are decoded
// because every sink (mail, LINE, CSV) is text, not HTML.
func Sanitize(input string) string {
	return html.UnescapeString(strict.Sanitize(input))
}

// SanitizeContact cleans every string field. It runs right before a payload
// leaves the process, never before display.
func SanitizeContact(form domain.ContactForm) domain.ContactForm {
	return domain.ContactForm{
		Name:           Sanitize(form.Name),
		Furigana:       Sanitize(form.Furigana),
		Phone:          Sanitize(form.Phone),
		Email:          Sanitize(form.Email),
		PreferredDate1: Sanitize(form.PreferredDate1),
		PreferredTime1: Sanitize(form.PreferredTime1),
		PreferredDate2: Sanitize(form.PreferredDate2),
		PreferredTime2: Sanitize(form.PreferredTime2),
		PreferredDate3: Sanitize(form.PreferredDate3),
		PreferredTime3: Sanitize(form.PreferredTime3),
		Inquiry:        Sanitize(form.Inquiry),
		InquiryType:    domain.InquiryType(Sanitize(string(form.InquiryType))),
	}
}
