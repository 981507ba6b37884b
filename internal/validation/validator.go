// Package validation checks and cleans the customer's contact details.
package validation

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"zentoso/backend/internal/domain"
)

const (
	MessageName        = "お名前を入力してください(100文字以内)"
	MessageFurigana    = "ふりがなはひらがなで入力してください"
	MessagePhone       = "電話番号の形式が正しくありません(携帯: 080/090、固定: 03/06/052など)"
	MessageEmail       = "メールアドレスの形式が正しくありません"
	MessageInquiry     = "お問い合わせ内容は2000文字以内で入力してください"
	MessageVisitDate   = "ご希望日は本日以降の日付を選択してください"
	MessageVisitTime   = "ご希望時間は08:00〜19:00の間で選択してください"
	MessageInquiryType = "お問い合わせ区分を選択してください"
	MessageRateLimit   = "送信間隔が短すぎます。しばらく待ってから再度お試しください"
)

var fieldMessages = map[string]string{
	"name":        MessageName,
	"furigana":    MessageFurigana,
	"phone":       MessagePhone,
	"email":       MessageEmail,
	"inquiry":     MessageInquiry,
	"inquiryType": MessageInquiryType,
}

var (
	mobileRegex        = regexp.MustCompile(`^(080|090)\d{8}$`)
	partialMobileRegex = regexp.MustCompile(`^(080|090)\d{0,8}$`)
	landlineRegex      = regexp.MustCompile(`^(0[1-9]\d{0,3})\d{6,7}$`)
	furiganaRegex      = regexp.MustCompile(`^[ぁ-んー\s　]+$`)
	emailRegex         = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

	// 03 Tokyo, 06 Osaka, 052 Nagoya, 011 Sapporo, 092 Fukuoka and the
	// other major metropolitan codes.
	landlineAreaCodes = []string{"03", "06", "052", "011", "092", "075", "045", "022", "048", "043", "078", "082", "096", "099"}

	jst = time.FixedZone("JST", 9*60*60)
)

const (
	maxFuriganaLength = 100
	maxEmailLength    = 200
	firstVisitHour    = 8
	lastVisitHour     = 19
)

// Validator wraps a go-playground validator with the shop's custom rules.
// now is consulted for preferred visit dates.
type Validator struct {
	validate *validator.Validate
	now      func() time.Time
}

func New(now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	v := &Validator{validate: validator.New(), now: now}

	v.validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.validate.RegisterValidation("jp_phone", func(fl validator.FieldLevel) bool {
		return ValidPhone(fl.Field().String())
	})
	_ = v.validate.RegisterValidation("furigana", func(fl validator.FieldLevel) bool {
		return ValidFurigana(fl.Field().String())
	})
	_ = v.validate.RegisterValidation("simple_email", func(fl validator.FieldLevel) bool {
		return ValidEmail(fl.Field().String())
	})
	_ = v.validate.RegisterValidation("visit_date", func(fl validator.FieldLevel) bool {
		return v.validVisitDate(fl.Field().String())
	})
	_ = v.validate.RegisterValidation("visit_time", func(fl validator.FieldLevel) bool {
		return ValidVisitTime(fl.Field().String())
	})

	return v
}

// ValidateContact evaluates every field and returns one message per failing
// field. A nil map means the form is valid.
func (v *Validator) ValidateContact(form domain.ContactForm) map[string]string {
	err := v.validate.Struct(form)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return map[string]string{"form": err.Error()}
	}

	out := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		out[fe.Field()] = messageFor(fe.Field())
	}
	return out
}

func messageFor(field string) string {
	if msg, ok := fieldMessages[field]; ok {
		return msg
	}
	switch {
	case strings.HasPrefix(field, "preferredDate"):
		return MessageVisitDate
	case strings.HasPrefix(field, "preferredTime"):
		return MessageVisitTime
	}
	return "入力内容を確認してください"
}

// ValidPhone accepts domestic mobile numbers (080/090, 11 digits) and
// landlines from the major area codes (10 digits). Hyphens are ignored.
func ValidPhone(phone string) bool {
	cleaned := strings.ReplaceAll(phone, "-", "")
	if mobileRegex.MatchString(cleaned) {
		return true
	}
	if len(cleaned) != 10 || !landlineRegex.MatchString(cleaned) {
		return false
	}
	for _, code := range landlineAreaCodes {
		if strings.HasPrefix(cleaned, code) {
			return true
		}
	}
	return false
}

func ValidFurigana(furigana string) bool {
	return furiganaRegex.MatchString(furigana) && utf8.RuneCountInString(furigana) <= maxFuriganaLength
}

func ValidEmail(email string) bool {
	return emailRegex.MatchString(email) && utf8.RuneCountInString(email) <= maxEmailLength
}

// ValidVisitTime accepts an empty value or a business-hours slot on the hour.
func ValidVisitTime(slot string) bool {
	if slot == "" {
		return true
	}
	for _, candidate := range VisitTimeSlots() {
		if candidate == slot {
			return true
		}
	}
	return false
}

func VisitTimeSlots() []string {
	slots := make([]string, 0, lastVisitHour-firstVisitHour+1)
	for hour := firstVisitHour; hour <= lastVisitHour; hour++ {
		slots = append(slots, time.Date(2000, 1, 1, hour, 0, 0, 0, jst).Format("15:04"))
	}
	return slots
}

func (v *Validator) validVisitDate(raw string) bool {
	if raw == "" {
		return true
	}
	date, err := time.ParseInLocation("2006-01-02", raw, jst)
	if err != nil {
		return false
	}
	now := v.now().In(jst)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, jst)
	return !date.Before(today)
}

// FormatPhone renders complete or partial mobile input as XXX-XXXX-XXXX.
// Landlines and anything else are returned as typed.
func FormatPhone(phone string) string {
	cleaned := strings.ReplaceAll(phone, "-", "")
	if !partialMobileRegex.MatchString(cleaned) {
		return phone
	}
	switch {
	case len(cleaned) <= 3:
		return cleaned
	case len(cleaned) <= 7:
		return cleaned[:3] + "-" + cleaned[3:]
	default:
		return cleaned[:3] + "-" + cleaned[3:7] + "-" + cleaned[7:]
	}
}
