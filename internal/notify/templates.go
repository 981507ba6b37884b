// Package notify renders and delivers the intake notifications: the shop's
// email, the operator LINE push and the customer's LINE acknowledgement.
package notify

import (
	"bytes"
	"strings"
	"text/template"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"zentoso/backend/internal/domain"
	"zentoso/backend/internal/validation"
)

const (
	LabelVisit       = "店舗への来店見積もり"
	LabelInquiryOnly = "お問い合わせのみ"
)

var yenPrinter = message.NewPrinter(language.Japanese)

// Yen renders an amount as ¥1,234.
func Yen(amount int64) string {
	return yenPrinter.Sprintf("¥%d", amount)
}

func InquiryLabel(t domain.InquiryType) string {
	if t == domain.InquiryVisit {
		return LabelVisit
	}
	return LabelInquiryOnly
}

type visitSlot struct {
	Rank int
	Date string
	Time string
}

func visitSlots(c domain.ContactForm) []visitSlot {
	raw := [][2]string{
		{c.PreferredDate1, c.PreferredTime1},
		{c.PreferredDate2, c.PreferredTime2},
		{c.PreferredDate3, c.PreferredTime3},
	}
	var slots []visitSlot
	for i, pair := range raw {
		if pair[0] == "" && pair[1] == "" {
			continue
		}
		date := pair[0]
		if date == "" {
			date = "---"
		}
		slots = append(slots, visitSlot{Rank: i + 1, Date: date, Time: pair[1]})
	}
	return slots
}

var funcs = template.FuncMap{
	"yen":          Yen,
	"inquiryLabel": InquiryLabel,
	"phone":        validation.FormatPhone,
}

const rule = "─────────────────────────────────"
const banner = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

var emailTemplate = template.Must(template.New("email").Funcs(funcs).Parse(banner + `
  全塗装シミュレーターからのお問い合わせ
` + banner + `

【お客様情報】
` + rule + `
お名前: {{.Customer.Name}} 様
ふりがな: {{.Customer.Furigana}}
電話番号: {{phone .Customer.Phone}}
メールアドレス: {{.Customer.Email}}
{{if .Customer.InquiryType}}
お問い合わせ区分: {{inquiryLabel .Customer.InquiryType}}
{{end}}
【ご希望来店日時】
` + rule + `
{{range .Slots}}第{{.Rank}}希望: {{.Date}} {{.Time}}
{{else}}指定なし
{{end}}
{{- if .Customer.Inquiry}}
【お問い合わせ内容】
` + rule + `
{{.Customer.Inquiry}}
{{end}}
【お見積もり内容】
` + rule + `
車両: {{.Quote.Vehicle.Name}}
塗装タイプ: {{.Quote.Paint.Name}}
{{if .Quote.Options}}
【選択オプション】
` + rule + `
{{range .Quote.Options}}・{{.Name}}{{if gt .Quantity 1}} ×{{.Quantity}}{{end}}: {{yen .Price}}
{{end}}
選択オプション数: {{len .Quote.Options}}件
{{end}}
` + banner + `
お見積もり合計 (税込): {{yen .Quote.TotalPrice}}
` + banner + `

※ このメールは自動送信されています。
※ お客様への返信をお願いいたします。
`))

var adminTemplate = template.Must(template.New("admin").Funcs(funcs).Parse(`【新規お見積もり】
{{.Customer.Name}} 様 ({{inquiryLabel .Customer.InquiryType}})
TEL: {{phone .Customer.Phone}}
車両: {{.Quote.Vehicle.Name}} / {{.Quote.Paint.Name}}
合計: {{yen .Quote.TotalPrice}}
{{- range .Slots}}
第{{.Rank}}希望: {{.Date}} {{.Time}}
{{- end}}`))

var customerTemplate = template.Must(template.New("customer").Funcs(funcs).Parse(`{{.Customer.Name}} 様
お見積もりのご依頼ありがとうございます。
車両: {{.Quote.Vehicle.Name}}
塗装タイプ: {{.Quote.Paint.Name}}
お見積もり合計 (税込): {{yen .Quote.TotalPrice}}
担当者より改めてご連絡いたします。`))

type templateData struct {
	Customer domain.ContactForm
	Quote    domain.SubmissionQuote
	Slots    []visitSlot
}

func render(t *template.Template, payload domain.SubmissionPayload) (string, error) {
	var buf bytes.Buffer
	err := t.Execute(&buf, templateData{
		Customer: payload.Customer,
		Quote:    payload.Quote,
		Slots:    visitSlots(payload.Customer),
	})
	if err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n") + "\n", nil
}

func EmailBody(payload domain.SubmissionPayload) (string, error) {
	return render(emailTemplate, payload)
}

func AdminMessage(payload domain.SubmissionPayload) (string, error) {
	return render(adminTemplate, payload)
}

func CustomerMessage(payload domain.SubmissionPayload) (string, error) {
	return render(customerTemplate, payload)
}
