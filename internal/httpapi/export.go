package httpapi

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"strings"
	"time"

	"zentoso/backend/internal/domain"
	"zentoso/backend/internal/notify"
)

var jst = time.FixedZone("JST", 9*60*60)

var quoteCSVHeader = []string{
	"記録日時", "お名前", "メールアドレス", "お電話番号", "合計金額", "車両", "塗装タイプ",
	"選択オプション一覧", "お問い合わせ区分", "希望来店日時(1)", "希望来店日時(2)", "希望来店日時(3)", "お問い合わせ内容",
}

// quotesToCSV renders the quote log in the shop's spreadsheet column order.
func quotesToCSV(quotes []domain.QuoteRecord) ([]byte, error) {
	var buf bytes.Buffer
	// Excel needs the BOM to read UTF-8 CSV.
	buf.WriteString("\ufeff")
	writer := csv.NewWriter(&buf)
	if err := writer.Write(quoteCSVHeader); err != nil {
		return nil, err
	}
	for _, q := range quotes {
		row := []string{
			q.ReceivedAt.In(jst).Format("2006-01-02 15:04:05"),
			q.Name,
			q.Email,
			q.Phone,
			strconv.FormatInt(q.TotalPrice, 10),
			q.VehicleName,
			q.PaintName,
			q.Options,
			notify.InquiryLabel(q.InquiryType),
			q.PreferredVisit1,
			q.PreferredVisit2,
			q.PreferredVisit3,
			q.Inquiry,
		}
		for i := range row {
			row[i] = neutralizeFormula(row[i])
		}
		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// neutralizeFormula keeps spreadsheet apps from evaluating customer input.
func neutralizeFormula(cell string) string {
	if cell != "" && strings.ContainsRune("=+-@", rune(cell[0])) {
		return "'" + cell
	}
	return cell
}
