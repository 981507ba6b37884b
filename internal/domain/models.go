package domain

import "time"

type VehicleSize string

const (
	SizeLight   VehicleSize = "light"
	SizeRegular VehicleSize = "regular"
	SizeLarge   VehicleSize = "large"
)

type FinishID string

const (
	FinishSolid    FinishID = "solid"
	FinishMetallic FinishID = "metallic"
	FinishPearl    FinishID = "pearl"
)

type OptionCategory string

const (
	CategoryPrep    OptionCategory = "prep"
	CategoryParts   OptionCategory = "parts"
	CategorySpecial OptionCategory = "special"
	CategoryCoating OptionCategory = "coating"
)

type PricingMode string

const (
	PricingFixed        PricingMode = "fixed"
	PricingVariesBySize PricingMode = "varies_by_size"
	PricingPerUnit      PricingMode = "per_unit"
)

// VehicleClass prices are whole yen keyed by finish.
type VehicleClass struct {
	ID     string             `json:"id"`
	Name   string             `json:"name"`
	Size   VehicleSize        `json:"category"`
	Prices map[FinishID]int64 `json:"prices"`
}

type PaintFinish struct {
	ID          FinishID `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
}

// Price is a tagged variant: Amount is used by fixed and per_unit,
// BySize by varies_by_size.
type Price struct {
	Mode   PricingMode           `json:"mode"`
	Amount int64                 `json:"amount,omitempty"`
	BySize map[VehicleSize]int64 `json:"by_size,omitempty"`
}

func FixedPrice(amount int64) Price {
	return Price{Mode: PricingFixed, Amount: amount}
}

func PerUnitPrice(amount int64) Price {
	return Price{Mode: PricingPerUnit, Amount: amount}
}

func PerSizePrice(light, regular, large int64) Price {
	return Price{Mode: PricingVariesBySize, BySize: map[VehicleSize]int64{
		SizeLight:   light,
		SizeRegular: regular,
		SizeLarge:   large,
	}}
}

// For resolves the unit price against a vehicle size. An empty or unknown
// size resolves a varies_by_size price to 0.
func (p Price) For(size VehicleSize) int64 {
	if p.Mode == PricingVariesBySize {
		return p.BySize[size]
	}
	return p.Amount
}

type OptionItem struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Category    OptionCategory `json:"category"`
	UnitLabel   string         `json:"unit_label,omitempty"`
	Price       Price          `json:"price"`
}

type OptionSelection struct {
	Selected bool `json:"selected"`
	Quantity uint `json:"quantity"`
}

type Selection struct {
	VehicleID string                     `json:"vehicle_id,omitempty"`
	FinishID  FinishID                   `json:"finish_id,omitempty"`
	Options   map[string]OptionSelection `json:"options"`
}

type QuoteLine struct {
	OptionID  string      `json:"option_id"`
	Name      string      `json:"name"`
	Mode      PricingMode `json:"mode"`
	UnitPrice int64       `json:"unit_price"`
	Quantity  uint        `json:"quantity"`
	LineTotal int64       `json:"line_total"`
}

type Quote struct {
	VehicleID   string      `json:"vehicle_id,omitempty"`
	VehicleName string      `json:"vehicle_name,omitempty"`
	FinishID    FinishID    `json:"finish_id,omitempty"`
	FinishName  string      `json:"finish_name,omitempty"`
	BasePrice   int64       `json:"base_price"`
	Provisional bool        `json:"provisional"`
	Lines       []QuoteLine `json:"lines"`
	Total       int64       `json:"total"`
}

type InquiryType string

const (
	InquiryVisit       InquiryType = "visit"
	InquiryOnly        InquiryType = "inquiry_only"
	defaultInquiryType             = InquiryVisit
)

// ContactForm keeps the camelCase names the notification backend expects.
type ContactForm struct {
	Name           string      `json:"name" validate:"required,max=100"`
	Furigana       string      `json:"furigana" validate:"furigana"`
	Phone          string      `json:"phone" validate:"jp_phone"`
	Email          string      `json:"email" validate:"simple_email"`
	PreferredDate1 string      `json:"preferredDate1" validate:"visit_date"`
	PreferredTime1 string      `json:"preferredTime1" validate:"visit_time"`
	PreferredDate2 string      `json:"preferredDate2" validate:"visit_date"`
	PreferredTime2 string      `json:"preferredTime2" validate:"visit_time"`
	PreferredDate3 string      `json:"preferredDate3" validate:"visit_date"`
	PreferredTime3 string      `json:"preferredTime3" validate:"visit_time"`
	Inquiry        string      `json:"inquiry" validate:"max=2000"`
	InquiryType    InquiryType `json:"inquiryType" validate:"oneof=visit inquiry_only"`
}

func NewContactForm() ContactForm {
	return ContactForm{InquiryType: defaultInquiryType}
}

type Step int

const (
	StepVehicleSelect Step = iota
	StepPaintSelect
	StepOptionSelect
	StepQuoteSummary
	StepContactForm
	StepFinalConfirm
	StepComplete
)

var stepNames = [...]string{
	"vehicle-select",
	"paint-select",
	"option-select",
	"quote-summary",
	"contact-form",
	"final-confirm",
	"complete",
}

func (s Step) String() string {
	if s < StepVehicleSelect || s > StepComplete {
		return "unknown"
	}
	return stepNames[s]
}

type SubmissionOption struct {
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity uint   `json:"quantity"`
}

type SubmissionQuote struct {
	Vehicle    VehicleClass       `json:"vehicle"`
	Paint      PaintFinish        `json:"paint"`
	Options    []SubmissionOption `json:"options"`
	TotalPrice int64              `json:"totalPrice"`
}

type SubmissionPayload struct {
	Customer    ContactForm     `json:"customer"`
	Quote       SubmissionQuote `json:"quote"`
	LineUserID  string          `json:"lineUserId"`
	LiffIDToken string          `json:"liffIdToken"`
}

type ChannelResults struct {
	Spreadsheet bool     `json:"spreadsheet"`
	Email       bool     `json:"email"`
	LineAdmin   bool     `json:"line_admin"`
	LineUser    bool     `json:"line_user"`
	Errors      []string `json:"errors"`
}

type SubmissionResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Results *ChannelResults `json:"results,omitempty"`
}

type SubmissionSummary struct {
	Delivered      bool      `json:"delivered"`
	Message        string    `json:"message,omitempty"`
	PartialFailure bool      `json:"partial_failure"`
	FailedChannels []string  `json:"failed_channels,omitempty"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

type ActionRequest struct {
	Type      string   `json:"type"`
	VehicleID string   `json:"vehicle_id,omitempty"`
	FinishID  FinishID `json:"finish_id,omitempty"`
	OptionID  string   `json:"option_id,omitempty"`
	Selected  *bool    `json:"selected,omitempty"`
	Quantity  *uint    `json:"quantity,omitempty"`
	Field     string   `json:"field,omitempty"`
	Value     string   `json:"value,omitempty"`
}

type WizardView struct {
	SessionID       string             `json:"session_id"`
	Step            string             `json:"step"`
	StepIndex       int                `json:"step_index"`
	Selection       Selection          `json:"selection"`
	Quote           Quote              `json:"quote"`
	Contact         ContactForm        `json:"contact"`
	Errors          map[string]string  `json:"errors,omitempty"`
	Submitting      bool               `json:"submitting"`
	CooldownSeconds int                `json:"cooldown_seconds"`
	IdentityExpired bool               `json:"identity_expired,omitempty"`
	LastSubmission  *SubmissionSummary `json:"last_submission,omitempty"`
}

type CatalogCategory struct {
	ID      OptionCategory `json:"id"`
	Title   string         `json:"title"`
	Options []OptionItem   `json:"options"`
}

type CatalogResponse struct {
	Vehicles   []VehicleClass    `json:"vehicles"`
	Finishes   []PaintFinish     `json:"finishes"`
	Categories []CatalogCategory `json:"categories"`
}

// QuoteRecord is one appended row of the intake log.
type QuoteRecord struct {
	ID              string      `json:"id"`
	ReceivedAt      time.Time   `json:"received_at"`
	LineUserID      string      `json:"line_user_id"`
	Name            string      `json:"name"`
	Furigana        string      `json:"furigana"`
	Email           string      `json:"email"`
	Phone           string      `json:"phone"`
	TotalPrice      int64       `json:"total_price"`
	VehicleName     string      `json:"vehicle_name"`
	PaintName       string      `json:"paint_name"`
	Options         string      `json:"options"`
	InquiryType     InquiryType `json:"inquiry_type"`
	PreferredVisit1 string      `json:"preferred_visit_1"`
	PreferredVisit2 string      `json:"preferred_visit_2"`
	PreferredVisit3 string      `json:"preferred_visit_3"`
	Inquiry         string      `json:"inquiry"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type OperatorCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
