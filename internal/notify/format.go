package notify

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Formatter renders quantities and amounts in message content.
type Formatter struct {
	printer *message.Printer
}

// NewFormatter builds a Formatter for the BCP 47 locale tag. Unknown tags fall back to English.
func NewFormatter(locale string) Formatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return Formatter{printer: message.NewPrinter(tag)}
}

// Sprintf formats according to the locale.
func (f Formatter) Sprintf(format string, args ...any) string {
	return f.printer.Sprintf(format, args...)
}

// Quantity renders an integer with locale grouping.
func (f Formatter) Quantity(n int) string {
	return f.printer.Sprintf("%d", n)
}

// Amount renders a monetary value with two decimals and locale grouping.
func (f Formatter) Amount(d decimal.Decimal) string {
	return f.printer.Sprintf("%.2f", d.Round(2).InexactFloat64())
}
