package billing

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultCurrency is used when a plan version does not name one.
const DefaultCurrency = "USD"

var moneyPrinter = message.NewPrinter(language.English)

// FormatMoney renders an amount with its currency symbol for emails and
// notifications, e.g. "$9.99". Unknown currency codes fall back to
// "12.50 XYZ".
func FormatMoney(amount decimal.Decimal, code string) string {
	unit, err := currency.ParseISO(strings.ToUpper(code))
	if err != nil {
		return amount.StringFixed(2) + " " + code
	}
	symbol := moneyPrinter.Sprint(currency.Symbol(unit))
	if amount.IsNegative() {
		return "-" + symbol + amount.Abs().StringFixed(2)
	}
	return symbol + amount.StringFixed(2)
}
