package formatter

import (
	"fmt"
	"strings"

	"github.com/alexanderramin/workgrid/internal/domain"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

// Gruvbox-inspired color palette.
var (
	ColorGreen  = lipgloss.Color("#8ec07c")
	ColorYellow = lipgloss.Color("#fabd2f")
	ColorRed    = lipgloss.Color("#fb4934")
	ColorBlue   = lipgloss.Color("#83a598")
	ColorDim    = lipgloss.Color("#928374")
	ColorFg     = lipgloss.Color("#ebdbb2")
	ColorHeader = lipgloss.Color("#fe8019")
)

var (
	StyleGreen  = lipgloss.NewStyle().Foreground(ColorGreen)
	StyleYellow = lipgloss.NewStyle().Foreground(ColorYellow)
	StyleRed    = lipgloss.NewStyle().Foreground(ColorRed)
	StyleBlue   = lipgloss.NewStyle().Foreground(ColorBlue)
	StyleDim    = lipgloss.NewStyle().Foreground(ColorDim)
	StyleFg     = lipgloss.NewStyle().Foreground(ColorFg)
	StyleHeader = lipgloss.NewStyle().Foreground(ColorHeader).Bold(true)
	StyleBold   = lipgloss.NewStyle().Foreground(ColorFg).Bold(true)
)

// CheckStyle colors a check value: over plan is red, under plan yellow,
// balanced green.
func CheckStyle(check decimal.Decimal) lipgloss.Style {
	switch check.Sign() {
	case 1:
		return StyleRed
	case -1:
		return StyleYellow
	default:
		return StyleGreen
	}
}

// TallyStyle flags daily loads above a full day.
func TallyStyle(effort decimal.Decimal) lipgloss.Style {
	if effort.GreaterThan(decimal.NewFromInt(1)) {
		return StyleRed
	}
	if effort.IsZero() {
		return StyleDim
	}
	return StyleFg
}

// RowColorBadge renders the display tag of a grid row.
func RowColorBadge(c domain.Color) string {
	switch c {
	case domain.ColorYellow:
		return StyleYellow.Render("●")
	case domain.ColorRed:
		return StyleRed.Render("●")
	case domain.ColorGray:
		return StyleDim.Render("●")
	default:
		return " "
	}
}

// Header renders a section header with the orange header style and an underline.
func Header(text string) string {
	upper := strings.ToUpper(text)
	line := strings.Repeat("─", len(upper))
	return fmt.Sprintf("%s\n%s", StyleHeader.Render(upper), StyleDim.Render(line))
}

func Dim(text string) string {
	return StyleDim.Render(text)
}

func Bold(text string) string {
	return StyleBold.Render(text)
}
