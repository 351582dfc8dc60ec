// Package components provides reusable TUI components.
package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// PriceRow is the latest quote seen for one chain.
type PriceRow struct {
	Chain      string
	Pair       string
	Price      float64
	Provenance string
	Success    bool
	Stale      bool
	ObservedAt time.Time
}

// PricesComponent renders the per-chain price table.
type PricesComponent struct {
	order []string
	rows  map[string]PriceRow
}

// NewPricesComponent creates a new prices component.
func NewPricesComponent() *PricesComponent {
	return &PricesComponent{rows: make(map[string]PriceRow)}
}

// Update stores row, replacing the previous one for the same chain.
// A failed quote does not hide an earlier successful price.
func (p *PricesComponent) Update(row PriceRow) {
	prev, seen := p.rows[row.Chain]
	if !seen {
		p.order = append(p.order, row.Chain)
	}
	if !row.Success && seen && prev.Success {
		prev.Stale = true
		p.rows[row.Chain] = prev
		return
	}
	p.rows[row.Chain] = row
}

// Len returns the number of chains shown.
func (p *PricesComponent) Len() int {
	return len(p.order)
}

// Row returns the stored row for chain.
func (p *PricesComponent) Row(chain string) (PriceRow, bool) {
	r, ok := p.rows[chain]
	return r, ok
}

// View renders the prices component at time now.
func (p *PricesComponent) View(now time.Time) string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	staleStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	failStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))

	var b strings.Builder
	b.WriteString(headerStyle.Render("PRICES"))
	b.WriteString("\n\n")

	if len(p.order) == 0 {
		b.WriteString(dimStyle.Render("  Waiting for price data..."))
		return b.String()
	}

	b.WriteString(fmt.Sprintf("  %-10s  %-10s  %12s  %-10s  %8s\n", "Chain", "Pair", "Price", "Source", "Age"))
	b.WriteString(dimStyle.Render("  "+strings.Repeat("─", 58)) + "\n")

	for _, chain := range p.order {
		row := p.rows[chain]

		price := "-"
		style := failStyle
		if row.Success {
			price = fmt.Sprintf("$%.2f", row.Price)
			style = okStyle
			if row.Stale {
				style = staleStyle
			}
		}

		age := "-"
		if !row.ObservedAt.IsZero() {
			age = now.Sub(row.ObservedAt).Round(time.Second).String()
		}

		source := row.Provenance
		if source == "" {
			source = "none"
		}
		if row.Stale {
			source += "*"
		}

		b.WriteString(fmt.Sprintf("  %-10s  %-10s  %s  %-10s  %8s\n",
			row.Chain,
			row.Pair,
			style.Render(fmt.Sprintf("%12s", price)),
			source,
			age,
		))
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render("  * stale: served from an expired cache entry"))
	return b.String()
}
