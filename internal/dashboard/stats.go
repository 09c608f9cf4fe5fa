package dashboard

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/catalog-admin/internal/catalogapi"
)

// Uncategorized labels products without a category.
const Uncategorized = "Sin categoría"

// Stock thresholds of the low-stock report.
const (
	LowStockThreshold = 5
	CriticalThreshold = 3
)

// FormatMoney renders an amount with two decimals, e.g. "$199.50".
func FormatMoney(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

// ProductLine is a product name and price.
type ProductLine struct {
	Name  string
	Price string
}

// CategoryLine is the product count of one category.
type CategoryLine struct {
	Name  string
	Count int
}

// StatsView is the statistics panel ready to render.
type StatsView struct {
	TotalProducts  int
	InventoryValue string
	TotalStock     int
	LowStockCount  int
	MostExpensive  *ProductLine
	Cheapest       *ProductLine
	Categories     []CategoryLine
	SyncedAt       time.Time
}

// NewStatsView builds the panel from the API payload. lowStock is used when the payload does
// not carry its own count.
func NewStatsView(stats catalogapi.Stats, lowStock int, syncedAt time.Time) StatsView {
	view := StatsView{
		TotalProducts:  stats.TotalProducts,
		InventoryValue: FormatMoney(stats.InventoryValue),
		TotalStock:     stats.TotalStock,
		LowStockCount:  lowStock,
		MostExpensive:  productLine(stats.MostExpensive),
		Cheapest:       productLine(stats.Cheapest),
		Categories:     categoryLines(stats),
		SyncedAt:       syncedAt,
	}
	if stats.LowStockCount != nil {
		view.LowStockCount = *stats.LowStockCount
	}
	return view
}

func productLine(ref *catalogapi.ProductRef) *ProductLine {
	if ref == nil {
		return nil
	}
	return &ProductLine{Name: ref.Name, Price: FormatMoney(ref.Price)}
}

func categoryLines(stats catalogapi.Stats) []CategoryLine {
	counts := make(map[string]int)
	for name, n := range stats.CountByCategory {
		counts[categoryName(name)] += n
	}
	if len(stats.CountByCategory) == 0 {
		for _, c := range stats.Categories {
			counts[categoryName(c.Category)] += c.Count
		}
	}
	if len(counts) == 0 {
		return nil
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	SortCategories(names)
	lines := make([]CategoryLine, 0, len(names))
	for _, name := range names {
		lines = append(lines, CategoryLine{Name: name, Count: counts[name]})
	}
	return lines
}

func categoryName(name string) string {
	switch name {
	case "", "null", "None":
		return Uncategorized
	default:
		return name
	}
}

// SortCategories orders names with Spanish collation, keeping Uncategorized last.
func SortCategories(names []string) {
	col := collate.New(language.Spanish, collate.IgnoreCase)
	sort.SliceStable(names, func(i, j int) bool {
		a, b := names[i], names[j]
		if (a == Uncategorized) != (b == Uncategorized) {
			return b == Uncategorized
		}
		return col.CompareString(a, b) < 0
	})
}

// LowStockItem is one row of the low-stock report.
type LowStockItem struct {
	catalogapi.Product
	Critical bool
}

// LowStockReport lists the products below LowStockThreshold, flagging those below
// CriticalThreshold.
type LowStockReport struct {
	Items       []LowStockItem
	Critical    int
	GeneratedAt time.Time
}

// Empty reports whether no product is low on stock.
func (r LowStockReport) Empty() bool {
	return len(r.Items) == 0
}

// NewLowStockReport keeps all and only the products with cantidad < 5, lowest stock first.
func NewLowStockReport(products []catalogapi.Product, generatedAt time.Time) LowStockReport {
	report := LowStockReport{GeneratedAt: generatedAt}
	for _, p := range products {
		if p.Quantity >= LowStockThreshold {
			continue
		}
		critical := p.Quantity < CriticalThreshold
		if critical {
			report.Critical++
		}
		report.Items = append(report.Items, LowStockItem{Product: p, Critical: critical})
	}
	sort.SliceStable(report.Items, func(i, j int) bool {
		if report.Items[i].Quantity != report.Items[j].Quantity {
			return report.Items[i].Quantity < report.Items[j].Quantity
		}
		return report.Items[i].ID < report.Items[j].ID
	})
	return report
}
