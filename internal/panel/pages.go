package panel

import (
	"github.com/odyssey-erp/catalog-admin/internal/catalog"
	"github.com/odyssey-erp/catalog-admin/internal/catalogapi"
	"github.com/odyssey-erp/catalog-admin/internal/dashboard"
	"github.com/odyssey-erp/catalog-admin/internal/pricehistory"
	"github.com/odyssey-erp/catalog-admin/internal/suppliers"
)

type adminPage struct {
	Tabs      []dashboard.TabItem
	ActiveTab string

	Filter       catalog.Filter
	FilterErrors map[string]string
	Table        catalog.Table

	Form       catalog.ProductForm
	FormErrors map[string]string
	FormToken  string

	Suppliers     []catalogapi.Supplier
	Pending       []suppliers.PendingRow
	PendingForm   suppliers.AssignForm
	PendingErrors map[string]string
	PendingPrompt string

	Stats      *dashboard.StatsView
	StatsError string
	Snapshot   *dashboard.LowStockReport
	Import     *catalogapi.ImportSummary
	ImportErr  string
}

type historyPanel struct {
	ProductID    int64
	SupplierID   int64
	SupplierName string
	Entries      []pricehistory.Entry
	Form         pricehistory.EntryForm
	Errors       map[string]string
	FormToken    string
}

// Empty reports whether the history has no rows.
func (p historyPanel) Empty() bool {
	return len(p.Entries) == 0
}

type editPage struct {
	Product    catalogapi.Product
	Form       catalog.ProductForm
	FormErrors map[string]string
	FormToken  string

	Links        []suppliers.LinkView
	Suppliers    []catalogapi.Supplier
	AssignForm   suppliers.AssignForm
	AssignErrors map[string]string
	AssignToken  string

	History *historyPanel
}

type confirmPage struct {
	Prompt    string
	Action    string
	Hidden    map[string]string
	CancelURL string
}

type lowStockPage struct {
	Report dashboard.LowStockReport
}

type errorPage struct {
	Message string
	BackURL string
}
