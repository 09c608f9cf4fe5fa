// Package viewstate holds the per-session state of the admin panel: the product being edited,
// the pending supplier list of the create form, the active tab and the open price history.
package viewstate

import (
	"encoding/json"
	"log/slog"

	"github.com/odyssey-erp/catalog-admin/internal/dashboard"
	"github.com/odyssey-erp/catalog-admin/internal/shared"
	"github.com/odyssey-erp/catalog-admin/internal/suppliers"
)

const sessionKey = "view_state"

// HistoryTarget identifies the (product, supplier) pair whose price history is open.
type HistoryTarget struct {
	ProductID  int64 `json:"producto_id"`
	SupplierID int64 `json:"proveedor_id"`
}

// State is the view state of one admin session.
type State struct {
	EditingProductID int64                   `json:"editing_product_id,omitempty"`
	Pending          suppliers.PendingBuffer `json:"pending"`
	ActiveTab        string                  `json:"active_tab,omitempty"`
	History          *HistoryTarget          `json:"history,omitempty"`
}

// Load reads the state from the session. A missing or corrupt value yields a fresh state.
func Load(sess *shared.Session) *State {
	st := &State{ActiveTab: dashboard.TabProducts}
	if sess == nil {
		return st
	}
	raw := sess.Get(sessionKey)
	if raw == "" {
		return st
	}
	if err := json.Unmarshal([]byte(raw), st); err != nil {
		slog.Default().Warn("discarding view state", slog.Any("error", err))
		return &State{ActiveTab: dashboard.TabProducts}
	}
	if st.ActiveTab == "" {
		st.ActiveTab = dashboard.TabProducts
	}
	return st
}

// Save writes the state into the session.
func (s *State) Save(sess *shared.Session) error {
	if sess == nil {
		return nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	sess.Set(sessionKey, string(raw))
	return nil
}

// OpenEdit starts editing a product. The history of another product is closed.
func (s *State) OpenEdit(productID int64) {
	if s.History != nil && s.History.ProductID != productID {
		s.History = nil
	}
	s.EditingProductID = productID
}

// CloseEdit closes the edit modal together with any open history.
func (s *State) CloseEdit() {
	s.EditingProductID = 0
	s.History = nil
}

// Editing reports whether id is the product being edited.
func (s *State) Editing(id int64) bool {
	return s.EditingProductID != 0 && s.EditingProductID == id
}

// ResetAfterCreate discards the pending supplier list once a product was created.
func (s *State) ResetAfterCreate() {
	s.Pending.Clear()
}

// OpenHistory shows the price history of a (product, supplier) pair.
func (s *State) OpenHistory(productID, supplierID int64) {
	s.History = &HistoryTarget{ProductID: productID, SupplierID: supplierID}
}

// CloseHistory hides the price history.
func (s *State) CloseHistory() {
	s.History = nil
}

// Tabs returns the tab set with the stored tab active.
func (s *State) Tabs() *dashboard.Tabs {
	tabs := dashboard.NewTabs()
	if err := tabs.Activate(s.ActiveTab); err != nil {
		s.ActiveTab = dashboard.TabProducts
	}
	return tabs
}

// SwitchTab activates name.
func (s *State) SwitchTab(name string) error {
	tabs := dashboard.NewTabs()
	if err := tabs.Activate(name); err != nil {
		return err
	}
	s.ActiveTab = tabs.Active()
	return nil
}
