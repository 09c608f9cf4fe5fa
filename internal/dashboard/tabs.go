// Package dashboard drives the admin panel tabs, statistics, low-stock report, sync and navigation.
package dashboard

import (
	"errors"
	"strings"
)

// Tab names.
const (
	TabProducts = "productos"
	TabStats    = "estadisticas"
	TabTools    = "herramientas"
)

// ErrUnknownTab is returned when activating a tab that does not exist.
var ErrUnknownTab = errors.New("dashboard: unknown tab")

var tabLabels = []struct {
	name  string
	label string
}{
	{TabProducts, "Productos"},
	{TabStats, "Estadísticas"},
	{TabTools, "Herramientas"},
}

// TabItem is a tab button and its content panel.
type TabItem struct {
	Name   string
	Label  string
	Active bool
}

// Tabs keeps exactly one tab active.
type Tabs struct {
	active string
}

// NewTabs starts on the products tab.
func NewTabs() *Tabs {
	return &Tabs{active: TabProducts}
}

// Activate makes name the only active tab. Unknown names leave the current tab active.
func (t *Tabs) Activate(name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, tab := range tabLabels {
		if tab.name == name {
			t.active = name
			return nil
		}
	}
	return ErrUnknownTab
}

// Active returns the active tab name.
func (t *Tabs) Active() string {
	if t.active == "" {
		return TabProducts
	}
	return t.active
}

// Items lists every tab with its active flag.
func (t *Tabs) Items() []TabItem {
	active := t.Active()
	items := make([]TabItem, 0, len(tabLabels))
	for _, tab := range tabLabels {
		items = append(items, TabItem{Name: tab.name, Label: tab.label, Active: tab.name == active})
	}
	return items
}

// NeedsStats reports whether the active tab shows statistics, which are fetched on every switch.
func (t *Tabs) NeedsStats() bool {
	return t.Active() == TabStats
}
