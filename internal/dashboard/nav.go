package dashboard

import "strings"

// NavItem is one entry of the mobile bottom navigation.
type NavItem struct {
	Path   string
	Label  string
	Icon   string
	Active bool
}

// DefaultNav is the bottom navigation of the panel.
var DefaultNav = []NavItem{
	{Path: "/", Label: "Inicio", Icon: "home"},
	{Path: "/admin", Label: "Productos", Icon: "box"},
	{Path: "/admin/bajo-stock", Label: "Bajo stock", Icon: "alert"},
	{Path: "/auth/login", Label: "Cuenta", Icon: "user"},
}

// Nav marks the item whose path is the longest prefix of current. When nothing matches, the
// root item is marked.
func Nav(items []NavItem, current string) []NavItem {
	if current == "" {
		current = "/"
	}
	out := make([]NavItem, len(items))
	copy(out, items)
	best := -1
	for i, item := range out {
		path := item.Path
		if path == "" {
			path = "/"
		}
		if current == path || strings.HasPrefix(current, path) {
			if best < 0 || len(path) > len(out[best].Path) {
				best = i
			}
		}
	}
	if best < 0 {
		for i, item := range out {
			if item.Path == "/" {
				best = i
				break
			}
		}
	}
	for i := range out {
		out[i].Active = i == best
	}
	return out
}
