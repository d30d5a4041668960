package capture

import (
	"strings"
	"unicode"
)

// actionableRoles are never collapsed, even if they'd otherwise match the
// generic/none-collapsing rule, since interaction targets must stay
// addressable regardless of how little semantic detail their role carries.
var actionableRoles = map[string]bool{
	"button": true, "link": true, "textbox": true, "checkbox": true,
	"radio": true, "combobox": true, "listbox": true, "menuitem": true,
	"option": true, "searchbox": true, "slider": true, "spinbutton": true,
	"switch": true, "tab": true,
}

// structuralRoles carry no semantic content of their own; a node with one
// of these survives Pass 6 only if it has a name or children (spec §4.3
// Pass 6: "keep only nodes with a non-empty name, with children, or with a
// non-structural role").
var structuralRoles = map[string]bool{
	"none": true, "presentation": true, "inlinetextbox": true,
	"generic": true, "ignored": true,
}

// cleanNode applies Pass 6 to one merged node: dropping empty structural
// leaves, normalizing the name, and prefixing scrollable containers so the
// formatted tree surfaces them without a separate lookup. It reports false
// if the node should be dropped.
func cleanNode(role, name, scrollInfo string, hasChildren bool) (cleanedRole, cleanedName string, keep bool) {
	role = strings.ToLower(strings.TrimSpace(role))
	name = normalizeName(name)

	if role == "" {
		role = "generic"
	}

	if structuralRoles[role] && name == "" && !hasChildren && scrollInfo == "" {
		return "", "", false
	}

	if scrollInfo != "" {
		if role == "generic" || role == "none" {
			role = "scrollable"
		} else {
			role = "scrollable, " + role
		}
	}

	return role, name, true
}

// normalizeName trims, collapses whitespace (including the non-breaking
// space variants) to single spaces, and strips private-use unicode.
func normalizeName(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.In(r, unicode.Co) {
			return -1
		}
		if unicode.IsSpace(r) {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
