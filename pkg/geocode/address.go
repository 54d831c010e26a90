package geocode

import (
	"regexp"
	"strings"
)

var stateZip = regexp.MustCompile(`^([A-Za-z]{2})(?:\s+(\d{5})(?:-\d{4})?)?$`)

// ParseOneLine splits a free-form US address such as
// "100 Main St, Springfield, IL 62701" into batch fields. Anything it cannot
// split stays in Street. OneLine always carries the original text.
func ParseOneLine(id, addr string) AddressInput {
	addr = strings.Join(strings.Fields(addr), " ")
	in := AddressInput{ID: id, OneLine: addr, Street: addr}

	parts := strings.Split(addr, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	// Drop a trailing country.
	if n := len(parts); n > 1 && (strings.EqualFold(parts[n-1], "USA") || strings.EqualFold(parts[n-1], "United States")) {
		parts = parts[:n-1]
	}
	if len(parts) < 3 {
		return in
	}

	n := len(parts)
	m := stateZip.FindStringSubmatch(parts[n-1])
	if m == nil {
		return in
	}
	in.State = strings.ToUpper(m[1])
	in.ZipCode = m[2]
	in.City = parts[n-2]
	in.Street = strings.Join(parts[:n-2], ", ")
	return in
}

// oneLine returns the address as a single line for the one-line endpoint.
func (a AddressInput) oneLine() string {
	if a.OneLine != "" {
		return a.OneLine
	}
	var nonEmpty []string
	for _, p := range []string{a.Street, a.City, a.State, a.ZipCode} {
		if p = strings.TrimSpace(p); p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ", ")
}
