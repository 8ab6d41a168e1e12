// Package perm implements the permission bitmask model and the inheritance
// walking evaluation engine. Permissions are fifteen independent capability
// bits; grants attach to objects as acl edges and propagate down the
// collection hierarchy through inheritable grants.
package perm

import "strings"

// Mask is a set of permission bits.
type Mask uint16

// Capability bits.
const (
	RdRec    Mask = 0x0001 // View record info
	RdMeta   Mask = 0x0002 // Read structured metadata
	RdData   Mask = 0x0004 // Read raw data
	WrRec    Mask = 0x0008 // Write record info
	WrMeta   Mask = 0x0010 // Write structured metadata
	WrData   Mask = 0x0020 // Write raw data
	List     Mask = 0x0040 // List collection contents
	Link     Mask = 0x0080 // Link/unlink items
	Create   Mask = 0x0100 // Create new items
	Delete   Mask = 0x0200 // Delete items
	Share    Mask = 0x0400 // Edit ACLs
	Lock     Mask = 0x0800 // Lock records
	Label    Mask = 0x1000 // Attach labels
	Tag      Mask = 0x2000 // Attach tags
	Annotate Mask = 0x4000 // Attach annotations
)

// Composite masks.
const (
	None    Mask = 0
	All     Mask = 0x7fff
	RdAll   Mask = RdRec | RdMeta | RdData
	WrAll   Mask = WrRec | WrMeta | WrData
	Public  Mask = RdAll | List
	Member  Mask = RdAll | List
	Manager Mask = RdAll | Share
)

var maskNames = []struct {
	bit  Mask
	name string
}{
	{RdRec, "rd_rec"},
	{RdMeta, "rd_meta"},
	{RdData, "rd_data"},
	{WrRec, "wr_rec"},
	{WrMeta, "wr_meta"},
	{WrData, "wr_data"},
	{List, "list"},
	{Link, "link"},
	{Create, "create"},
	{Delete, "delete"},
	{Share, "share"},
	{Lock, "lock"},
	{Label, "label"},
	{Tag, "tag"},
	{Annotate, "annotate"},
}

// Has reports whether every bit in req is present in m.
func (m Mask) Has(req Mask) bool {
	return m&req == req
}

// HasAny reports whether at least one bit in req is present in m.
func (m Mask) HasAny(req Mask) bool {
	return m&req != 0
}

// String renders the set bits as a comma-joined list of flag names, for
// logs and error messages.
func (m Mask) String() string {
	if m == 0 {
		return "none"
	}
	var names []string
	for _, n := range maskNames {
		if m&n.bit != 0 {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, ",")
}
