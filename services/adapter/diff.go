package adapter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"dbaccountsync/models"

	"github.com/pmezard/go-difflib/difflib"
)

// SlotTypeSpecific is the only slot whose changes count as "other" rather than
// a privilege change.
const SlotTypeSpecific = "type_specific"

// SlotDiff holds what a slot gained and lost.
//
// Set slots carry []string, per-database slots carry map[string][]string and
// value maps carry map[string]any where Added has the new value and Removed the
// old value of every changed key.
type SlotDiff struct {
	Added   any `json:"added"`
	Removed any `json:"removed"`
}

// Diff maps slot name to its change. An empty Diff means the bags are equal.
type Diff map[string]SlotDiff

// Empty reports whether no slot changed.
func (d Diff) Empty() bool {
	return len(d) == 0
}

// Split separates privilege slots from the type-specific slot.
func (d Diff) Split() (privilege, other Diff) {
	privilege, other = Diff{}, Diff{}
	for slot, sd := range d {
		if slot == SlotTypeSpecific {
			other[slot] = sd
		} else {
			privilege[slot] = sd
		}
	}
	return privilege, other
}

// Slots returns the changed slot names in order.
func (d Diff) Slots() []string {
	out := make([]string, 0, len(d))
	for slot := range d {
		out = append(out, slot)
	}
	sort.Strings(out)
	return out
}

type slotKind int

const (
	kindSet slotKind = iota
	kindSetMap
	kindValues
)

type slotValue struct {
	name   string
	kind   slotKind
	set    []string
	setMap map[string][]string
	values map[string]any
}

func slotsOf(p models.Privileges) []slotValue {
	switch v := p.(type) {
	case *models.MySQLPrivileges:
		return []slotValue{
			{name: "global_privileges", kind: kindSet, set: v.GlobalPrivileges},
			{name: "database_privileges", kind: kindSetMap, setMap: v.DatabasePrivileges},
			{name: SlotTypeSpecific, kind: kindValues, values: v.TypeSpecific},
		}
	case *models.PostgreSQLPrivileges:
		return []slotValue{
			{name: "predefined_roles", kind: kindSet, set: v.PredefinedRoles},
			{name: "role_attributes", kind: kindValues, values: v.RoleAttributes},
			{name: "database_privileges_pg", kind: kindSetMap, setMap: v.DatabasePrivileges},
			{name: "tablespace_privileges", kind: kindSetMap, setMap: v.TablespacePrivileges},
			{name: "system_privileges", kind: kindSet, set: v.SystemPrivileges},
		}
	case *models.SQLServerPrivileges:
		return []slotValue{
			{name: "server_roles", kind: kindSet, set: v.ServerRoles},
			{name: "server_permissions", kind: kindSet, set: v.ServerPermissions},
			{name: "database_roles", kind: kindSetMap, setMap: v.DatabaseRoles},
			{name: "database_permissions", kind: kindSetMap, setMap: v.DatabasePermissions},
			{name: SlotTypeSpecific, kind: kindValues, values: v.TypeSpecific},
		}
	case *models.OraclePrivileges:
		return []slotValue{
			{name: "oracle_roles", kind: kindSet, set: v.Roles},
			{name: "system_privileges", kind: kindSet, set: v.SystemPrivileges},
			{name: "tablespace_privileges_oracle", kind: kindSetMap, setMap: v.TablespacePrivileges},
			{name: SlotTypeSpecific, kind: kindValues, values: v.TypeSpecific},
		}
	}
	return nil
}

// Compare diffs two bags of the same dialect. A nil old bag counts as empty.
// Lists compare as sets and maps compare key by key, so ordering returned by
// the target never produces a change.
func Compare(old, new models.Privileges) Diff {
	d := Diff{}
	if new == nil {
		return d
	}
	if old == nil || old.DBType() != new.DBType() {
		old, _ = models.EmptyPrivileges(new.DBType())
	}
	oldSlots, newSlots := slotsOf(old), slotsOf(new)
	for i, ns := range newSlots {
		os := oldSlots[i]
		switch ns.kind {
		case kindSet:
			added, removed := setDiff(os.set, ns.set)
			if len(added) > 0 || len(removed) > 0 {
				d[ns.name] = SlotDiff{Added: added, Removed: removed}
			}
		case kindSetMap:
			added, removed := setMapDiff(os.setMap, ns.setMap)
			if len(added) > 0 || len(removed) > 0 {
				d[ns.name] = SlotDiff{Added: added, Removed: removed}
			}
		case kindValues:
			added, removed := valuesDiff(os.values, ns.values)
			if len(added) > 0 || len(removed) > 0 {
				d[ns.name] = SlotDiff{Added: added, Removed: removed}
			}
		}
	}
	return d
}

func setDiff(old, new []string) (added, removed []string) {
	oldSet := make(map[string]struct{}, len(old))
	for _, v := range old {
		oldSet[v] = struct{}{}
	}
	newSet := make(map[string]struct{}, len(new))
	for _, v := range new {
		newSet[v] = struct{}{}
		if _, ok := oldSet[v]; !ok {
			added = append(added, v)
		}
	}
	for _, v := range old {
		if _, ok := newSet[v]; !ok {
			removed = append(removed, v)
		}
	}
	return models.NewSet(added...), models.NewSet(removed...)
}

func setMapDiff(old, new map[string][]string) (added, removed map[string][]string) {
	added, removed = map[string][]string{}, map[string][]string{}
	keys := map[string]struct{}{}
	for k := range old {
		keys[k] = struct{}{}
	}
	for k := range new {
		keys[k] = struct{}{}
	}
	for k := range keys {
		a, r := setDiff(old[k], new[k])
		if len(a) > 0 {
			added[k] = a
		}
		if len(r) > 0 {
			removed[k] = r
		}
	}
	return added, removed
}

func valuesDiff(old, new map[string]any) (added, removed map[string]any) {
	added, removed = map[string]any{}, map[string]any{}
	for k, nv := range new {
		ov, ok := old[k]
		if !ok || !sameValue(ov, nv) {
			added[k] = nv
		}
	}
	for k, ov := range old {
		nv, ok := new[k]
		if !ok || !sameValue(ov, nv) {
			removed[k] = ov
		}
	}
	return added, removed
}

// sameValue compares through the JSON encoding because stored values come
// back as float64 while fresh ones are int64.
func sameValue(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}

// Describe renders a diff as a human-readable change message.
func Describe(d Diff) string {
	var lines []string
	for _, slot := range d.Slots() {
		sd := d[slot]
		label := strings.ReplaceAll(slot, "_", " ")
		switch added := sd.Added.(type) {
		case []string:
			removed, _ := sd.Removed.([]string)
			lines = append(lines, describeSet(label, added, removed))
		case map[string][]string:
			removed, _ := sd.Removed.(map[string][]string)
			lines = append(lines, describeSetMap(label, added, removed)...)
		case map[string]any:
			removed, _ := sd.Removed.(map[string]any)
			lines = append(lines, describeValues(label, added, removed))
		}
	}
	return strings.Join(lines, "\n")
}

func describeSet(label string, added, removed []string) string {
	var parts []string
	if len(added) > 0 {
		parts = append(parts, "added: "+strings.Join(added, ", "))
	}
	if len(removed) > 0 {
		parts = append(parts, "removed: "+strings.Join(removed, ", "))
	}
	return label + " " + strings.Join(parts, "; ")
}

func describeSetMap(label string, added, removed map[string][]string) []string {
	keys := map[string]struct{}{}
	for k := range added {
		keys[k] = struct{}{}
	}
	for k := range removed {
		keys[k] = struct{}{}
	}
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)

	out := make([]string, 0, len(names))
	for _, k := range names {
		out = append(out, describeSet(fmt.Sprintf("%s [%s]", label, k), added[k], removed[k]))
	}
	return out
}

func describeValues(label string, added, removed map[string]any) string {
	keys := map[string]struct{}{}
	for k := range added {
		keys[k] = struct{}{}
	}
	for k := range removed {
		keys[k] = struct{}{}
	}
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)

	head := label + " changed: " + strings.Join(names, ", ")
	ud := difflib.UnifiedDiff{
		A:        valueLines(names, removed),
		B:        valueLines(names, added),
		FromFile: "before",
		ToFile:   "after",
		Context:  0,
	}
	text, err := difflib.GetUnifiedDiffString(ud)
	if err != nil || text == "" {
		return head
	}
	return head + "\n" + strings.TrimRight(text, "\n")
}

func valueLines(keys []string, values map[string]any) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		v, ok := values[k]
		if !ok {
			continue
		}
		data, err := json.Marshal(v)
		if err != nil {
			data = []byte(fmt.Sprint(v))
		}
		out = append(out, fmt.Sprintf("%s: %s\n", k, data))
	}
	return out
}
