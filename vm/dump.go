package vm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/chazu/loomscript/guest"
)

// describeValue renders a guest value for the stack and table dumps.
func describeValue(v guest.Value) string {
	switch x := v.(type) {
	case string:
		return `"` + x + `"`
	case float64:
		return humanize.Ftoa(x)
	case bool:
		if x {
			return "true"
		}
		return "false"
	case *guest.Function:
		info := x.Info()
		return fmt.Sprintf("function src %s, short %s, linedef %d, what %s, name %s, curline %d",
			info.Source, info.ShortSrc, info.LineDefined, info.What, info.Name, info.CurrentLine)
	default:
		return guest.TypeName(v)
	}
}

// stackLines renders the guest value stack, bottom first.
func (s *State) stackLines() []string {
	top := s.g.GetTop()
	lines := []string{fmt.Sprintf("Total in stack: %d", top)}
	for i := 1; i <= top; i++ {
		v := s.g.Index(i)
		if t, ok := v.(*guest.Table); ok {
			lines = append(lines, fmt.Sprintf("%d: table (%d entries)", i, t.Len()))
			continue
		}
		lines = append(lines, fmt.Sprintf("%d: %s", i, describeValue(v)))
	}
	return lines
}

// DumpStack logs the guest value stack and returns the logged lines.
func (s *State) DumpStack() []string {
	lines := s.stackLines()
	for _, line := range lines {
		log.Debug(line)
	}
	log.Debugf("vm: %s allocated", humanize.Bytes(uint64(max(s.allocated, 0))))
	return lines
}

// DumpTable logs the table at a stack index, descending into nested
// tables up to levels deep, and returns the logged lines.
func (s *State) DumpTable(index, levels int) []string {
	t, ok := s.g.Index(index).(*guest.Table)
	if !ok {
		line := fmt.Sprintf("%d: %s", index, describeValue(s.g.Index(index)))
		log.Debug(line)
		return []string{line}
	}
	var lines []string
	dumpTable(t, levels, 0, &lines)
	for _, line := range lines {
		log.Debug(line)
	}
	return lines
}

func dumpTable(t *guest.Table, levels, level int, lines *[]string) {
	if level >= levels {
		return
	}
	indent := strings.Repeat("    ", level+1)

	type entry struct {
		key string
		v   guest.Value
	}
	var entries []entry
	t.Range(func(k, v guest.Value) bool {
		entries = append(entries, entry{describeValue(k), v})
		return true
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	for _, e := range entries {
		*lines = append(*lines, fmt.Sprintf("%s%s: %s", indent, e.key, describeValue(e.v)))
		if nested, ok := e.v.(*guest.Table); ok {
			dumpTable(nested, levels, level+1, lines)
		}
	}
}
