// Package slx extracts a human-readable summary from a packaged
// model-design archive (.slx), which is a zip container of XML members.
package slx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

var ErrInvalidArchive = errors.New("not a valid model archive")

// Stats counts the structural elements observed across all successfully
// parsed XML members.
type Stats struct {
	Systems  int `json:"systems"`
	Blocks   int `json:"blocks"`
	Lines    int `json:"lines"`
	XMLFiles int `json:"xml_files"`
}

// ParseNote records one archive member that failed to parse. A bad member
// never aborts extraction of the remaining members.
type ParseNote struct {
	Entry   string `json:"entry"`
	Message string `json:"message"`
}

type Summary struct {
	ReadableText string      `json:"readable_text"`
	Stats        Stats       `json:"stats"`
	ParseNotes   []ParseNote `json:"parse_notes,omitempty"`
}

const (
	maxExamples   = 8
	maxTopTypes   = 8
	maxParseNotes = 4
)

// xmlNode is a namespace-agnostic XML tree. encoding/xml splits the
// namespace off into XMLName.Space, so XMLName.Local is already the bare
// tag name.
type xmlNode struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []xmlNode  `xml:",any"`
}

func (n *xmlNode) attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// walk visits every descendant of the model tree, classifying elements by
// their bare tag name.
type walk struct {
	stats       Stats
	systemNames []string
	blockNames  []string
	blockTypes  []string
	connections [][2]string
}

func (w *walk) visit(n *xmlNode) {
	switch n.XMLName.Local {
	case "System":
		w.stats.Systems++
		if name, ok := n.attr("Name"); ok && strings.TrimSpace(name) != "" {
			w.systemNames = append(w.systemNames, name)
		}
	case "Block":
		w.stats.Blocks++
		if name, ok := n.attr("Name"); ok && strings.TrimSpace(name) != "" {
			w.blockNames = append(w.blockNames, name)
		}
		typ, ok := n.attr("BlockType")
		if !ok || strings.TrimSpace(typ) == "" {
			typ = "Unknown"
		}
		w.blockTypes = append(w.blockTypes, typ)
	case "Line":
		w.stats.Lines++
		src, _ := n.attr("Src")
		dst, _ := n.attr("Dst")
		w.connections = append(w.connections, [2]string{src, dst})
	}
	for i := range n.Children {
		w.visit(&n.Children[i])
	}
}

// Summarize parses archiveBytes as a zip container and produces structural
// statistics plus a readable text block. Only the container-level failure
// is fatal; per-member parse failures become ParseNotes.
func Summarize(archiveBytes []byte, displayName string) (*Summary, error) {
	zr, err := zip.NewReader(bytes.NewReader(archiveBytes), int64(len(archiveBytes)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}

	var w walk
	var notes []ParseNote
	for _, f := range zr.File {
		if !strings.HasSuffix(strings.ToLower(f.Name), ".xml") {
			continue
		}
		root, err := readMember(f)
		if err != nil {
			notes = append(notes, ParseNote{Entry: f.Name, Message: err.Error()})
			continue
		}
		w.stats.XMLFiles++
		w.visit(root)
	}

	s := &Summary{Stats: w.stats, ParseNotes: notes}
	s.ReadableText = render(displayName, &w, notes)
	return s, nil
}

func readMember(f *zip.File) (*xmlNode, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	var root xmlNode
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	return &root, nil
}

// topBlockTypes ranks block types by occurrence count, descending, with
// ties broken by first-encountered order. At most maxTopTypes entries.
func topBlockTypes(types []string) []string {
	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	var order []string
	for i, t := range types {
		if _, ok := counts[t]; !ok {
			firstSeen[t] = i
			order = append(order, t)
		}
		counts[t]++
	}
	sort.SliceStable(order, func(a, b int) bool {
		if counts[order[a]] != counts[order[b]] {
			return counts[order[a]] > counts[order[b]]
		}
		return firstSeen[order[a]] < firstSeen[order[b]]
	})
	if len(order) > maxTopTypes {
		order = order[:maxTopTypes]
	}
	lines := make([]string, 0, len(order))
	for _, t := range order {
		lines = append(lines, fmt.Sprintf("%s: %d", t, counts[t]))
	}
	return lines
}

func exampleList(names []string) string {
	if len(names) <= maxExamples {
		return strings.Join(names, ", ")
	}
	shown := strings.Join(names[:maxExamples], ", ")
	return fmt.Sprintf("%s ... (+%d more)", shown, len(names)-maxExamples)
}

func render(displayName string, w *walk, notes []ParseNote) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== Model Summary: %s ===\n", displayName)
	fmt.Fprintf(&b, "Systems: %d | Blocks: %d | Lines: %d | XML files: %d\n",
		w.stats.Systems, w.stats.Blocks, w.stats.Lines, w.stats.XMLFiles)

	if top := topBlockTypes(w.blockTypes); len(top) > 0 {
		b.WriteString("\nTop block types:\n")
		for _, line := range top {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	if len(w.systemNames) > 0 {
		fmt.Fprintf(&b, "\nExample systems: %s\n", exampleList(w.systemNames))
	}
	if len(w.blockNames) > 0 {
		fmt.Fprintf(&b, "\nExample blocks: %s\n", exampleList(w.blockNames))
	}
	if len(notes) > 0 {
		b.WriteString("\nParse notes:\n")
		shown := notes
		if len(shown) > maxParseNotes {
			shown = shown[:maxParseNotes]
		}
		for _, n := range shown {
			fmt.Fprintf(&b, "- %s: %s\n", n.Entry, n.Message)
		}
	}
	return b.String()
}
