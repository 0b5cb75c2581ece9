package document

import "strings"

// Downgrade maps a node onto the nearest kind a target platform supports.
// Unsupported kinds lose fidelity but never abort a sync: a callout becomes a
// quote, a todo becomes a bullet with a checkbox glyph, an equation becomes a
// code block, and a table flattens to pipe-separated paragraphs.
func Downgrade(node Node, supported map[NodeKind]struct{}) []Node {
	if _, ok := supported[node.Kind]; ok {
		return []Node{node}
	}

	switch node.Kind {
	case KindCallout:
		node.Kind = KindQuote
		return Downgrade(node, supported)
	case KindTodo:
		glyph := "☐ "
		if node.Checked {
			glyph = "☑ "
		}
		spans := make([]Span, 0, len(node.Spans)+1)
		spans = append(spans, Span{Text: glyph})
		spans = append(spans, node.Spans...)
		return Downgrade(Node{Kind: KindBulletItem, Spans: spans}, supported)
	case KindEquation:
		return Downgrade(Node{
			Kind:     KindCode,
			Spans:    []Span{{Text: node.Expression}},
			Language: "plain text",
		}, supported)
	case KindTable:
		nodes := make([]Node, 0, len(node.Rows))
		for _, row := range node.Rows {
			nodes = append(nodes, TextNode(KindParagraph, strings.Join(row, " | ")))
		}
		if len(nodes) == 0 {
			return []Node{TextNode(KindParagraph, "")}
		}
		out := make([]Node, 0, len(nodes))
		for _, n := range nodes {
			out = append(out, Downgrade(n, supported)...)
		}
		return out
	case KindDivider:
		return Downgrade(TextNode(KindParagraph, "---"), supported)
	case KindHeading1, KindHeading2, KindHeading3, KindBulletItem, KindNumberItem, KindCode, KindQuote, KindImage:
		node.Kind = KindParagraph
		return Downgrade(node, supported)
	case KindParagraph:
		// Paragraph is the floor; emit it even if the caller's support set
		// is malformed so a document never loses a node outright.
		return []Node{node}
	default:
		node.Kind = KindParagraph
		return []Node{node}
	}
}
