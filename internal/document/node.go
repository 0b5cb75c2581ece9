package document

import "strings"

// NodeKind enumerates the block-level node types of the intermediate
// representation. The set is closed: conversion code switches exhaustively
// over these values and anything unknown degrades via Downgrade.
type NodeKind string

const (
	KindHeading1   NodeKind = "heading1"
	KindHeading2   NodeKind = "heading2"
	KindHeading3   NodeKind = "heading3"
	KindParagraph  NodeKind = "paragraph"
	KindBulletItem NodeKind = "bullet_item"
	KindNumberItem NodeKind = "number_item"
	KindCode       NodeKind = "code"
	KindQuote      NodeKind = "quote"
	KindCallout    NodeKind = "callout"
	KindTodo       NodeKind = "todo"
	KindDivider    NodeKind = "divider"
	KindImage      NodeKind = "image"
	KindTable      NodeKind = "table"
	KindEquation   NodeKind = "equation"
)

var allKinds = []NodeKind{
	KindHeading1,
	KindHeading2,
	KindHeading3,
	KindParagraph,
	KindBulletItem,
	KindNumberItem,
	KindCode,
	KindQuote,
	KindCallout,
	KindTodo,
	KindDivider,
	KindImage,
	KindTable,
	KindEquation,
}

var kindSet = func() map[NodeKind]struct{} {
	set := make(map[NodeKind]struct{}, len(allKinds))
	for _, kind := range allKinds {
		set[kind] = struct{}{}
	}
	return set
}()

// AllKinds returns the ordered list of known node kinds.
func AllKinds() []NodeKind {
	cp := make([]NodeKind, len(allKinds))
	copy(cp, allKinds)
	return cp
}

// ParseKind converts a string into a known NodeKind.
func ParseKind(value string) (NodeKind, bool) {
	normalized := NodeKind(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := kindSet[normalized]
	return normalized, ok
}

// Span is a run of inline text with uniform formatting.
type Span struct {
	Text          string
	Bold          bool
	Italic        bool
	Strikethrough bool
	Underline     bool
	Code          bool
	Link          string
}

// Node is one block-level element of a document.
//
// Field usage by kind:
//   - headings, paragraph, list items, quote, callout, todo: Spans
//   - code: Spans (literal text) plus Language
//   - todo: Checked
//   - image: URL (origin or relocated), AltText
//   - table: Rows (cell text, row-major)
//   - equation: Expression
//   - divider: no payload
type Node struct {
	Kind       NodeKind
	Spans      []Span
	Language   string
	Checked    bool
	URL        string
	AltText    string
	Rows       [][]string
	Expression string
}

// Document is a parsed source document: a title plus an ordered node sequence.
type Document struct {
	Title string
	Nodes []Node
}

// PlainText concatenates the node's span text without formatting.
func (n Node) PlainText() string {
	if len(n.Spans) == 0 {
		return ""
	}
	var b strings.Builder
	for _, span := range n.Spans {
		b.WriteString(span.Text)
	}
	return b.String()
}

// TextNode builds a node of the given kind from plain text.
func TextNode(kind NodeKind, text string) Node {
	return Node{Kind: kind, Spans: []Span{{Text: text}}}
}

// ImageCount reports how many image nodes the document contains.
func (d Document) ImageCount() int {
	count := 0
	for _, node := range d.Nodes {
		if node.Kind == KindImage {
			count++
		}
	}
	return count
}
