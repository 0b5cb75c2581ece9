package document_test

import (
	"testing"

	"docbridge/internal/document"
)

func TestParseKind(t *testing.T) {
	kind, ok := document.ParseKind(" Heading1 ")
	if !ok || kind != document.KindHeading1 {
		t.Fatalf("ParseKind heading1: got %q ok=%v", kind, ok)
	}
	if _, ok := document.ParseKind("marquee"); ok {
		t.Fatal("unknown kind should not parse")
	}
	if _, ok := document.ParseKind(""); ok {
		t.Fatal("empty kind should not parse")
	}
}

func TestPlainTextJoinsSpans(t *testing.T) {
	node := document.Node{
		Kind: document.KindParagraph,
		Spans: []document.Span{
			{Text: "hello ", Bold: true},
			{Text: "world", Link: "https://example.com"},
		},
	}
	if got := node.PlainText(); got != "hello world" {
		t.Fatalf("PlainText = %q", got)
	}
}

func TestImageCount(t *testing.T) {
	doc := document.Document{Nodes: []document.Node{
		document.TextNode(document.KindParagraph, "a"),
		{Kind: document.KindImage, URL: "https://example.com/a.png"},
		{Kind: document.KindImage, URL: "https://example.com/b.png"},
	}}
	if got := doc.ImageCount(); got != 2 {
		t.Fatalf("ImageCount = %d", got)
	}
}

func supportSet(kinds ...document.NodeKind) map[document.NodeKind]struct{} {
	set := make(map[document.NodeKind]struct{}, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
	}
	return set
}

func TestDowngradeCalloutBecomesQuote(t *testing.T) {
	supported := supportSet(document.KindParagraph, document.KindQuote)
	out := document.Downgrade(document.TextNode(document.KindCallout, "watch out"), supported)
	if len(out) != 1 || out[0].Kind != document.KindQuote {
		t.Fatalf("expected single quote node, got %+v", out)
	}
	if out[0].PlainText() != "watch out" {
		t.Fatalf("text lost in downgrade: %q", out[0].PlainText())
	}
}

func TestDowngradeTodoKeepsCheckState(t *testing.T) {
	supported := supportSet(document.KindParagraph, document.KindBulletItem)
	node := document.TextNode(document.KindTodo, "ship it")
	node.Checked = true
	out := document.Downgrade(node, supported)
	if len(out) != 1 || out[0].Kind != document.KindBulletItem {
		t.Fatalf("expected bullet node, got %+v", out)
	}
	if got := out[0].PlainText(); got != "☑ ship it" {
		t.Fatalf("expected checked glyph, got %q", got)
	}
}

func TestDowngradeTableFlattensRows(t *testing.T) {
	supported := supportSet(document.KindParagraph)
	node := document.Node{Kind: document.KindTable, Rows: [][]string{{"a", "b"}, {"c", "d"}}}
	out := document.Downgrade(node, supported)
	if len(out) != 2 {
		t.Fatalf("expected one paragraph per row, got %d", len(out))
	}
	if out[0].PlainText() != "a | b" || out[1].PlainText() != "c | d" {
		t.Fatalf("unexpected flattened rows: %q, %q", out[0].PlainText(), out[1].PlainText())
	}
}

func TestDowngradeSupportedKindPassesThrough(t *testing.T) {
	supported := supportSet(document.KindCode, document.KindParagraph)
	node := document.TextNode(document.KindCode, "x := 1")
	node.Language = "go"
	out := document.Downgrade(node, supported)
	if len(out) != 1 || out[0].Kind != document.KindCode || out[0].Language != "go" {
		t.Fatalf("supported node should be untouched, got %+v", out)
	}
}

func TestDowngradeEquationBecomesCode(t *testing.T) {
	supported := supportSet(document.KindParagraph, document.KindCode)
	node := document.Node{Kind: document.KindEquation, Expression: "e = mc^2"}
	out := document.Downgrade(node, supported)
	if len(out) != 1 || out[0].Kind != document.KindCode {
		t.Fatalf("expected code node, got %+v", out)
	}
	if out[0].PlainText() != "e = mc^2" {
		t.Fatalf("expression lost: %q", out[0].PlainText())
	}
}
