package notion

import (
	"testing"

	"docbridge/internal/document"
)

func TestBlocksFromNodesEmitsNativeTypes(t *testing.T) {
	nodes := []document.Node{
		document.TextNode(document.KindHeading1, "Title"),
		{Kind: document.KindParagraph, Spans: []document.Span{
			{Text: "bold", Bold: true},
			{Text: " linked", Link: "https://example.com"},
		}},
		{Kind: document.KindCode, Spans: []document.Span{{Text: "SELECT 1"}}, Language: "sql"},
		{Kind: document.KindImage, URL: "https://cdn.example/images/a.png", AltText: "diagram"},
		{Kind: document.KindDivider},
	}

	blocks := BlocksFromNodes(nodes)
	if len(blocks) != 5 {
		t.Fatalf("blocks = %d, want 5", len(blocks))
	}

	wantTypes := []string{"heading_1", "paragraph", "code", "image", "divider"}
	for i, want := range wantTypes {
		if got := blocks[i]["type"]; got != want {
			t.Fatalf("block %d type = %v, want %s", i, got, want)
		}
	}

	paragraph := blocks[1]["paragraph"].(map[string]any)
	richText := paragraph["rich_text"].([]map[string]any)
	if len(richText) != 2 {
		t.Fatalf("rich text entries = %d, want 2", len(richText))
	}
	annotations, ok := richText[0]["annotations"].(map[string]any)
	if !ok || annotations["bold"] != true {
		t.Fatalf("bold annotation missing: %#v", richText[0])
	}
	link := richText[1]["text"].(map[string]any)["link"]
	if link == nil {
		t.Fatalf("link missing: %#v", richText[1])
	}

	code := blocks[2]["code"].(map[string]any)
	if code["language"] != "sql" {
		t.Fatalf("code language = %v", code["language"])
	}

	image := blocks[3]["image"].(map[string]any)
	external := image["external"].(map[string]any)
	if external["url"] != "https://cdn.example/images/a.png" {
		t.Fatalf("image url = %v", external["url"])
	}
}

func TestBlocksFromNodesDowngradesUnsupportedKinds(t *testing.T) {
	nodes := []document.Node{
		{Kind: document.KindCallout, Spans: []document.Span{{Text: "watch out"}}},
		{Kind: document.KindTodo, Spans: []document.Span{{Text: "ship it"}}, Checked: true},
		{Kind: document.KindTable, Rows: [][]string{{"a", "b"}, {"c", "d"}}},
	}

	blocks := BlocksFromNodes(nodes)
	if len(blocks) != 4 {
		t.Fatalf("blocks = %d, want callout + todo + two table rows", len(blocks))
	}
	if blocks[0]["type"] != "quote" {
		t.Fatalf("callout emitted as %v, want quote", blocks[0]["type"])
	}
	if blocks[1]["type"] != "bulleted_list_item" {
		t.Fatalf("todo emitted as %v, want bulleted_list_item", blocks[1]["type"])
	}
	item := blocks[1]["bulleted_list_item"].(map[string]any)
	first := item["rich_text"].([]map[string]any)[0]["text"].(map[string]any)["content"]
	if first != "☑ " {
		t.Fatalf("todo glyph = %v", first)
	}
	if blocks[2]["type"] != "paragraph" || blocks[3]["type"] != "paragraph" {
		t.Fatalf("table rows emitted as %v/%v, want paragraphs", blocks[2]["type"], blocks[3]["type"])
	}
}

func TestCodeLanguageFallback(t *testing.T) {
	if got := codeLanguage("cpp"); got != "c++" {
		t.Fatalf("cpp = %q", got)
	}
	if got := codeLanguage("klingon"); got != "plain text" {
		t.Fatalf("unknown language = %q", got)
	}
}

func TestImageWithoutURLIsDropped(t *testing.T) {
	blocks := BlocksFromNodes([]document.Node{{Kind: document.KindImage}})
	if len(blocks) != 0 {
		t.Fatalf("expected empty emission, got %#v", blocks)
	}
}
