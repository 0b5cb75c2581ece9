package notion

import (
	"docbridge/internal/document"
)

// Block is one Notion block object ready for the API. The block schema is
// polymorphic, so blocks are built as generic JSON objects by the emitters
// below.
type Block map[string]any

// supportedKinds is the set of node kinds the API can represent directly.
// Everything else is downgraded before emission.
var supportedKinds = map[document.NodeKind]struct{}{
	document.KindHeading1:   {},
	document.KindHeading2:   {},
	document.KindHeading3:   {},
	document.KindParagraph:  {},
	document.KindBulletItem: {},
	document.KindNumberItem: {},
	document.KindCode:       {},
	document.KindQuote:      {},
	document.KindEquation:   {},
	document.KindImage:      {},
	document.KindDivider:    {},
}

// SupportedKinds returns the node kinds this target renders natively.
func SupportedKinds() map[document.NodeKind]struct{} {
	kinds := make(map[document.NodeKind]struct{}, len(supportedKinds))
	for kind := range supportedKinds {
		kinds[kind] = struct{}{}
	}
	return kinds
}

// BlocksFromNodes converts intermediate nodes into Notion blocks. Nodes the
// target cannot represent are downgraded first, so the result only contains
// supported block types.
func BlocksFromNodes(nodes []document.Node) []Block {
	blocks := make([]Block, 0, len(nodes))
	for _, node := range nodes {
		for _, emit := range document.Downgrade(node, supportedKinds) {
			if block := blockFromNode(emit); block != nil {
				blocks = append(blocks, block)
			}
		}
	}
	return blocks
}

func blockFromNode(node document.Node) Block {
	switch node.Kind {
	case document.KindHeading1:
		return textBlock("heading_1", node.Spans)
	case document.KindHeading2:
		return textBlock("heading_2", node.Spans)
	case document.KindHeading3:
		return textBlock("heading_3", node.Spans)
	case document.KindParagraph:
		return textBlock("paragraph", node.Spans)
	case document.KindBulletItem:
		return textBlock("bulleted_list_item", node.Spans)
	case document.KindNumberItem:
		return textBlock("numbered_list_item", node.Spans)
	case document.KindQuote:
		return textBlock("quote", node.Spans)
	case document.KindCode:
		return Block{
			"object": "block",
			"type":   "code",
			"code": map[string]any{
				"rich_text": richText(node.Spans),
				"language":  codeLanguage(node.Language),
			},
		}
	case document.KindEquation:
		return Block{
			"object": "block",
			"type":   "equation",
			"equation": map[string]any{
				"expression": node.Expression,
			},
		}
	case document.KindDivider:
		return Block{
			"object":  "block",
			"type":    "divider",
			"divider": map[string]any{},
		}
	case document.KindImage:
		if node.URL == "" {
			return nil
		}
		image := map[string]any{
			"type":     "external",
			"external": map[string]any{"url": node.URL},
		}
		if node.AltText != "" {
			image["caption"] = []map[string]any{
				{"type": "text", "text": map[string]any{"content": node.AltText}},
			}
		}
		return Block{
			"object": "block",
			"type":   "image",
			"image":  image,
		}
	default:
		return nil
	}
}

func textBlock(blockType string, spans []document.Span) Block {
	return Block{
		"object":  "block",
		"type":    blockType,
		blockType: map[string]any{"rich_text": richText(spans)},
	}
}

func richText(spans []document.Span) []map[string]any {
	out := make([]map[string]any, 0, len(spans))
	for _, span := range spans {
		if span.Text == "" {
			continue
		}
		text := map[string]any{"content": span.Text}
		if span.Link != "" {
			text["link"] = map[string]any{"url": span.Link}
		}
		entry := map[string]any{
			"type": "text",
			"text": text,
		}
		if span.Bold || span.Italic || span.Strikethrough || span.Underline || span.Code {
			entry["annotations"] = map[string]any{
				"bold":          span.Bold,
				"italic":        span.Italic,
				"strikethrough": span.Strikethrough,
				"underline":     span.Underline,
				"code":          span.Code,
			}
		}
		out = append(out, entry)
	}
	return out
}

// codeLanguage maps a source language name onto Notion's accepted set.
// Unrecognized names fall back to plain text rather than failing the block.
func codeLanguage(language string) string {
	switch language {
	case "python", "java", "javascript", "typescript", "go", "rust", "ruby",
		"php", "swift", "kotlin", "bash", "shell", "sql", "html", "css",
		"json", "yaml", "markdown", "latex", "c", "scala", "lua", "perl",
		"haskell", "docker", "makefile":
		return language
	case "cpp":
		return "c++"
	case "csharp":
		return "c#"
	case "xml":
		return "xml"
	case "toml":
		return "plain text"
	default:
		return "plain text"
	}
}
