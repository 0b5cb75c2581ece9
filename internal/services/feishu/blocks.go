package feishu

import (
	"fmt"
	"strings"

	"docbridge/internal/document"
	"docbridge/internal/textutil"
)

// Docx block type identifiers as returned by the blocks API.
const (
	blockPage     = 1
	blockText     = 2
	blockHeading1 = 3
	blockHeading2 = 4
	blockHeading3 = 5
	blockBullet   = 12
	blockOrdered  = 13
	blockCode     = 14
	blockQuote    = 15
	blockTodo     = 17
	blockCallout  = 19
	blockDivider  = 22
	blockImage    = 27
)

type rawBlock struct {
	BlockID   string `json:"block_id"`
	BlockType int    `json:"block_type"`
	ParentID  string `json:"parent_id"`

	Page     *textPayload  `json:"page"`
	Text     *textPayload  `json:"text"`
	Heading1 *textPayload  `json:"heading1"`
	Heading2 *textPayload  `json:"heading2"`
	Heading3 *textPayload  `json:"heading3"`
	Bullet   *textPayload  `json:"bullet"`
	Ordered  *textPayload  `json:"ordered"`
	Code     *codePayload  `json:"code"`
	Quote    *textPayload  `json:"quote"`
	Todo     *todoPayload  `json:"todo"`
	Callout  *textPayload  `json:"callout"`
	Image    *imagePayload `json:"image"`
}

type textPayload struct {
	Elements []textElement `json:"elements"`
}

type codePayload struct {
	Elements []textElement `json:"elements"`
	Style    struct {
		Language int `json:"language"`
	} `json:"style"`
}

type todoPayload struct {
	Elements []textElement `json:"elements"`
	Style    struct {
		Done bool `json:"done"`
	} `json:"style"`
}

type imagePayload struct {
	Token  string `json:"token"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type textElement struct {
	TextRun *struct {
		Content string `json:"content"`
		Style   struct {
			Bold          bool `json:"bold"`
			Italic        bool `json:"italic"`
			Strikethrough bool `json:"strikethrough"`
			Underline     bool `json:"underline"`
			InlineCode    bool `json:"inline_code"`
			Link          *struct {
				URL string `json:"url"`
			} `json:"link"`
		} `json:"text_element_style"`
	} `json:"text_run"`
	Equation *struct {
		Content string `json:"content"`
	} `json:"equation"`
}

// buildDocument converts raw docx blocks into the intermediate
// representation. The page block carries the document title; unknown block
// types are skipped rather than failing the whole document.
func buildDocument(c *Client, fallbackTitle string, blocks []rawBlock) *document.Document {
	doc := &document.Document{Title: textutil.NormalizeTitle(fallbackTitle)}

	for _, block := range blocks {
		switch block.BlockType {
		case blockPage:
			if block.Page != nil {
				if title := plainText(block.Page.Elements); title != "" {
					doc.Title = textutil.NormalizeTitle(title)
				}
			}
		case blockText:
			doc.Nodes = append(doc.Nodes, spanNode(document.KindParagraph, block.Text))
		case blockHeading1:
			doc.Nodes = append(doc.Nodes, spanNode(document.KindHeading1, block.Heading1))
		case blockHeading2:
			doc.Nodes = append(doc.Nodes, spanNode(document.KindHeading2, block.Heading2))
		case blockHeading3:
			doc.Nodes = append(doc.Nodes, spanNode(document.KindHeading3, block.Heading3))
		case blockBullet:
			doc.Nodes = append(doc.Nodes, spanNode(document.KindBulletItem, block.Bullet))
		case blockOrdered:
			doc.Nodes = append(doc.Nodes, spanNode(document.KindNumberItem, block.Ordered))
		case blockCode:
			node := document.Node{Kind: document.KindCode}
			if block.Code != nil {
				node.Spans = convertElements(block.Code.Elements)
				node.Language = languageName(block.Code.Style.Language)
			}
			doc.Nodes = append(doc.Nodes, node)
		case blockQuote:
			doc.Nodes = append(doc.Nodes, spanNode(document.KindQuote, block.Quote))
		case blockTodo:
			node := document.Node{Kind: document.KindTodo}
			if block.Todo != nil {
				node.Spans = convertElements(block.Todo.Elements)
				node.Checked = block.Todo.Style.Done
			}
			doc.Nodes = append(doc.Nodes, node)
		case blockCallout:
			doc.Nodes = append(doc.Nodes, spanNode(document.KindCallout, block.Callout))
		case blockDivider:
			doc.Nodes = append(doc.Nodes, document.Node{Kind: document.KindDivider})
		case blockImage:
			if block.Image == nil || block.Image.Token == "" {
				continue
			}
			doc.Nodes = append(doc.Nodes, document.Node{
				Kind:    document.KindImage,
				URL:     c.AssetURL(block.Image.Token),
				AltText: fmt.Sprintf("image (%dx%d)", block.Image.Width, block.Image.Height),
			})
		}
	}
	return doc
}

func spanNode(kind document.NodeKind, payload *textPayload) document.Node {
	node := document.Node{Kind: kind}
	if payload != nil {
		node.Spans = convertElements(payload.Elements)
	}
	return node
}

func convertElements(elements []textElement) []document.Span {
	spans := make([]document.Span, 0, len(elements))
	for _, element := range elements {
		switch {
		case element.TextRun != nil:
			run := element.TextRun
			span := document.Span{
				Text:          run.Content,
				Bold:          run.Style.Bold,
				Italic:        run.Style.Italic,
				Strikethrough: run.Style.Strikethrough,
				Underline:     run.Style.Underline,
				Code:          run.Style.InlineCode,
			}
			if run.Style.Link != nil {
				span.Link = run.Style.Link.URL
			}
			spans = append(spans, span)
		case element.Equation != nil:
			spans = append(spans, document.Span{Text: element.Equation.Content, Code: true})
		}
	}
	return spans
}

func plainText(elements []textElement) string {
	var b strings.Builder
	for _, element := range elements {
		if element.TextRun != nil {
			b.WriteString(element.TextRun.Content)
		}
	}
	return strings.TrimSpace(b.String())
}

var languageNames = map[int]string{
	1:  "python",
	2:  "java",
	3:  "cpp",
	4:  "c",
	5:  "csharp",
	6:  "javascript",
	7:  "bash",
	8:  "shell",
	9:  "go",
	10: "php",
	11: "ruby",
	12: "swift",
	13: "kotlin",
	14: "rust",
	15: "typescript",
	16: "html",
	17: "css",
	20: "xml",
	21: "json",
	22: "yaml",
	23: "toml",
	28: "sql",
	29: "markdown",
	30: "latex",
}

func languageName(id int) string {
	if name, ok := languageNames[id]; ok {
		return name
	}
	return "plain text"
}
