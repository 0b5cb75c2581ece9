// Package pipeline executes one document sync end to end: fetch the source
// tree, relocate its media, emit target-native blocks, and create or replace
// the target page.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"docbridge/internal/document"
	"docbridge/internal/logging"
	"docbridge/internal/mediacache"
	"docbridge/internal/queue"
	"docbridge/internal/services"
	"docbridge/internal/services/notion"
)

// Source fetches documents and assets from the originating platform.
type Source interface {
	FetchDocument(ctx context.Context, documentID string) (*document.Document, error)
	DownloadAsset(ctx context.Context, assetURL string) ([]byte, error)
}

// Target applies converted content to the destination platform.
type Target interface {
	CreatePage(ctx context.Context, parentID, title, category string, blocks []notion.Block) (string, error)
	ReplaceContent(ctx context.Context, pageID, title string, blocks []notion.Block) error
}

// Relocator moves one asset to durable storage and returns its new address.
type Relocator interface {
	Resolve(ctx context.Context, originURL string, fetch mediacache.Fetcher) (mediacache.Result, error)
}

// Options carry per-task placement settings resolved from sync configuration.
type Options struct {
	// ParentID is the target parent page or database for newly created pages.
	ParentID string
	Category string
}

// Outcome summarizes a completed sync.
type Outcome struct {
	TargetID string
	Title    string
	// PartialNote is non-empty when some images were replaced by placeholders.
	PartialNote string
	Nodes       int
	Images      int
	Relocated   int
}

// Pipeline transforms documents between one source and one target platform.
type Pipeline struct {
	source    Source
	target    Target
	relocator Relocator
	logger    *slog.Logger
}

// New assembles a pipeline from its stages.
func New(source Source, target Target, relocator Relocator, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		source:    source,
		target:    target,
		relocator: relocator,
		logger:    logging.NewComponentLogger(logger, "pipeline"),
	}
}

// Sync executes the task against the source and target platforms. A media
// failure degrades that node to a placeholder and is reported through
// Outcome.PartialNote; only document-level failures return an error.
func (p *Pipeline) Sync(ctx context.Context, task *queue.Task, opts Options) (Outcome, error) {
	if task == nil {
		return Outcome{}, services.Wrap(services.ErrValidation, "pipeline", "sync", "task is nil", nil)
	}
	if task.SourcePlatform != queue.PlatformFeishu || task.TargetPlatform != queue.PlatformNotion {
		return Outcome{}, services.Wrap(services.ErrValidation, "pipeline", "sync",
			fmt.Sprintf("unsupported direction %s to %s", task.SourcePlatform, task.TargetPlatform), nil)
	}

	ctx = services.WithTaskID(ctx, task.ID)
	ctx = services.WithStage(ctx, "fetch")
	doc, err := p.source.FetchDocument(ctx, task.SourceID)
	if err != nil {
		return Outcome{}, err
	}

	ctx = services.WithStage(ctx, "relocate")
	totalImages := doc.ImageCount()
	relocated, failed := p.relocateMedia(ctx, doc)

	ctx = services.WithStage(ctx, "emit")
	title := doc.Title
	if strings.TrimSpace(title) == "" {
		title = "Untitled document " + task.SourceID
	}
	blocks := notion.BlocksFromNodes(doc.Nodes)

	ctx = services.WithStage(ctx, "apply")
	outcome := Outcome{
		Title:     title,
		Nodes:     len(doc.Nodes),
		Images:    totalImages,
		Relocated: relocated,
	}
	if failed > 0 {
		outcome.PartialNote = fmt.Sprintf("%d of %d images relocated", relocated, totalImages)
	}

	if task.TargetID != "" {
		if err := p.target.ReplaceContent(ctx, task.TargetID, title, blocks); err != nil {
			return Outcome{}, err
		}
		outcome.TargetID = task.TargetID
	} else {
		pageID, err := p.target.CreatePage(ctx, opts.ParentID, title, opts.Category, blocks)
		if err != nil {
			return Outcome{}, err
		}
		outcome.TargetID = pageID
	}

	p.logger.Info("document synced",
		logging.String(logging.FieldSourceID, task.SourceID),
		logging.String(logging.FieldTargetID, outcome.TargetID),
		logging.Int("nodes", outcome.Nodes),
		logging.Int("images", outcome.Images),
		logging.Int("relocated", outcome.Relocated),
	)
	return outcome, nil
}

// relocateMedia rewrites image nodes to their relocated URLs in place. Nodes
// whose asset cannot be moved become placeholder paragraphs so the document
// still syncs.
func (p *Pipeline) relocateMedia(ctx context.Context, doc *document.Document) (relocated, failed int) {
	for i := range doc.Nodes {
		node := &doc.Nodes[i]
		if node.Kind != document.KindImage {
			continue
		}
		result, err := p.relocator.Resolve(ctx, node.URL, p.source.DownloadAsset)
		if err != nil {
			p.logger.Warn("image relocation failed",
				logging.String("origin_url", node.URL),
				logging.Error(err),
			)
			placeholder := document.TextNode(document.KindParagraph, "image unavailable: "+node.URL)
			doc.Nodes[i] = placeholder
			failed++
			continue
		}
		node.URL = result.URL
		relocated++
	}
	return relocated, failed
}
