package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"docbridge/internal/document"
	"docbridge/internal/logging"
	"docbridge/internal/mediacache"
	"docbridge/internal/pipeline"
	"docbridge/internal/queue"
	"docbridge/internal/services"
	"docbridge/internal/services/notion"
)

type fakeSource struct {
	doc      *document.Document
	fetchErr error
}

func (f *fakeSource) FetchDocument(ctx context.Context, documentID string) (*document.Document, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.doc, nil
}

func (f *fakeSource) DownloadAsset(ctx context.Context, assetURL string) ([]byte, error) {
	return []byte("asset"), nil
}

type fakeTarget struct {
	created     bool
	replaced    bool
	gotParent   string
	gotTitle    string
	gotCategory string
	gotBlocks   []notion.Block
	replacedID  string
	applyErr    error
}

func (f *fakeTarget) CreatePage(ctx context.Context, parentID, title, category string, blocks []notion.Block) (string, error) {
	if f.applyErr != nil {
		return "", f.applyErr
	}
	f.created = true
	f.gotParent = parentID
	f.gotTitle = title
	f.gotCategory = category
	f.gotBlocks = blocks
	return "new-page-1", nil
}

func (f *fakeTarget) ReplaceContent(ctx context.Context, pageID, title string, blocks []notion.Block) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	f.replaced = true
	f.replacedID = pageID
	f.gotTitle = title
	f.gotBlocks = blocks
	return nil
}

type fakeRelocator struct {
	failFor map[string]error
	calls   int
}

func (f *fakeRelocator) Resolve(ctx context.Context, originURL string, fetch mediacache.Fetcher) (mediacache.Result, error) {
	f.calls++
	if err, ok := f.failFor[originURL]; ok {
		return mediacache.Result{}, err
	}
	return mediacache.Result{URL: "https://cdn.test.example/images/" + strings.TrimPrefix(originURL, "origin://")}, nil
}

func feishuTask(targetID string) *queue.Task {
	return &queue.Task{
		ID:             1,
		SourcePlatform: queue.PlatformFeishu,
		TargetPlatform: queue.PlatformNotion,
		SourceID:       "doccn1",
		TargetID:       targetID,
	}
}

func TestSyncCreatesPageAndRelocatesImages(t *testing.T) {
	source := &fakeSource{doc: &document.Document{
		Title: "Design Notes",
		Nodes: []document.Node{
			document.TextNode(document.KindHeading1, "Design Notes"),
			{Kind: document.KindImage, URL: "origin://one.png", AltText: "diagram"},
			document.TextNode(document.KindParagraph, "body"),
		},
	}}
	target := &fakeTarget{}
	relocator := &fakeRelocator{}
	p := pipeline.New(source, target, relocator, logging.NewNop())

	outcome, err := p.Sync(context.Background(), feishuTask(""), pipeline.Options{ParentID: "parent-1", Category: "notes"})
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if !target.created || target.replaced {
		t.Fatal("expected a page creation")
	}
	if outcome.TargetID != "new-page-1" || outcome.Title != "Design Notes" {
		t.Fatalf("unexpected outcome: %#v", outcome)
	}
	if outcome.PartialNote != "" {
		t.Fatalf("no media failed, note = %q", outcome.PartialNote)
	}
	if outcome.Images != 1 || outcome.Relocated != 1 {
		t.Fatalf("image accounting off: %#v", outcome)
	}
	if target.gotParent != "parent-1" || target.gotCategory != "notes" {
		t.Fatalf("placement options not forwarded: %#v", target)
	}

	imageBlock := target.gotBlocks[1]
	external := imageBlock["image"].(map[string]any)["external"].(map[string]any)
	if external["url"] != "https://cdn.test.example/images/one.png" {
		t.Fatalf("image not rewritten to relocated URL: %v", external["url"])
	}
}

func TestSyncReplacesExistingTarget(t *testing.T) {
	source := &fakeSource{doc: &document.Document{
		Title: "Existing",
		Nodes: []document.Node{document.TextNode(document.KindParagraph, "updated")},
	}}
	target := &fakeTarget{}
	p := pipeline.New(source, target, &fakeRelocator{}, logging.NewNop())

	outcome, err := p.Sync(context.Background(), feishuTask("page-77"), pipeline.Options{})
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if !target.replaced || target.created {
		t.Fatal("expected content replacement, not creation")
	}
	if target.replacedID != "page-77" || outcome.TargetID != "page-77" {
		t.Fatalf("target id mismatch: %#v", outcome)
	}
}

func TestSyncDowngradesFailedImagesToPlaceholders(t *testing.T) {
	source := &fakeSource{doc: &document.Document{
		Title: "Mixed Media",
		Nodes: []document.Node{
			{Kind: document.KindImage, URL: "origin://ok.png"},
			{Kind: document.KindImage, URL: "origin://broken.png"},
		},
	}}
	target := &fakeTarget{}
	relocator := &fakeRelocator{failFor: map[string]error{
		"origin://broken.png": services.Wrap(services.ErrNotFound, "feishu", "download asset", "gone", nil),
	}}
	p := pipeline.New(source, target, relocator, logging.NewNop())

	outcome, err := p.Sync(context.Background(), feishuTask(""), pipeline.Options{ParentID: "parent"})
	if err != nil {
		t.Fatalf("media failure must not fail the document: %v", err)
	}
	if outcome.PartialNote != "1 of 2 images relocated" {
		t.Fatalf("partial note = %q", outcome.PartialNote)
	}
	if len(target.gotBlocks) != 2 {
		t.Fatalf("blocks = %d, want image plus placeholder", len(target.gotBlocks))
	}
	placeholder := target.gotBlocks[1]
	if placeholder["type"] != "paragraph" {
		t.Fatalf("placeholder emitted as %v", placeholder["type"])
	}
	richText := placeholder["paragraph"].(map[string]any)["rich_text"].([]map[string]any)
	content := richText[0]["text"].(map[string]any)["content"].(string)
	if !strings.HasPrefix(content, "image unavailable: ") {
		t.Fatalf("placeholder text = %q", content)
	}
}

func TestSyncEmptyDocumentCreatesEmptyPage(t *testing.T) {
	source := &fakeSource{doc: &document.Document{Title: "Empty"}}
	target := &fakeTarget{}
	p := pipeline.New(source, target, &fakeRelocator{}, logging.NewNop())

	outcome, err := p.Sync(context.Background(), feishuTask(""), pipeline.Options{ParentID: "parent"})
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if len(target.gotBlocks) != 0 {
		t.Fatalf("empty document produced %d blocks", len(target.gotBlocks))
	}
	if outcome.TargetID == "" {
		t.Fatal("empty document must still create a page")
	}
}

func TestSyncRejectsUnsupportedDirection(t *testing.T) {
	p := pipeline.New(&fakeSource{}, &fakeTarget{}, &fakeRelocator{}, logging.NewNop())
	task := &queue.Task{
		SourcePlatform: queue.PlatformNotion,
		TargetPlatform: queue.PlatformFeishu,
		SourceID:       "page-1",
	}
	_, err := p.Sync(context.Background(), task, pipeline.Options{})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if services.IsTransient(err) {
		t.Fatal("direction errors must not be retried")
	}
}

func TestSyncPropagatesFetchFailure(t *testing.T) {
	source := &fakeSource{fetchErr: services.Wrap(services.ErrRateLimited, "feishu", "fetch document", "throttled", nil)}
	p := pipeline.New(source, &fakeTarget{}, &fakeRelocator{}, logging.NewNop())

	_, err := p.Sync(context.Background(), feishuTask(""), pipeline.Options{})
	if !errors.Is(err, services.ErrRateLimited) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if !services.IsTransient(err) {
		t.Fatal("rate limited fetch must stay retryable")
	}
}
