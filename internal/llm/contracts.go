package llm

import "context"

// Image is one page image sent inline to the model.
type Image struct {
	DataURL    string // data:<mime>;base64,...
	PageNo     int    // 0-based index in the source document
	ArtifactID string // stored page_image artifact, if any
}

// PageHint steers Pass 1 toward the most reliable sources on the selected pages.
type PageHint struct {
	HasSchedules bool
	HasLegend    bool
}

// Request is a single call to the reasoning model.
type Request struct {
	System      string
	Text        string
	Images      []Image
	MaxTokens   int
	Temperature float64
	JSON        bool // ask for a single JSON object response
}

// Model is the reasoning-model boundary: instructions and images in, free-form text out.
type Model interface {
	Complete(ctx context.Context, req Request) (string, error)
	Name() string
}

// Extractor is what the job processor depends on.
type Extractor interface {
	ExtractWithAudit(ctx context.Context, images []Image, hint *PageHint) (map[string]any, error)
	ModelName() string
}
