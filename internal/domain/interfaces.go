package domain

import "context"

// PageRasterizer turns a PDF into one encoded image per page
type PageRasterizer interface {
	// Rasterize renders every page of the PDF at path, all or nothing
	Rasterize(ctx context.Context, path string) (*PageImages, error)
}

// QueryDispatcher sends a question with page images to the model
type QueryDispatcher interface {
	// Query returns the model's answer to query about images
	Query(ctx context.Context, images *PageImages, query string) (string, error)
}
