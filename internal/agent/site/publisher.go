package site

import "context"

// Publisher takes a built site live and returns its public URL.
type Publisher interface {
	Publish(ctx context.Context, projectID string, pages []Page) (string, error)
}
