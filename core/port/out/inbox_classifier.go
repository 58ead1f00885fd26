package out

import "context"

// ClassifyRequest is the email summary and category list sent to the classifier.
type ClassifyRequest struct {
	SystemPrompt string
	Prompt       string
}

// Classifier answers with a short free-text response to be parsed by the caller.
type Classifier interface {
	Classify(ctx context.Context, req ClassifyRequest) (string, error)
}
