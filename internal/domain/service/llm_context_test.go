package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkflowProviderRoundTrip(t *testing.T) {
	ctx := WithWorkflowProvider(context.Background(), " story_outline ", "openai")

	assert.Equal(t, "story_outline", WorkflowFromContext(ctx))
	assert.Equal(t, "openai", ProviderFromContext(ctx))
}

func TestFromContextFallbacks(t *testing.T) {
	ctx := WithWorkflow(context.Background(), "   ")

	assert.Equal(t, "unknown", WorkflowFromContext(ctx))
	assert.Equal(t, "unknown", ProviderFromContext(ctx))
	assert.Equal(t, "", SessionFromContext(ctx))
}

func TestWithSession(t *testing.T) {
	ctx := WithSession(context.Background(), "sess-1", "ada")

	assert.Equal(t, "sess-1", SessionFromContext(ctx))
	assert.Equal(t, "ada", WriterFromContext(ctx))
}
