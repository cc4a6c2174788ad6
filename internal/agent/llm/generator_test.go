package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/fake"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"

	"github.com/feichai0017/rag-service/internal/agent/llm/mock"
)

type stubStore struct {
	docs    []schema.Document
	gotK    int
	gotText string
	err     error
}

func (s *stubStore) AddDocuments(ctx context.Context, docs []schema.Document, _ ...vectorstores.Option) ([]string, error) {
	return nil, errors.New("read only")
}

func (s *stubStore) SimilaritySearch(ctx context.Context, query string, n int, _ ...vectorstores.Option) ([]schema.Document, error) {
	s.gotK = n
	s.gotText = query
	return s.docs, s.err
}

type recordingModel struct {
	prompts []string
	answer  string
}

func (m *recordingModel) GenerateContent(ctx context.Context, msgs []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, msg := range msgs {
		for _, part := range msg.Parts {
			if t, ok := part.(llms.TextContent); ok {
				m.prompts = append(m.prompts, t.Text)
			}
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.answer}}}, nil
}

func (m *recordingModel) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, opts...)
}

func TestGeneratorAnswer(t *testing.T) {
	store := &stubStore{docs: []schema.Document{
		{PageContent: "hello world", Metadata: map[string]any{"source_filename": "notes.txt"}},
		{PageContent: "second chunk", Metadata: map[string]any{"page": 2}},
	}}
	model := &recordingModel{answer: "It is a greeting."}

	ans, err := NewGenerator(model, 0).Answer(context.Background(), store, "what is this about?")
	require.NoError(t, err)

	assert.Equal(t, "It is a greeting.", ans.Text)
	require.Len(t, ans.Sources, 2)
	assert.Equal(t, "notes.txt", ans.Sources[0].Metadata["source_filename"])
	assert.Equal(t, DefaultTopK, store.gotK)
	assert.Equal(t, "what is this about?", store.gotText)

	require.Len(t, model.prompts, 1)
	prompt := model.prompts[0]
	assert.True(t, strings.HasPrefix(prompt, "Use the following pieces of context"))
	assert.Contains(t, prompt, "Context: hello world\n\nsecond chunk\n")
	assert.Contains(t, prompt, "Question: what is this about?\n")
	assert.True(t, strings.HasSuffix(prompt, "Helpful Answer:"))
}

func TestGeneratorModelFailure(t *testing.T) {
	store := &stubStore{docs: []schema.Document{{PageContent: "x"}}}

	_, err := NewGenerator(fake.NewFakeLLM(nil), 3).Answer(context.Background(), store, "q")
	assert.Error(t, err)
	assert.Equal(t, 3, store.gotK)
}

func TestGeneratorRetrievalFailure(t *testing.T) {
	store := &stubStore{err: errors.New("index offline")}

	_, err := NewGenerator(fake.NewFakeLLM([]string{"unused"}), 5).Answer(context.Background(), store, "q")
	assert.ErrorContains(t, err, "index offline")
}

func TestNewProviderRequiresClients(t *testing.T) {
	_, err := NewProvider(nil, mock.NewMockEmbedder())
	assert.Error(t, err)

	p, err := NewProvider(fake.NewFakeLLM([]string{"a"}), mock.NewMockEmbedder())
	require.NoError(t, err)
	assert.NotNil(t, p.Model())
	assert.NotNil(t, p.Embedder())
}
