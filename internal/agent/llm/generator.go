package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

const DefaultTopK = 5

// PromptTemplate is the fixed answering prompt. The retrieved chunks fill context.
const PromptTemplate = `Use the following pieces of context to answer the user's question.
If you don't know the answer, just say that you don't know, don't try to make up an answer.
----------------
Context: {{.context}}
----------------
Question: {{.question}}
----------------
Helpful Answer:`

// Answer is a generated answer and the chunks it was grounded on, in retrieval order.
type Answer struct {
	Text    string
	Sources []schema.Document
}

// Generator answers questions with a stuff-documents retrieval QA chain.
type Generator struct {
	model  llms.Model
	topK   int
	prompt prompts.PromptTemplate
}

func NewGenerator(model llms.Model, topK int) *Generator {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Generator{
		model:  model,
		topK:   topK,
		prompt: prompts.NewPromptTemplate(PromptTemplate, []string{"context", "question"}),
	}
}

// Answer retrieves the top chunks for question from store and asks the model.
func (g *Generator) Answer(ctx context.Context, store vectorstores.VectorStore, question string) (*Answer, error) {
	qa := chains.NewRetrievalQA(
		chains.NewStuffDocuments(chains.NewLLMChain(g.model, g.prompt)),
		vectorstores.ToRetriever(store, g.topK),
	)
	qa.ReturnSourceDocuments = true

	out, err := chains.Call(ctx, qa, map[string]any{"query": question})
	if err != nil {
		return nil, fmt.Errorf("retrieval qa: %w", err)
	}

	text, ok := out["text"].(string)
	if !ok {
		return nil, errors.New("retrieval qa: missing answer text")
	}
	sources, _ := out["source_documents"].([]schema.Document)

	return &Answer{Text: text, Sources: sources}, nil
}
