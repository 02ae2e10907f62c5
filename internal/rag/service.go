// Package rag answers questions by retrieving indexed chunks and prompting a language model.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/campus-rag-chatbot/internal/embedding"
	"github.com/JakeFAU/campus-rag-chatbot/internal/llm"
	"github.com/JakeFAU/campus-rag-chatbot/internal/metrics"
	"github.com/JakeFAU/campus-rag-chatbot/internal/vectorstore"
)

// ErrEmptyQuestion is returned for a blank question.
var ErrEmptyQuestion = errors.New("empty question")

// unknownSource labels a retrieved chunk without provenance.
const unknownSource = "Unknown"

// Assistant holds the identity and fallback contact details quoted in the prompt.
type Assistant struct {
	Name  string
	Email string
	Phone string
}

// Config tunes retrieval.
type Config struct {
	TopK       int
	MaxSources int
	Assistant  Assistant
}

// Answer is a generated reply and the sources it was grounded on.
type Answer struct {
	Text    string
	Sources []string
}

// Service runs retrieval-augmented generation over an index.
type Service struct {
	embedder  embedding.Embedder
	index     vectorstore.Index
	generator llm.Generator
	cfg       Config
	logger    *zap.Logger
}

// New wires a Service. The index must have been built with embedder.
func New(embedder embedding.Embedder, index vectorstore.Index, generator llm.Generator, cfg Config, logger *zap.Logger) (*Service, error) {
	if embedder == nil || index == nil || generator == nil {
		return nil, fmt.Errorf("embedder, index and generator are required")
	}
	if err := vectorstore.CheckCompatible(index.Info(), embedder.Name(), embedder.Dimension()); err != nil {
		return nil, err
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 8
	}
	if cfg.MaxSources <= 0 {
		cfg.MaxSources = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{embedder: embedder, index: index, generator: generator, cfg: cfg, logger: logger}, nil
}

// IndexLoaded reports whether an index is attached.
func (s *Service) IndexLoaded() bool {
	return s != nil && s.index != nil
}

// Ready reports whether questions can be answered.
func (s *Service) Ready() bool {
	return s.IndexLoaded() && s.generator != nil && s.embedder != nil
}

// Answer embeds question, retrieves the top chunks, and asks the generator.
func (s *Service) Answer(ctx context.Context, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, ErrEmptyQuestion
	}
	start := time.Now()
	answer, err := s.answer(ctx, question)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.ObserveQuery(status, time.Since(start))
	return answer, err
}

func (s *Service) answer(ctx context.Context, question string) (Answer, error) {
	vector, err := embedding.EmbedOne(ctx, s.embedder, question)
	if err != nil {
		return Answer{}, fmt.Errorf("embed question: %w", err)
	}
	results, err := s.index.Search(ctx, vector, s.cfg.TopK)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieve context: %w", err)
	}

	contexts := make([]string, 0, len(results))
	sources := make([]string, 0, min(len(results), s.cfg.MaxSources))
	for i, r := range results {
		contexts = append(contexts, r.Chunk.Content)
		if i < s.cfg.MaxSources {
			source := r.Chunk.Metadata.Source
			if source == "" {
				source = unknownSource
			}
			sources = append(sources, source)
		}
	}

	prompt, err := renderPrompt(promptData{
		Name:     s.cfg.Assistant.Name,
		Email:    s.cfg.Assistant.Email,
		Phone:    s.cfg.Assistant.Phone,
		Context:  strings.Join(contexts, "\n\n"),
		Question: question,
	})
	if err != nil {
		return Answer{}, err
	}

	text, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return Answer{}, fmt.Errorf("generate answer: %w", err)
	}
	s.logger.Debug("answered question",
		zap.Int("retrieved", len(results)),
		zap.Strings("sources", sources),
	)
	return Answer{Text: text, Sources: sources}, nil
}
