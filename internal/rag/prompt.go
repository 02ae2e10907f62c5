package rag

import (
	"fmt"
	"strings"
	"text/template"
)

const promptText = `You are a helpful AI assistant for {{.Name}}.
Use the following context from the university's website to answer the question.
If you don't know the answer based on the context, say "I don't have that information in my knowledge base. Please contact the university directly at {{.Email}} or call {{.Phone}}."

Context: {{.Context}}

Question: {{.Question}}

Provide a clear, concise, and friendly answer. If relevant, include specific details like dates, requirements, or contact information.

Answer:`

var promptTemplate = template.Must(template.New("prompt").Parse(promptText))

type promptData struct {
	Name     string
	Email    string
	Phone    string
	Context  string
	Question string
}

func renderPrompt(data promptData) (string, error) {
	var b strings.Builder
	if err := promptTemplate.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return b.String(), nil
}
