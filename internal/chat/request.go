package chat

import "errors"

var (
	ErrMissingMessage = errors.New("message is required unless an image is attached")
	ErrMissingModel   = errors.New("model is required")
)

// Problem is the row the web app passes along as the current problem. Field
// names follow the problems table.
type Problem struct {
	ID          string `json:"id,omitempty"`
	ProblemText string `json:"problem_text"`
}

// Subproblem is one labeled sub-part of a problem, e.g. {"a", "Find dy/dx"}.
type Subproblem struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// Solution is a reference solution, optionally tied to a sub-part label.
type Solution struct {
	Label string `json:"label,omitempty"`
	Text  string `json:"text"`
}

// ChatRequest is the body of one gateway call.
type ChatRequest struct {
	Message             string            `json:"message"`
	Model               string            `json:"model"`
	ConversationHistory []Message         `json:"conversationHistory"`
	CurrentProblem      *Problem          `json:"currentProblem,omitempty"`
	Subproblems         []Subproblem      `json:"subproblems,omitempty"`
	Solutions           []Solution        `json:"solutions,omitempty"`
	SubproblemSolutions map[string]string `json:"subproblemSolutions,omitempty"`
	Image               string            `json:"image,omitempty"` // data-URI encoded
}

// Validate checks the request shape. An empty message is permitted only when
// an image is attached.
func (r *ChatRequest) Validate() error {
	if r.Model == "" {
		return ErrMissingModel
	}

	if r.Message == "" && r.Image == "" {
		return ErrMissingMessage
	}

	return nil
}

// ProblemContext groups everything known about the problem the student is
// working on. It only ever enriches the prompt; the gateway never mutates it.
type ProblemContext struct {
	ProblemText         string
	Subproblems         []Subproblem
	Solutions           []Solution
	SubproblemSolutions map[string]string
}

// ProblemContext extracts the problem context from the request, or nil when
// no problem is attached.
func (r *ChatRequest) ProblemContext() *ProblemContext {
	if r.CurrentProblem == nil {
		return nil
	}

	return &ProblemContext{
		ProblemText:         r.CurrentProblem.ProblemText,
		Subproblems:         r.Subproblems,
		Solutions:           r.Solutions,
		SubproblemSolutions: r.SubproblemSolutions,
	}
}
