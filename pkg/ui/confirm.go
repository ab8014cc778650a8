// SPDX-License-Identifier: Apache-2.0
//
// Copyright 2025 Jeremy Hahn
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ui asks the device owner to confirm an operation.
//
// A Confirmer answers true for approval and false for an explicit denial.
// An interrupted prompt (closed input, escape key, cancelled context) is
// not a denial: it returns an error matching ErrCanceled.
package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ErrCanceled indicates the prompt ended without an answer.
var ErrCanceled = errors.New("ui: confirmation canceled")

// Confirmer shows lines to the user and waits for a decision.
type Confirmer interface {
	Confirm(ctx context.Context, lines []string) (bool, error)
}

// ConfirmerFunc adapts a function to Confirmer.
type ConfirmerFunc func(ctx context.Context, lines []string) (bool, error)

// Confirm calls f.
func (f ConfirmerFunc) Confirm(ctx context.Context, lines []string) (bool, error) {
	return f(ctx, lines)
}

// StaticConfirmer returns a fixed answer. Err, when set, wins over Approve.
type StaticConfirmer struct {
	Approve bool
	Err     error

	mu    sync.Mutex
	calls int
	last  []string
}

// Confirm records the prompt and returns the configured answer.
func (s *StaticConfirmer) Confirm(ctx context.Context, lines []string) (bool, error) {
	s.mu.Lock()
	s.calls++
	s.last = append([]string(nil), lines...)
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("%w: %v", ErrCanceled, err)
	}
	if s.Err != nil {
		return false, s.Err
	}
	return s.Approve, nil
}

// Calls returns how many prompts were shown.
func (s *StaticConfirmer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// LastPrompt returns the lines of the most recent prompt.
func (s *StaticConfirmer) LastPrompt() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.last...)
}

// PromptConfirmer asks on a line-oriented terminal: y/yes approves, n/no
// denies, anything else asks again. End of input cancels.
//
// Every line is tagged with the prompt that was showing when it was read.
// A prompt only accepts its own lines, so a late answer to a cancelled
// prompt never reaches the next one.
type PromptConfirmer struct {
	in    *bufio.Reader
	out   io.Writer
	once  sync.Once
	lines chan promptLine

	mu  sync.Mutex
	gen uint64
}

type promptLine struct {
	text string
	gen  uint64
}

// NewPromptConfirmer reads answers from in and writes prompts to out.
func NewPromptConfirmer(in io.Reader, out io.Writer) *PromptConfirmer {
	return &PromptConfirmer{in: bufio.NewReader(in), out: out, lines: make(chan promptLine)}
}

func (p *PromptConfirmer) generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen
}

// nextGeneration makes lines read from now on belong to a new prompt.
func (p *PromptConfirmer) nextGeneration() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	return p.gen
}

// readLoop feeds input lines to Confirm until the reader fails.
func (p *PromptConfirmer) readLoop() {
	defer close(p.lines)
	for {
		line, err := p.in.ReadString('\n')
		if line != "" {
			p.lines <- promptLine{text: line, gen: p.generation()}
		}
		if err != nil {
			return
		}
	}
}

// Confirm prints lines and waits for an answer or ctx cancellation.
func (p *PromptConfirmer) Confirm(ctx context.Context, lines []string) (bool, error) {
	for _, l := range lines {
		if _, err := fmt.Fprintln(p.out, l); err != nil {
			return false, fmt.Errorf("%w: %v", ErrCanceled, err)
		}
	}
	gen := p.nextGeneration()
	p.once.Do(func() { go p.readLoop() })

	for {
		fmt.Fprint(p.out, "Approve? [y/n]: ")

		var line promptLine
		var ok bool
		for {
			select {
			case <-ctx.Done():
				return false, fmt.Errorf("%w: %v", ErrCanceled, ctx.Err())
			case line, ok = <-p.lines:
			}
			if !ok || line.gen == gen {
				break
			}
			// typed while an earlier prompt was showing
		}
		if !ok {
			return false, fmt.Errorf("%w: %v", ErrCanceled, io.EOF)
		}

		switch strings.ToLower(strings.TrimSpace(line.text)) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
	}
}
