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

package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

type decision int

const (
	undecided decision = iota
	approved
	denied
	canceled
)

// confirmModel is the bubbletea model behind TUIConfirmer.
type confirmModel struct {
	lines    []string
	decision decision
}

func (m confirmModel) Init() tea.Cmd { return nil }

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.decision = canceled
		return m, tea.Quit
	case tea.KeyRunes:
		switch strings.ToLower(string(key.Runes)) {
		case "y":
			m.decision = approved
			return m, tea.Quit
		case "n":
			m.decision = denied
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m confirmModel) View() string {
	var b strings.Builder
	for _, l := range m.lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	switch m.decision {
	case approved:
		b.WriteString("\nApproved.\n")
	case denied:
		b.WriteString("\nRejected.\n")
	case canceled:
		b.WriteString("\nCanceled.\n")
	default:
		b.WriteString("\n[y] approve  [n] reject  [esc] cancel\n")
	}
	return b.String()
}

// TUIConfirmer shows the prompt in a full-terminal bubbletea program.
type TUIConfirmer struct {
	in  io.Reader
	out io.Writer
}

// NewTUIConfirmer returns a TUIConfirmer on the given terminal streams.
// Nil streams default to the process terminal.
func NewTUIConfirmer(in io.Reader, out io.Writer) *TUIConfirmer {
	return &TUIConfirmer{in: in, out: out}
}

// Confirm runs the program until a key decides or ctx is cancelled.
func (t *TUIConfirmer) Confirm(ctx context.Context, lines []string) (bool, error) {
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if t.in != nil {
		opts = append(opts, tea.WithInput(t.in))
	}
	if t.out != nil {
		opts = append(opts, tea.WithOutput(t.out))
	}

	final, err := tea.NewProgram(confirmModel{lines: lines}, opts...).Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) || ctx.Err() != nil {
			return false, fmt.Errorf("%w: %v", ErrCanceled, err)
		}
		return false, fmt.Errorf("ui: %w", err)
	}
	return decide(final)
}

func decide(final tea.Model) (bool, error) {
	m, ok := final.(confirmModel)
	if !ok {
		return false, fmt.Errorf("ui: unexpected model %T", final)
	}
	switch m.decision {
	case approved:
		return true, nil
	case denied:
		return false, nil
	default:
		return false, ErrCanceled
	}
}
