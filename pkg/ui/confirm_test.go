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
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticConfirmer(t *testing.T) {
	ctx := context.Background()

	s := &StaticConfirmer{Approve: true}
	ok, err := s.Confirm(ctx, []string{"Sign", "abcd"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, s.Calls())
	assert.Equal(t, []string{"Sign", "abcd"}, s.LastPrompt())

	s = &StaticConfirmer{Approve: true, Err: ErrCanceled}
	_, err = s.Confirm(ctx, nil)
	assert.ErrorIs(t, err, ErrCanceled)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = (&StaticConfirmer{Approve: true}).Confirm(cctx, nil)
	assert.ErrorIs(t, err, ErrCanceled)
}

func TestConfirmerFunc(t *testing.T) {
	var got []string
	f := ConfirmerFunc(func(_ context.Context, lines []string) (bool, error) {
		got = lines
		return false, nil
	})
	ok, err := f.Confirm(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{"x"}, got)
}

func TestPromptConfirmer(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    bool
		wantErr error
	}{
		{"yes", "y\n", true, nil},
		{"yes_word", "YES\n", true, nil},
		{"no", "n\n", false, nil},
		{"retry_then_no", "maybe\n\nno\n", false, nil},
		{"no_trailing_newline", "y", true, nil},
		{"eof_cancels", "", false, ErrCanceled},
		{"eof_after_garbage", "what\n", false, ErrCanceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := NewPromptConfirmer(strings.NewReader(tt.input), &out)
			ok, err := p.Confirm(context.Background(), []string{"Backup keys?"})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			assert.Contains(t, out.String(), "Backup keys?")
		})
	}
}

func TestPromptConfirmerContextCancel(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	p := NewPromptConfirmer(r, io.Discard)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Confirm(ctx, []string{"Sign?"})
	assert.ErrorIs(t, err, ErrCanceled)
	assert.True(t, errors.Is(ctx.Err(), context.DeadlineExceeded))
}

// promptSignal reports every "Approve?" prompt written to it.
type promptSignal struct {
	prompts chan struct{}
}

func (w *promptSignal) Write(b []byte) (int, error) {
	if bytes.Contains(b, []byte("Approve?")) {
		select {
		case w.prompts <- struct{}{}:
		default:
		}
	}
	return len(b), nil
}

func (w *promptSignal) drain() {
	for {
		select {
		case <-w.prompts:
		default:
			return
		}
	}
}

func TestPromptConfirmerIgnoresLateAnswer(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	out := &promptSignal{prompts: make(chan struct{}, 8)}
	p := NewPromptConfirmer(r, out)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Confirm(ctx, []string{"Review tx 0xabcd"})
	require.ErrorIs(t, err, ErrCanceled)

	// the answer to the cancelled prompt arrives late
	_, err = w.Write([]byte("y\n"))
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	ctx2, cancel2 := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel2()
	ok, err := p.Confirm(ctx2, []string{"Export encrypted key backup"})
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrCanceled, "a stale answer must not approve a new prompt")

	// an answer given while the prompt is showing still counts
	out.drain()
	type answer struct {
		ok  bool
		err error
	}
	done := make(chan answer, 1)
	go func() {
		ok, err := p.Confirm(context.Background(), []string{"Export encrypted key backup"})
		done <- answer{ok, err}
	}()
	select {
	case <-out.prompts:
	case <-time.After(2 * time.Second):
		t.Fatal("prompt never shown")
	}
	_, err = w.Write([]byte("y\n"))
	require.NoError(t, err)

	select {
	case a := <-done:
		require.NoError(t, a.err)
		assert.True(t, a.ok)
	case <-time.After(2 * time.Second):
		t.Fatal("answer not delivered")
	}
}

func TestConfirmModel(t *testing.T) {
	press := func(m tea.Model, msg tea.KeyMsg) tea.Model {
		next, _ := m.Update(msg)
		return next
	}
	runes := func(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

	base := confirmModel{lines: []string{"Sign tx", "0xabcd"}}
	assert.Contains(t, base.View(), "0xabcd")
	assert.Contains(t, base.View(), "[y] approve")

	ok, err := decide(press(base, runes("y")))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = decide(press(base, runes("N")))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = decide(press(base, tea.KeyMsg{Type: tea.KeyEsc}))
	assert.ErrorIs(t, err, ErrCanceled)

	_, err = decide(press(base, tea.KeyMsg{Type: tea.KeyCtrlC}))
	assert.ErrorIs(t, err, ErrCanceled)

	unchanged := press(base, runes("x"))
	_, err = decide(unchanged)
	assert.ErrorIs(t, err, ErrCanceled, "an undecided model is a cancellation")

	next, cmd := base.Update(tea.WindowSizeMsg{Width: 80})
	assert.Nil(t, cmd)
	assert.Equal(t, base.lines, next.(confirmModel).lines)
}
