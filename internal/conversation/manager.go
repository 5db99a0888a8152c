// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/jeranaias/chatdesk/internal/model"
	"github.com/jeranaias/chatdesk/internal/provider"
)

// State is the request-cycle state of a conversation.
type State int

const (
	Idle State = iota
	AwaitingResponse
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingResponse:
		return "awaiting_response"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrResponsePending is returned by Submit while a reply is outstanding.
	ErrResponsePending = errors.New("a response is still pending")

	// ErrNotAwaiting is returned by Complete when nothing was submitted.
	ErrNotAwaiting = errors.New("no message is awaiting a response")

	// ErrDiscarded is returned by Complete when the conversation was reset
	// while the provider call was in flight.
	ErrDiscarded = errors.New("conversation was reset; response discarded")

	// ErrEmptyMessage is returned by Submit for blank input.
	ErrEmptyMessage = errors.New("message is empty")
)

// ErrorPrefix starts the assistant text that reports a failed call.
const ErrorPrefix = "Error: "

// =============================================================================
// COLLABORATORS
// =============================================================================

// Completer sends a conversation to the remote model.
type Completer interface {
	Complete(ctx context.Context, conversation []model.Message) (*provider.Completion, error)
}

// Augmenter turns raw input into message content.
type Augmenter interface {
	ClassifyAndAugment(input string) []model.ContentElement
}

// ContextSource appends the local context block to the first message.
type ContextSource interface {
	Inject(text string) (string, error)
}

// Store persists transcripts.
type Store interface {
	NextName(now time.Time, avoid string) string
	Path(name string) string
	Write(name string, messages []model.Message) error
}

// =============================================================================
// MANAGER
// =============================================================================

// Manager holds the conversation. All methods are safe for concurrent use;
// the lock is never held across the provider call.
type Manager struct {
	completer Completer
	augmenter Augmenter
	context   ContextSource
	store     Store
	logger    *slog.Logger
	now       func() time.Time

	// inflight allows a single completion at a time
	inflight *semaphore.Weighted

	mu           sync.Mutex
	messages     []model.Message
	state        State
	firstMessage bool
	filename     string
	generation   uint64
	cancel       context.CancelFunc
	observers    []func()
}

// NewManager creates an idle, empty conversation.
func NewManager(completer Completer, augmenter Augmenter, store Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		completer:    completer,
		augmenter:    augmenter,
		store:        store,
		logger:       logger,
		now:          time.Now,
		inflight:     semaphore.NewWeighted(1),
		firstMessage: true,
	}
	m.filename = m.nextName("")
	return m
}

// WithContext sets the source of the first-message context block.
func (m *Manager) WithContext(src ContextSource) *Manager {
	m.context = src
	return m
}

// WithClock overrides the clock used for transcript names.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	m.filename = m.nextName("")
	return m
}

// OnChange registers fn to run after every change to the conversation.
// Observers run on the goroutine that made the change, without the lock.
func (m *Manager) OnChange(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Submit records a user message followed by the placeholder reply.
// It returns the recorded user message.
func (m *Manager) Submit(ctx context.Context, text string) (model.Message, error) {
	if err := ctx.Err(); err != nil {
		return model.Message{}, err
	}
	if text == "" {
		return model.Message{}, ErrEmptyMessage
	}
	if m.State() != Idle {
		return model.Message{}, ErrResponsePending
	}

	// Plugins and the context loader touch the filesystem; keep them
	// outside the lock.
	content := m.augment(text)
	m.mu.Lock()
	wantContext := m.firstMessage && m.context != nil
	m.mu.Unlock()
	var withContext []model.ContentElement
	var contextErr error
	if wantContext {
		withContext, contextErr = injectContext(m.context, content)
	}

	m.mu.Lock()
	if m.state != Idle {
		m.mu.Unlock()
		return model.Message{}, ErrResponsePending
	}
	if m.firstMessage && m.context != nil {
		if !wantContext {
			// A reset raced this submit; build the block now.
			withContext, contextErr = injectContext(m.context, content)
		}
		if contextErr != nil {
			m.mu.Unlock()
			return model.Message{}, fmt.Errorf("load context: %w", contextErr)
		}
		content = withContext
	}
	m.firstMessage = false

	user := model.NewMessage(model.RoleUser, content...)
	m.messages = append(m.messages, user, model.NewPlaceholder())
	m.state = AwaitingResponse
	m.persistLocked()
	observers := m.observers
	m.mu.Unlock()

	notify(observers)
	m.logger.Debug("message submitted", "id", user.ID, "elements", len(user.Content))
	return user.Clone(), nil
}

// Complete fetches the reply for the pending message and returns the
// assistant message that replaced the placeholder. A provider failure is
// not returned as an error: the reply carries the error text instead.
func (m *Manager) Complete(ctx context.Context) (model.Message, error) {
	if err := m.inflight.Acquire(ctx, 1); err != nil {
		return model.Message{}, err
	}
	defer m.inflight.Release(1)

	m.mu.Lock()
	if m.state != AwaitingResponse {
		m.mu.Unlock()
		return model.Message{}, ErrNotAwaiting
	}
	history := withoutPlaceholders(m.messages)
	generation := m.generation
	callCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()
	defer cancel()

	completion, err := m.completer.Complete(callCtx, history)

	m.mu.Lock()
	if m.generation != generation {
		m.mu.Unlock()
		m.logger.Info("discarding response for reset conversation")
		return model.Message{}, ErrDiscarded
	}
	m.cancel = nil

	var reply model.Message
	if err != nil {
		m.logger.Warn("completion failed", "error", err)
		reply = model.NewMessage(model.RoleAssistant, model.NewText(ErrorPrefix+errorMessage(err)))
	} else {
		reply = model.NewMessage(model.RoleAssistant, model.NewText(completion.Text))
	}

	kept, removed := removePlaceholders(m.messages)
	if removed != 1 {
		m.logger.Warn("unexpected placeholder count", "count", removed)
	}
	m.messages = append(kept, reply)
	m.state = Idle
	m.persistLocked()
	observers := m.observers
	m.mu.Unlock()

	notify(observers)
	return reply.Clone(), nil
}

// Reset clears the conversation and picks a new transcript name. A
// completion in flight is cancelled and its result discarded. Nothing is
// written here; the new transcript file appears on the next Submit.
func (m *Manager) Reset() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.generation++
	m.messages = nil
	m.state = Idle
	m.firstMessage = true
	m.filename = m.nextName(m.filename)
	observers := m.observers
	m.mu.Unlock()

	notify(observers)
	m.logger.Info("conversation reset")
}

// =============================================================================
// QUERIES
// =============================================================================

// Messages returns a copy of the conversation.
func (m *Manager) Messages() []model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return model.CloneAll(m.messages)
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// TranscriptName returns the current transcript file name.
func (m *Manager) TranscriptName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filename
}

// TranscriptPath returns the full path of the current transcript file.
func (m *Manager) TranscriptPath() string {
	if m.store == nil {
		return ""
	}
	return m.store.Path(m.TranscriptName())
}

// Transcript renders the conversation as markdown.
func (m *Manager) Transcript() string {
	return model.BuildTranscript(m.Messages())
}

// =============================================================================
// HELPERS
// =============================================================================

func (m *Manager) augment(text string) []model.ContentElement {
	if m.augmenter == nil {
		return []model.ContentElement{model.NewText(text)}
	}
	return m.augmenter.ClassifyAndAugment(text)
}

func (m *Manager) nextName(avoid string) string {
	if m.store == nil {
		return ""
	}
	return m.store.NextName(m.now(), avoid)
}

// persistLocked rewrites the transcript. Failures are logged; the
// in-memory conversation stays authoritative.
func (m *Manager) persistLocked() {
	if m.store == nil {
		return
	}
	if err := m.store.Write(m.filename, m.messages); err != nil {
		m.logger.Error("failed to write transcript", "file", m.filename, "error", err)
	}
}

// injectContext appends the context block to the first text element, or
// adds a text element when the content has none.
func injectContext(src ContextSource, content []model.ContentElement) ([]model.ContentElement, error) {
	out := make([]model.ContentElement, len(content))
	copy(out, content)

	for i := range out {
		if out[i].IsText() {
			text, err := src.Inject(out[i].Text)
			if err != nil {
				return nil, err
			}
			out[i].Text = text
			return out, nil
		}
	}

	text, err := src.Inject("")
	if err != nil {
		return nil, err
	}
	if text != "" {
		out = append(out, model.NewText(text))
	}
	return out, nil
}

func withoutPlaceholders(messages []model.Message) []model.Message {
	out := make([]model.Message, 0, len(messages))
	for _, msg := range messages {
		if !msg.IsPlaceholder() {
			out = append(out, msg.Clone())
		}
	}
	return out
}

func removePlaceholders(messages []model.Message) ([]model.Message, int) {
	kept := messages[:0:0]
	removed := 0
	for _, msg := range messages {
		if msg.IsPlaceholder() {
			removed++
			continue
		}
		kept = append(kept, msg)
	}
	return kept, removed
}

func errorMessage(err error) string {
	var pe *provider.ProviderError
	if errors.As(err, &pe) {
		return pe.Message
	}
	return err.Error()
}

func notify(observers []func()) {
	for _, fn := range observers {
		fn()
	}
}
