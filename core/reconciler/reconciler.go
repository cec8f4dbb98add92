// Package reconciler turns a streamed chat response into incremental updates
// of a single in-flight message. It reassembles arbitrarily fragmented
// chunks, strips transport framing artifacts, paces word-by-word emission
// and detects the live-agent hand-off marker even when the marker straddles
// chunk boundaries.
package reconciler

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/mudler/xlog"

	"github.com/workpal/pulse/core/types"
	"github.com/workpal/pulse/pkg/xstrings"
)

// Recorder persists a finished question/answer pair. Persistence failures
// are logged, never surfaced: the rendered message is already final.
type Recorder interface {
	SaveInteraction(ctx context.Context, question, answer string) error
}

// AnswerReplacer is implemented by recorders that can store a regenerated
// answer against the already-persisted question instead of appending a new
// question/answer pair.
type AnswerReplacer interface {
	ReplaceAnswer(ctx context.Context, question, answer string) error
}

// Result reports how a reconciliation pass ended.
type Result struct {
	HandOff  bool
	FullText string
}

// Session reconciles one streamed response into one message. It exclusively
// owns the message until the message is completed.
type Session struct {
	msg      *types.Message
	question string

	marker        string
	detectPattern *regexp.Regexp
	framingPrefix string
	wordDelay     time.Duration
	shortBytes    int

	onUpdate func(*types.Message)
	recorder Recorder

	cleaner *lineCleaner
	// pending is cleaned text not yet emitted: the tail that could still be
	// the start of the marker, held back until disambiguated.
	pending     string
	markerFound bool
	finished    bool
	replace     bool
}

// Option configures a Session.
type Option func(*Session)

// WithMarker overrides the hand-off marker literal and its relaxed detection
// pattern used for short responses.
func WithMarker(marker string) Option {
	return func(s *Session) {
		s.marker = marker
		s.detectPattern = relaxedMarkerPattern(marker)
	}
}

// WithFramingPrefix overrides the framing artifact line prefix.
func WithFramingPrefix(prefix string) Option {
	return func(s *Session) { s.framingPrefix = prefix }
}

// WithWordDelay sets the per-word emission delay. Zero disables pacing.
func WithWordDelay(d time.Duration) Option {
	return func(s *Session) { s.wordDelay = d }
}

// WithShortResponseBytes sets the threshold under which a response is
// rendered at once instead of word by word.
func WithShortResponseBytes(n int) Option {
	return func(s *Session) { s.shortBytes = n }
}

// WithOnUpdate registers a callback invoked after every mutation of the
// message, including the final one.
func WithOnUpdate(fn func(*types.Message)) Option {
	return func(s *Session) { s.onUpdate = fn }
}

// WithRecorder hands finished question/answer pairs to a persistence
// collaborator.
func WithRecorder(r Recorder) Option {
	return func(s *Session) { s.recorder = r }
}

// WithReplace puts the session in regenerate mode: the target message is
// reset before the new answer streams in and the recorder is asked to
// replace the stored answer rather than append another pair.
func WithReplace() Option {
	return func(s *Session) { s.replace = true }
}

// NewSession creates a reconciliation session for one user question, bound
// to the message it will mutate.
func NewSession(msg *types.Message, question string, opts ...Option) *Session {
	s := &Session{
		msg:           msg,
		question:      question,
		marker:        "<<LiveAgent>>",
		framingPrefix: "id:",
		wordDelay:     5 * time.Millisecond,
		shortBytes:    50,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.detectPattern == nil {
		s.detectPattern = relaxedMarkerPattern(s.marker)
	}
	if s.replace {
		s.msg.Text = ""
		s.msg.Completed = false
		s.msg.IsLiveAgentCard = false
	}
	s.cleaner = newLineCleaner(s.framingPrefix)
	return s
}

// HandOff reports whether the hand-off marker has been detected.
func (s *Session) HandOff() bool { return s.markerFound }

// Run drives the session from a response body until the stream ends, the
// marker is found or a read fails. Responses shorter than the short-response
// threshold are handled in one shot: they are either a bare control signal
// or too short to warrant the streaming animation.
func (s *Session) Run(ctx context.Context, body io.Reader) (Result, error) {
	head, eof, err := readAtLeast(body, s.shortBytes)
	if err != nil {
		if head != "" {
			s.Feed(ctx, head)
		}
		s.Fail(types.NewTransportError(0, err))
		return Result{HandOff: s.markerFound, FullText: s.msg.Text}, err
	}

	if eof && len(head) < s.shortBytes {
		return s.finishShort(head), nil
	}

	if err := s.Feed(ctx, head); err != nil {
		return Result{HandOff: s.markerFound, FullText: s.msg.Text}, err
	}

	buf := make([]byte, 4096)
	for !s.markerFound {
		n, readErr := body.Read(buf)
		if n > 0 {
			if err := s.Feed(ctx, string(buf[:n])); err != nil {
				return Result{HandOff: s.markerFound, FullText: s.msg.Text}, err
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			s.Fail(types.NewTransportError(0, readErr))
			return Result{FullText: s.msg.Text}, readErr
		}
	}

	if err := s.Finish(ctx); err != nil {
		return Result{HandOff: s.markerFound, FullText: s.msg.Text}, err
	}
	return Result{HandOff: s.markerFound, FullText: s.msg.Text}, nil
}

// Feed consumes one raw chunk. Safe to call with any fragmentation; the
// marker and framing artifacts may be split anywhere. After the marker has
// been found further chunks are ignored.
func (s *Session) Feed(ctx context.Context, chunk string) error {
	if s.markerFound || s.finished {
		return nil
	}

	s.pending += s.cleaner.feed(chunk)

	if i := strings.Index(s.pending, s.marker); i >= 0 {
		before := s.pending[:i]
		s.pending = ""
		if err := s.emit(ctx, before); err != nil {
			return err
		}
		s.triggerHandOff()
		return nil
	}

	safe := len(s.pending) - markerHoldback(s.pending, s.marker)
	if safe <= 0 {
		return nil
	}
	out := s.pending[:safe]
	s.pending = s.pending[safe:]
	return s.emit(ctx, out)
}

// Finish finalizes the message after a normal end of stream and hands the
// question/answer pair to the recorder.
func (s *Session) Finish(ctx context.Context) error {
	if s.finished {
		return nil
	}

	// A held-back tail that never completed into the marker is dropped: the
	// backend emits partial marker fragments when it cuts a stream over to
	// an agent.
	tail := s.pending + s.cleaner.finish()
	s.pending = ""
	partialMarker := len(tail) >= 2 && strings.HasPrefix(s.marker, tail)
	if tail != "" && !partialMarker {
		if err := s.emit(ctx, tail); err != nil {
			return err
		}
	}

	s.finished = true
	s.msg.Completed = true
	s.notify()

	if !s.markerFound {
		s.persist(ctx, s.msg.Text)
	}
	return nil
}

// Fail finalizes the message after a transport failure: the partial text
// stays and a classified user-facing note is appended. The message is never
// left in a loading state.
func (s *Session) Fail(err error) {
	if s.finished {
		return
	}
	s.finished = true

	note := types.NoteFallback
	var chatErr *types.ChatError
	if errors.As(err, &chatErr) {
		note = chatErr.UserNote()
	}

	if s.msg.Text != "" {
		s.msg.Text += "\n\n"
	}
	s.msg.Text += note
	s.msg.Completed = true
	s.notify()

	xlog.Error("Stream reconciliation failed", "error", err, "message", s.msg.ID)
}

// finishShort handles a whole response below the short threshold: either a
// bare hand-off signal or a reply too short to animate.
func (s *Session) finishShort(raw string) Result {
	s.finished = true

	if loc := s.detectPattern.FindStringIndex(raw); loc != nil {
		before := strings.TrimSpace(xstrings.StripFramingLines(raw[:loc[0]], s.framingPrefix))
		s.msg.Text = before
		s.msg.IsLiveAgentCard = true
		s.msg.Completed = true
		s.markerFound = true
		s.notify()
		return Result{HandOff: true, FullText: before}
	}

	text := strings.TrimSpace(xstrings.StripFramingLines(raw, s.framingPrefix))
	if text == "" {
		text = "Empty response received."
	}
	s.msg.Text = text
	s.msg.Completed = true
	s.notify()

	s.persist(context.Background(), text)
	return Result{FullText: text}
}

// persist hands the finished answer to the recorder, replacing the stored
// answer in regenerate mode when the recorder supports it.
func (s *Session) persist(ctx context.Context, answer string) {
	if s.recorder == nil {
		return
	}

	var err error
	if rr, ok := s.recorder.(AnswerReplacer); ok && s.replace {
		err = rr.ReplaceAnswer(ctx, s.question, answer)
	} else {
		err = s.recorder.SaveInteraction(ctx, s.question, answer)
	}
	if err != nil {
		xlog.Warn("Failed to persist interaction", "error", err)
	}
}

func (s *Session) triggerHandOff() {
	s.markerFound = true
	s.finished = true
	s.msg.IsLiveAgentCard = true
	s.msg.Completed = true
	s.notify()
	xlog.Debug("Hand-off marker detected", "message", s.msg.ID)
}

// emit appends cleaned text to the message word by word, pacing each token
// so the UI can repaint between them.
func (s *Session) emit(ctx context.Context, text string) error {
	for _, token := range xstrings.SplitWords(text) {
		s.msg.Text += token
		s.notify()
		if err := s.pace(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) pace(ctx context.Context) error {
	if s.wordDelay <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.wordDelay):
		return nil
	}
}

func (s *Session) notify() {
	if s.onUpdate != nil {
		s.onUpdate(s.msg)
	}
}

// markerHoldback returns the length of the longest strict marker prefix
// that the text ends with. That many bytes cannot be emitted yet.
func markerHoldback(text, marker string) int {
	max := len(marker) - 1
	if max > len(text) {
		max = len(text)
	}
	for k := max; k > 0; k-- {
		if strings.HasSuffix(text, marker[:k]) {
			return k
		}
	}
	return 0
}

// readAtLeast fills from r until at least n bytes or end of stream, so a
// short response can be told apart from the start of a long one.
func readAtLeast(r io.Reader, n int) (string, bool, error) {
	var sb strings.Builder
	buf := make([]byte, 512)
	for sb.Len() < n {
		m, err := r.Read(buf)
		if m > 0 {
			sb.Write(buf[:m])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return sb.String(), true, nil
			}
			return sb.String(), false, err
		}
	}
	return sb.String(), false, nil
}

// relaxedMarkerPattern builds the tolerant detection pattern used for short
// responses, where the backend has been seen varying case and spacing.
func relaxedMarkerPattern(marker string) *regexp.Regexp {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(marker, "<<"), ">>")
	return regexp.MustCompile(`(?i)<<\s*` + regexp.QuoteMeta(trimmed) + `\s*>>`)
}
