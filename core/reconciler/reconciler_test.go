package reconciler_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/workpal/pulse/core/reconciler"
	"github.com/workpal/pulse/core/types"
)

// chunkReader replays a fixed chunk sequence, preserving the fragmentation.
type chunkReader struct {
	chunks []string
	i      int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.i >= len(r.chunks) {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[r.i])
	r.chunks[r.i] = r.chunks[r.i][n:]
	if r.chunks[r.i] == "" {
		r.i++
	}
	return n, nil
}

// failingReader yields its text, then a read error.
type failingReader struct {
	text string
	done bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.done {
		r.done = true
		return copy(p, r.text), nil
	}
	return 0, errors.New("connection reset")
}

type recordingSaver struct {
	question string
	answer   string
	calls    int
	replaced int
}

func (r *recordingSaver) SaveInteraction(_ context.Context, question, answer string) error {
	r.question = question
	r.answer = answer
	r.calls++
	return nil
}

func (r *recordingSaver) ReplaceAnswer(_ context.Context, question, answer string) error {
	r.question = question
	r.answer = answer
	r.replaced++
	return nil
}

func newSession(msg *types.Message, question string, opts ...reconciler.Option) *reconciler.Session {
	base := []reconciler.Option{reconciler.WithWordDelay(0)}
	return reconciler.NewSession(msg, question, append(base, opts...)...)
}

var _ = Describe("Session", func() {
	var (
		ctx context.Context
		msg *types.Message
	)

	BeforeEach(func() {
		ctx = context.Background()
		msg = types.NewPendingMessage()
	})

	Context("streaming without a marker", func() {
		It("reassembles words split across chunks", func() {
			s := newSession(msg, "What is our PTO policy?")
			Expect(s.Feed(ctx, "Our PT")).To(Succeed())
			Expect(s.Feed(ctx, "O policy all")).To(Succeed())
			Expect(s.Feed(ctx, "ows 15 days.")).To(Succeed())
			Expect(s.Finish(ctx)).To(Succeed())

			Expect(msg.Text).To(Equal("Our PTO policy allows 15 days."))
			Expect(msg.Completed).To(BeTrue())
			Expect(msg.IsLiveAgentCard).To(BeFalse())
		})

		It("keeps the rendered text a prefix of the final text at every update", func() {
			var snapshots []string
			s := newSession(msg, "q", reconciler.WithOnUpdate(func(m *types.Message) {
				snapshots = append(snapshots, m.Text)
			}))

			full := "The benefits enrollment window opens on the first of November\nid: 17\nand closes at the end of the month."
			for i := 0; i < len(full); i += 7 {
				end := i + 7
				if end > len(full) {
					end = len(full)
				}
				Expect(s.Feed(ctx, full[i:end])).To(Succeed())
			}
			Expect(s.Finish(ctx)).To(Succeed())

			Expect(msg.Text).To(Equal("The benefits enrollment window opens on the first of November\nand closes at the end of the month."))
			Expect(snapshots).NotTo(BeEmpty())
			for _, snap := range snapshots {
				Expect(strings.HasPrefix(msg.Text, snap)).To(BeTrue(),
					"snapshot %q is not a prefix of %q", snap, msg.Text)
			}
		})

		It("strips framing artifact lines regardless of how they fragment", func() {
			raw := "Hello world\nid: 3\nmore text here"
			want := "Hello world\nmore text here"

			for i := 0; i <= len(raw); i++ {
				m := types.NewPendingMessage()
				s := newSession(m, "q")
				Expect(s.Feed(ctx, raw[:i])).To(Succeed())
				Expect(s.Feed(ctx, raw[i:])).To(Succeed())
				Expect(s.Finish(ctx)).To(Succeed())
				Expect(m.Text).To(Equal(want), "split at %d", i)
			}
		})

		It("does not strip framing-like text mid-line", func() {
			s := newSession(msg, "q")
			Expect(s.Feed(ctx, "the field is named \"id:\" in the schema")).To(Succeed())
			Expect(s.Finish(ctx)).To(Succeed())
			Expect(msg.Text).To(Equal("the field is named \"id:\" in the schema"))
		})

		It("hands the finished pair to the recorder", func() {
			saver := &recordingSaver{}
			s := newSession(msg, "What is our PTO policy?", reconciler.WithRecorder(saver))
			Expect(s.Feed(ctx, "Fifteen days, accrued monthly across the calendar year.")).To(Succeed())
			Expect(s.Finish(ctx)).To(Succeed())

			Expect(saver.calls).To(Equal(1))
			Expect(saver.question).To(Equal("What is our PTO policy?"))
			Expect(saver.answer).To(Equal(msg.Text))
		})
	})

	Context("hand-off marker detection", func() {
		It("detects the marker for every possible chunk split", func() {
			raw := "Let me check...<<LiveAgent>>routing metadata"

			for i := 0; i <= len(raw); i++ {
				m := types.NewPendingMessage()
				s := newSession(m, "q")
				Expect(s.Feed(ctx, raw[:i])).To(Succeed())
				Expect(s.Feed(ctx, raw[i:])).To(Succeed())

				Expect(s.HandOff()).To(BeTrue(), "split at %d", i)
				Expect(m.Text).To(Equal("Let me check..."), "split at %d", i)
				Expect(m.IsLiveAgentCard).To(BeTrue())
				Expect(m.Completed).To(BeTrue())
			}
		})

		It("ignores chunks after the marker", func() {
			s := newSession(msg, "q")
			Expect(s.Feed(ctx, "Let me check...")).To(Succeed())
			Expect(s.Feed(ctx, "<<Live")).To(Succeed())
			Expect(s.Feed(ctx, "Agent>>")).To(Succeed())
			Expect(s.Feed(ctx, "this must never render")).To(Succeed())

			Expect(s.HandOff()).To(BeTrue())
			Expect(msg.Text).To(Equal("Let me check..."))
		})

		It("drops a trailing partial marker fragment at end of stream", func() {
			s := newSession(msg, "q")
			Expect(s.Feed(ctx, "Let me check...")).To(Succeed())
			Expect(s.Feed(ctx, "<<Live")).To(Succeed())
			Expect(s.Finish(ctx)).To(Succeed())

			Expect(s.HandOff()).To(BeFalse())
			Expect(msg.Text).To(Equal("Let me check..."))
			Expect(msg.Completed).To(BeTrue())
		})

		It("does not persist a hand-off turn", func() {
			saver := &recordingSaver{}
			s := newSession(msg, "q", reconciler.WithRecorder(saver))
			Expect(s.Feed(ctx, "<<LiveAgent>>")).To(Succeed())
			Expect(s.Finish(ctx)).To(Succeed())
			Expect(saver.calls).To(BeZero())
		})
	})

	Context("regenerating a response", func() {
		It("discards the previous answer before the new one streams in", func() {
			old := types.NewMessage(types.RoleAssistant, "The stale answer that must disappear.")
			s := newSession(old, "What is our PTO policy?", reconciler.WithReplace())

			Expect(old.Text).To(BeEmpty())
			Expect(old.Completed).To(BeFalse())

			Expect(s.Feed(ctx, "Fifteen days, accrued monthly.")).To(Succeed())
			Expect(s.Finish(ctx)).To(Succeed())

			Expect(old.Text).To(Equal("Fifteen days, accrued monthly."))
			Expect(old.Completed).To(BeTrue())
		})

		It("records the regenerated answer through the replace path", func() {
			saver := &recordingSaver{}
			old := types.NewMessage(types.RoleAssistant, "old")
			s := newSession(old, "q", reconciler.WithReplace(), reconciler.WithRecorder(saver))

			Expect(s.Feed(ctx, "A better answer the second time around.")).To(Succeed())
			Expect(s.Finish(ctx)).To(Succeed())

			Expect(saver.replaced).To(Equal(1))
			Expect(saver.calls).To(BeZero())
			Expect(saver.answer).To(Equal(old.Text))
		})

		It("can hand off during a regeneration", func() {
			old := types.NewMessage(types.RoleAssistant, "old")
			s := newSession(old, "q", reconciler.WithReplace())

			Expect(s.Feed(ctx, "Let me check...<<LiveAgent>>")).To(Succeed())
			Expect(s.HandOff()).To(BeTrue())
			Expect(old.Text).To(Equal("Let me check..."))
			Expect(old.IsLiveAgentCard).To(BeTrue())
		})
	})

	Context("Run", func() {
		It("renders a short response in one shot", func() {
			body := &chunkReader{chunks: []string{"Our PT", "O policy all", "ows 15 days."}}
			s := newSession(msg, "What is our PTO policy?")

			result, err := s.Run(ctx, body)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.HandOff).To(BeFalse())
			Expect(msg.Text).To(Equal("Our PTO policy allows 15 days."))
			Expect(msg.Completed).To(BeTrue())
		})

		It("treats a short response containing the marker as an immediate hand-off", func() {
			body := &chunkReader{chunks: []string{"Let me check...", "<<Live", "Agent>>"}}
			s := newSession(msg, "q")

			result, err := s.Run(ctx, body)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.HandOff).To(BeTrue())
			Expect(msg.Text).To(Equal("Let me check..."))
			Expect(msg.IsLiveAgentCard).To(BeTrue())
			Expect(msg.Completed).To(BeTrue())
		})

		It("streams a long response word by word", func() {
			var updates int
			long := "Open enrollment for health, dental and vision benefits begins on the first business day of November and runs for three weeks."
			body := &chunkReader{chunks: []string{long[:40], long[40:75], long[75:]}}
			s := newSession(msg, "q", reconciler.WithOnUpdate(func(*types.Message) { updates++ }))

			_, err := s.Run(ctx, body)
			Expect(err).NotTo(HaveOccurred())
			Expect(msg.Text).To(Equal(long))
			Expect(updates).To(BeNumerically(">", 10))
		})

		It("detects a marker deep inside a long stream", func() {
			pre := "I checked every knowledge-base article I have access to and could not resolve this myself. "
			body := &chunkReader{chunks: []string{pre, "<<Live", "Agent>>", "ignored"}}
			s := newSession(msg, "q")

			result, err := s.Run(ctx, body)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.HandOff).To(BeTrue())
			Expect(msg.Text).To(Equal(pre))
			Expect(msg.IsLiveAgentCard).To(BeTrue())
		})

		It("finalizes with partial text and a classified note on transport failure", func() {
			long := "The first part of the answer arrives fine and then the connection drops before the stream finishes. More words pad this text past the short-response threshold."
			body := &failingReader{text: long}
			s := newSession(msg, "q")

			_, err := s.Run(ctx, body)
			Expect(err).To(HaveOccurred())
			Expect(msg.Completed).To(BeTrue())
			Expect(msg.Text).To(ContainSubstring("The first part of the answer"))
			Expect(msg.Text).To(ContainSubstring(types.NoteNetwork))
		})

		It("reports the hand-off when the marker arrived before a transport failure", func() {
			body := &failingReader{text: "Let me check...<<LiveAgent>>"}
			s := newSession(msg, "q")

			result, err := s.Run(ctx, body)
			Expect(err).To(HaveOccurred())
			Expect(result.HandOff).To(BeTrue())
			Expect(msg.Text).To(Equal("Let me check..."))
			Expect(msg.IsLiveAgentCard).To(BeTrue())
			Expect(msg.Completed).To(BeTrue())
		})

		It("never leaves an empty message on an empty response", func() {
			body := &chunkReader{}
			s := newSession(msg, "q")

			_, err := s.Run(ctx, body)
			Expect(err).NotTo(HaveOccurred())
			Expect(msg.Completed).To(BeTrue())
			Expect(msg.Text).NotTo(BeEmpty())
		})
	})

	Context("Fail", func() {
		It("maps status codes to user-facing notes", func() {
			cases := map[int]string{
				401: types.NoteAuthFailed,
				403: types.NoteForbidden,
				500: types.NoteServer,
				503: types.NoteUnavailable,
			}
			for status, note := range cases {
				m := types.NewPendingMessage()
				s := newSession(m, "q")
				s.Fail(types.NewTransportError(status, fmt.Errorf("status %d", status)))
				Expect(m.Completed).To(BeTrue())
				Expect(m.Text).To(Equal(note))
			}
		})

		It("is a no-op after the message is finalized", func() {
			s := newSession(msg, "q")
			Expect(s.Feed(ctx, "All done.")).To(Succeed())
			Expect(s.Finish(ctx)).To(Succeed())
			before := msg.Text

			s.Fail(types.NewTransportError(0, errors.New("late failure")))
			Expect(msg.Text).To(Equal(before))
		})
	})
})
