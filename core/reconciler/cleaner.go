package reconciler

import "strings"

// lineCleaner strips transport framing artifact lines from a stream
// incrementally. The rule is line-anchored: only lines that begin with the
// framing prefix are artifacts, the same bytes mid-line are content. A line
// start that has not yet accumulated enough bytes to decide is held back.
type lineCleaner struct {
	prefix string

	// undecided holds the start of a line that is still a strict prefix of
	// the framing prefix ("i", "id" for "id:").
	undecided string
	// dropping is true while inside a framing line, until its newline.
	dropping bool
	// content is true while inside a line already known to be content.
	content bool
}

func newLineCleaner(prefix string) *lineCleaner {
	return &lineCleaner{prefix: prefix}
}

// feed consumes a raw chunk and returns the content ready for display.
func (c *lineCleaner) feed(chunk string) string {
	if c.prefix == "" {
		return chunk
	}

	var out strings.Builder
	out.Grow(len(chunk))

	for len(chunk) > 0 {
		switch {
		case c.dropping:
			i := strings.IndexByte(chunk, '\n')
			if i < 0 {
				return out.String()
			}
			chunk = chunk[i+1:]
			c.dropping = false

		case c.content:
			i := strings.IndexByte(chunk, '\n')
			if i < 0 {
				out.WriteString(chunk)
				return out.String()
			}
			out.WriteString(chunk[:i+1])
			chunk = chunk[i+1:]
			c.content = false

		default:
			// At a line start, possibly with undecided bytes carried over.
			head := c.undecided + chunk
			c.undecided = ""
			switch {
			case strings.HasPrefix(head, c.prefix):
				c.dropping = true
				chunk = head
			case len(head) < len(c.prefix) && strings.HasPrefix(c.prefix, head):
				c.undecided = head
				return out.String()
			default:
				c.content = true
				chunk = head
			}
		}
	}

	return out.String()
}

// finish flushes whatever is held back at end of stream. A line that never
// grew past a strict prefix of the framing prefix is content after all.
func (c *lineCleaner) finish() string {
	out := c.undecided
	c.undecided = ""
	c.dropping = false
	c.content = false
	return out
}
