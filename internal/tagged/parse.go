// Package tagged parses the `<name> ... </name>` pseudo-markup that language models
// emit into a tree of named blocks and verbatim leaf lines.
//
// The parser is purely structural: it does not strip bullets or whitespace inside
// lines and it knows nothing about which tags a caller expects.
package tagged

import (
	"strings"
)

// Option customizes parsing.
type Option func(*parser)

// WithRawTags marks tags whose content is kept as a single verbatim leaf instead
// of being tokenized. Use it for payloads such as JSON that may contain text which
// looks like a tag.
func WithRawTags(names ...string) Option {
	return func(p *parser) {
		for _, name := range names {
			p.raw[name] = true
		}
	}
}

type parser struct {
	text  string
	raw   map[string]bool
	stack []*Block
	opens []int // offsets of the open tags on the stack, parallel to stack[1:]
}

// tag is one well-formed open or close marker found in the input.
type tag struct {
	name    string
	closing bool
	start   int // offset of '<'
	end     int // offset just past '>'
}

// Parse builds a tree from text. The returned root block has an empty name and
// holds every top-level tag and line in input order.
//
// An open tag without a matching close (or a close without an open) yields a
// *ParseDefect; the parser never guesses where a block was meant to end.
func Parse(text string, opts ...Option) (*Block, error) {
	p := &parser{
		text: text,
		raw:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(p)
	}

	root := &Block{}
	p.stack = []*Block{root}

	pos := 0
	textStart := 0
	for pos < len(text) {
		idx := strings.IndexByte(text[pos:], '<')
		if idx < 0 {
			break
		}
		t, ok := scanTag(text, pos+idx)
		if !ok {
			pos += idx + 1
			continue
		}

		p.top().addLines(text[textStart:t.start])

		if t.closing {
			if err := p.close(t); err != nil {
				return nil, err
			}
			pos, textStart = t.end, t.end
			continue
		}

		if p.raw[t.name] {
			next, err := p.rawBlock(t)
			if err != nil {
				return nil, err
			}
			pos, textStart = next, next
			continue
		}

		child := &Block{Name: t.name}
		p.top().Nodes = append(p.top().Nodes, Node{Block: child})
		p.stack = append(p.stack, child)
		p.opens = append(p.opens, t.start)
		pos, textStart = t.end, t.end
	}

	p.top().addLines(text[textStart:])

	if len(p.stack) > 1 {
		last := len(p.stack) - 1
		return nil, unbalanced(p.stack[last].Name, p.opens[last-1], "tag is never closed")
	}
	return root, nil
}

func (p *parser) top() *Block {
	return p.stack[len(p.stack)-1]
}

func (p *parser) close(t tag) error {
	if len(p.stack) == 1 {
		return unbalanced(t.name, t.start, "closing tag without a matching open tag")
	}
	if open := p.top().Name; open != t.name {
		return unbalanced(t.name, t.start, "expected </%s>", open)
	}
	p.stack = p.stack[:len(p.stack)-1]
	p.opens = p.opens[:len(p.opens)-1]
	return nil
}

// rawBlock consumes a raw tag through its matching close marker and returns the
// offset just past it.
func (p *parser) rawBlock(t tag) (int, error) {
	closer := "</" + t.name + ">"
	rel := strings.Index(p.text[t.end:], closer)
	if rel < 0 {
		return 0, unbalanced(t.name, t.start, "tag is never closed")
	}
	child := &Block{Name: t.name}
	content := p.text[t.end : t.end+rel]
	if strings.TrimSpace(content) != "" {
		child.Nodes = append(child.Nodes, Node{Line: content})
	}
	p.top().Nodes = append(p.top().Nodes, Node{Block: child})
	return t.end + rel + len(closer), nil
}

// scanTag reports whether a well-formed tag starts at text[start] ('<').
func scanTag(text string, start int) (tag, bool) {
	i := start + 1
	closing := false
	if i < len(text) && text[i] == '/' {
		closing = true
		i++
	}
	nameStart := i
	for i < len(text) && isNameByte(text[i], i == nameStart) {
		i++
	}
	if i == nameStart || i >= len(text) || text[i] != '>' {
		return tag{}, false
	}
	return tag{
		name:    text[nameStart:i],
		closing: closing,
		start:   start,
		end:     i + 1,
	}, true
}

func isNameByte(c byte, first bool) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		return true
	case first:
		return false
	case c >= '0' && c <= '9', c == '-', c == '.':
		return true
	default:
		return false
	}
}
