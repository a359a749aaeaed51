package tagged

import (
	"strings"
)

// Node is one child of a block: either a nested block or a verbatim text line.
type Node struct {
	Block *Block
	Line  string
}

// IsBlock reports whether the node is a nested block.
func (n Node) IsBlock() bool {
	return n.Block != nil
}

// Block is a named region of text and its ordered children.
type Block struct {
	Name  string
	Nodes []Node
}

// NewBlock builds a block from nodes. It is mostly useful for rendering synthetic
// input in tests and tools.
func NewBlock(name string, nodes ...Node) *Block {
	return &Block{Name: name, Nodes: nodes}
}

// TextNode wraps a leaf line.
func TextNode(line string) Node {
	return Node{Line: line}
}

// BlockNode wraps a nested block.
func BlockNode(b *Block) Node {
	return Node{Block: b}
}

// IsEmpty reports whether the block has no children at all.
func (b *Block) IsEmpty() bool {
	return b == nil || len(b.Nodes) == 0
}

// Child returns the first direct child with the given name. The boolean is false
// when the tag is absent, which callers must distinguish from a present but empty
// block.
func (b *Block) Child(name string) (*Block, bool) {
	if b == nil {
		return nil, false
	}
	for _, n := range b.Nodes {
		if n.Block != nil && n.Block.Name == name {
			return n.Block, true
		}
	}
	return nil, false
}

// Children returns every direct child with the given name, in order.
func (b *Block) Children(name string) []*Block {
	if b == nil {
		return nil
	}
	var out []*Block
	for _, n := range b.Nodes {
		if n.Block != nil && n.Block.Name == name {
			out = append(out, n.Block)
		}
	}
	return out
}

// Blocks returns every direct child block.
func (b *Block) Blocks() []*Block {
	if b == nil {
		return nil
	}
	var out []*Block
	for _, n := range b.Nodes {
		if n.Block != nil {
			out = append(out, n.Block)
		}
	}
	return out
}

// Find returns the first descendant with the given name in document order.
func (b *Block) Find(name string) (*Block, bool) {
	if b == nil {
		return nil, false
	}
	for _, n := range b.Nodes {
		if n.Block == nil {
			continue
		}
		if n.Block.Name == name {
			return n.Block, true
		}
		if found, ok := n.Block.Find(name); ok {
			return found, true
		}
	}
	return nil, false
}

// FindAll returns the outermost descendants with the given name in document
// order. Blocks nested inside a match are not returned separately.
func (b *Block) FindAll(name string) []*Block {
	if b == nil {
		return nil
	}
	var out []*Block
	for _, n := range b.Nodes {
		if n.Block == nil {
			continue
		}
		if n.Block.Name == name {
			out = append(out, n.Block)
			continue
		}
		out = append(out, n.Block.FindAll(name)...)
	}
	return out
}

// Lines returns the direct leaf lines of the block.
func (b *Block) Lines() []string {
	if b == nil {
		return nil
	}
	var out []string
	for _, n := range b.Nodes {
		if n.Block == nil {
			out = append(out, n.Line)
		}
	}
	return out
}

// Text joins every leaf line below the block, depth first, with newlines.
func (b *Block) Text() string {
	if b == nil {
		return ""
	}
	var lines []string
	b.collect(&lines)
	return strings.Join(lines, "\n")
}

func (b *Block) collect(lines *[]string) {
	for _, n := range b.Nodes {
		if n.Block != nil {
			n.Block.collect(lines)
			continue
		}
		*lines = append(*lines, n.Line)
	}
}

// Render writes the block back out as tagged text. Parsing the result yields an
// equivalent tree.
func (b *Block) Render() string {
	var sb strings.Builder
	b.render(&sb)
	return sb.String()
}

func (b *Block) render(sb *strings.Builder) {
	if b.Name != "" {
		sb.WriteString("<" + b.Name + ">\n")
	}
	for _, n := range b.Nodes {
		if n.Block != nil {
			n.Block.render(sb)
			continue
		}
		sb.WriteString(n.Line)
		sb.WriteString("\n")
	}
	if b.Name != "" {
		sb.WriteString("</" + b.Name + ">\n")
	}
}

func (b *Block) addLines(segment string) {
	if strings.TrimSpace(segment) == "" {
		return
	}
	for _, line := range strings.Split(segment, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		b.Nodes = append(b.Nodes, Node{Line: line})
	}
}
