package parser

import (
	"context"
	"fmt"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/voxbrain/voxindex/pkg/types"
)

// treeSitterParser holds a tree-sitter parser pinned to one grammar.
// sitter.Parser is not safe for concurrent use, so each parse locks.
type treeSitterParser struct {
	mu     sync.Mutex
	parser *sitter.Parser
}

func newTreeSitterParser(lang *sitter.Language) *treeSitterParser {
	p := sitter.NewParser()
	p.SetLanguage(lang)
	return &treeSitterParser{parser: p}
}

// parse returns the root node for source, or a recorded parse error on the
// result. Tree-sitter produces a tree even for broken input; only a hard
// failure (cancellation, OOM) returns no tree.
func (t *treeSitterParser) parse(ctx context.Context, filePath string, source []byte, result *types.ParseResult) *sitter.Node {
	t.mu.Lock()
	defer t.mu.Unlock()

	tree, err := t.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		result.Err = &types.ParseError{FilePath: filePath, Reason: fmt.Sprintf("parse failed: %v", err)}
		return nil
	}

	root := tree.RootNode()
	if root.HasError() {
		// Record the error but keep extracting from the partial tree.
		result.Err = &types.ParseError{FilePath: filePath, Reason: "syntax errors in file"}
	}
	return root
}

// nodeText returns the source text covered by a node.
func nodeText(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	start, end := node.StartByte(), node.EndByte()
	if int(end) > len(source) || start >= end {
		return ""
	}
	return string(source[start:end])
}

// nodeSpan returns the 1-based line span of a node.
func nodeSpan(node *sitter.Node) (int, int) {
	return int(node.StartPoint().Row) + 1, int(node.EndPoint().Row) + 1
}

// fieldText returns the text of a named field child, or "".
func fieldText(node *sitter.Node, field string, source []byte) string {
	return nodeText(node.ChildByFieldName(field), source)
}
