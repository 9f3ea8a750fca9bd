package types

import "errors"

// SymbolKind represents the type of a code symbol. The set is
// language-dependent: Go sources yield struct and interface kinds,
// Python and TypeScript yield class kinds.
type SymbolKind string

const (
	KindFunction  SymbolKind = "function"
	KindMethod    SymbolKind = "method"
	KindClass     SymbolKind = "class"
	KindStruct    SymbolKind = "struct"
	KindInterface SymbolKind = "interface"
	KindType      SymbolKind = "type"
	KindConst     SymbolKind = "const"
	KindVar       SymbolKind = "var"
)

// Symbol represents a named definition extracted from source by a
// grammar-aware parser. It carries the complete definition text, never a
// fixed-size fragment. Parsers emit symbols without a project id; the
// indexing pipeline attaches the owning project before storage.
type Symbol struct {
	// Identification
	Name string
	Kind SymbolKind

	// Location: path relative to the project root plus the 1-based line
	// span of the full definition including its body.
	FilePath  string
	StartLine int
	EndLine   int

	// Content
	Code      string
	Docstring string

	// Parent is the enclosing symbol's name: the class for a method, the
	// receiver type for a Go method. Empty for top-level symbols.
	Parent string
}

// ValidateKind checks if the symbol kind is one of the known kinds
func (s *Symbol) ValidateKind() error {
	switch s.Kind {
	case KindFunction, KindMethod, KindClass, KindStruct, KindInterface, KindType, KindConst, KindVar:
		return nil
	default:
		return errors.New("invalid symbol kind")
	}
}

// Validate performs comprehensive validation of the symbol
func (s *Symbol) Validate() error {
	if s.Name == "" {
		return errors.New("symbol name is required")
	}

	if err := s.ValidateKind(); err != nil {
		return err
	}

	if s.FilePath == "" {
		return errors.New("file path is required")
	}

	if s.Code == "" {
		return errors.New("symbol code is required")
	}

	if s.StartLine <= 0 || s.EndLine <= 0 {
		return errors.New("invalid position: line numbers must be positive")
	}

	if s.StartLine > s.EndLine {
		return errors.New("invalid position: start line must be before or equal to end line")
	}

	return nil
}

// embeddingCodeLines caps how much of a definition body feeds the
// embedding text so one giant function does not dominate its vector.
const embeddingCodeLines = 15

// EmbeddingText builds the text handed to the embedding gateway: a header
// naming the kind, symbol and file, followed by the head of the
// definition.
func (s *Symbol) EmbeddingText() string {
	header := string(s.Kind) + " " + s.Name + "\nFile: " + s.FilePath + "\n"

	lines := 0
	for i := 0; i < len(s.Code); i++ {
		if s.Code[i] == '\n' {
			lines++
			if lines == embeddingCodeLines {
				return header + s.Code[:i]
			}
		}
	}
	return header + s.Code
}
