package tagged

import (
	"fmt"

	"github.com/jonathan/studyforge/internal/defect"
)

// ParseDefect reports text whose tag structure cannot be turned into a tree.
type ParseDefect struct {
	Code    string
	Tag     string
	Offset  int // byte offset of the offending tag in the input
	Message string
}

func (e *ParseDefect) Error() string {
	return fmt.Sprintf("parse defect %s: <%s> at offset %d: %s", e.Code, e.Tag, e.Offset, e.Message)
}

// Defect converts the parse failure into a report entry.
func (e *ParseDefect) Defect() defect.Defect {
	return defect.New(defect.KindParse, e.Code, e.Tag, fmt.Sprintf("offset %d: %s", e.Offset, e.Message))
}

func unbalanced(tag string, offset int, format string, args ...any) *ParseDefect {
	return &ParseDefect{
		Code:    defect.CodeUnbalancedTag,
		Tag:     tag,
		Offset:  offset,
		Message: fmt.Sprintf(format, args...),
	}
}
