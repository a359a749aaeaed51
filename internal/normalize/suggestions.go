package normalize

import (
	"github.com/jonathan/studyforge/internal/defect"
	"github.com/jonathan/studyforge/internal/tagged"
	"github.com/jonathan/studyforge/internal/types"
)

// Suggestions builds candidates from the `<suggestion>` children of a
// `<suggestions>` block. Each child needs a `<title>` and a `<tips>` list.
func Suggestions(b *tagged.Block) ([]types.Suggestion, []defect.Defect) {
	var (
		out     []types.Suggestion
		defects []defect.Defect
	)
	for i, item := range b.Children("suggestion") {
		title, _ := blockText(item, "title")
		if title == "" {
			defects = append(defects, defect.At(defect.KindNormalize, defect.CodeEmptyTitle, i, "suggestion", "suggestion has no title"))
			continue
		}

		var tips []string
		if tipsBlock, ok := item.Child("tips"); ok {
			tips = Items(tipLines(tipsBlock))
		}
		if len(tips) == 0 {
			defects = append(defects, defect.At(defect.KindNormalize, defect.CodeEmptyTips, i, title, "suggestion has no tips"))
			continue
		}

		out = append(out, types.Suggestion{Title: title, Tips: tips})
	}
	return out, defects
}

// tipLines accepts either bullet lines or `<tip>` children.
func tipLines(b *tagged.Block) []string {
	if tips := b.Children("tip"); len(tips) > 0 {
		lines := make([]string, 0, len(tips))
		for _, t := range tips {
			lines = append(lines, "- "+t.Text())
		}
		return lines
	}
	return b.Lines()
}
