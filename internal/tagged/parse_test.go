package tagged

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/studyforge/internal/defect"
)

func TestParse_NestedBlocks(t *testing.T) {
	text := "<suggestions><suggestion><title>Review fractions</title><tips>\n- Practice daily\n- Use flashcards\n</tips></suggestion></suggestions>"

	root, err := Parse(text)
	require.NoError(t, err)

	suggestions, ok := root.Child("suggestions")
	require.True(t, ok)
	items := suggestions.Children("suggestion")
	require.Len(t, items, 1)

	title, ok := items[0].Child("title")
	require.True(t, ok)
	assert.Equal(t, []string{"Review fractions"}, title.Lines())

	tips, ok := items[0].Child("tips")
	require.True(t, ok)
	assert.Equal(t, []string{"- Practice daily", "- Use flashcards"}, tips.Lines())
}

func TestParse_PreservesLeafTextVerbatim(t *testing.T) {
	root, err := Parse("<strengths>\n  - Algebra:  \n•  Ratios\n</strengths>")
	require.NoError(t, err)

	block, ok := root.Child("strengths")
	require.True(t, ok)
	assert.Equal(t, []string{"  - Algebra:  ", "•  Ratios"}, block.Lines())
}

func TestParse_RepeatedSiblingsKeepOrder(t *testing.T) {
	text := `<weekly_schedule>
  <day><name>Monday</name><hours>3.5</hours></day>
  <day><name>Wednesday</name><hours>2</hours></day>
  <day><name>Friday</name><hours>1</hours></day>
</weekly_schedule>`

	root, err := Parse(text)
	require.NoError(t, err)

	schedule, ok := root.Find("weekly_schedule")
	require.True(t, ok)
	days := schedule.Children("day")
	require.Len(t, days, 3)

	var names []string
	for _, d := range days {
		name, ok := d.Child("name")
		require.True(t, ok)
		names = append(names, name.Text())
	}
	assert.Equal(t, []string{"Monday", "Wednesday", "Friday"}, names)
}

func TestParse_AbsentVersusEmpty(t *testing.T) {
	root, err := Parse("<goals></goals>")
	require.NoError(t, err)

	goals, ok := root.Child("goals")
	assert.True(t, ok, "present tag must be found")
	assert.True(t, goals.IsEmpty())

	_, ok = root.Child("weekly_schedule")
	assert.False(t, ok, "absent tag must be reported as absent")
}

func TestParse_UnbalancedTags(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantTag string
	}{
		{name: "unclosed", text: "<topic>\nAlgebra\n- What is x?", wantTag: "topic"},
		{name: "stray close", text: "Algebra</topic>", wantTag: "topic"},
		{name: "crossed", text: "<a><b>text</a></b>", wantTag: "a"},
		{name: "unclosed raw", text: "<json_output>[1,2", wantTag: "json_output"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, err := Parse(tt.text, WithRawTags("json_output"))
			assert.Nil(t, root)
			require.Error(t, err)

			var pd *ParseDefect
			require.True(t, errors.As(err, &pd))
			assert.Equal(t, defect.CodeUnbalancedTag, pd.Code)
			assert.Equal(t, tt.wantTag, pd.Tag)
			assert.Equal(t, defect.KindParse, pd.Defect().Kind)
		})
	}
}

func TestParse_NonTagAngleBracketsAreText(t *testing.T) {
	root, err := Parse("<difficulty_levels>\nIs 3 < 5 true?: 1\nIs a<>b valid?: 2\n</difficulty_levels>")
	require.NoError(t, err)

	block, ok := root.Child("difficulty_levels")
	require.True(t, ok)
	assert.Equal(t, []string{"Is 3 < 5 true?: 1", "Is a<>b valid?: 2"}, block.Lines())
}

func TestParse_RawTagKeepsContent(t *testing.T) {
	text := `Here you go:
<json_output>
[{"question": "Which tag is bold?", "options": ["<b>", "<i>", "<u>", "<s>"], "correctAnswer": "0"}]
</json_output>`

	root, err := Parse(text, WithRawTags("json_output"))
	require.NoError(t, err)

	payload, ok := root.Child("json_output")
	require.True(t, ok)
	require.Len(t, payload.Nodes, 1)
	assert.Contains(t, payload.Text(), `"<b>"`)
	assert.Equal(t, []string{"Here you go:"}, root.Lines())
}

func TestParse_FindAllReturnsOutermost(t *testing.T) {
	text := `<example><topic>Ignored</topic></example>
<topic>
Algebra
- What is x?
</topic>
<topic>
Geometry
- What is a triangle?
</topic>`

	root, err := Parse(text)
	require.NoError(t, err)

	topics := root.FindAll("topic")
	require.Len(t, topics, 3)
	assert.Len(t, root.Children("topic"), 2)
}

func TestRender_RoundTrip(t *testing.T) {
	original := NewBlock("",
		BlockNode(NewBlock("strengths", TextNode("- Algebra"), TextNode("- Ratios"))),
		BlockNode(NewBlock("suggestions",
			BlockNode(NewBlock("suggestion",
				BlockNode(NewBlock("title", TextNode("Review fractions"))),
				BlockNode(NewBlock("tips", TextNode("- Practice daily"))),
			)),
		)),
	)

	parsed, err := Parse(original.Render())
	require.NoError(t, err)
	assert.Equal(t, original, parsed)
}

func TestBlock_NilSafe(t *testing.T) {
	var b *Block
	_, ok := b.Child("x")
	assert.False(t, ok)
	assert.Nil(t, b.Lines())
	assert.Equal(t, "", b.Text())
	assert.True(t, b.IsEmpty())
}
