package normalize

import (
	"github.com/jonathan/studyforge/internal/defect"
	"github.com/jonathan/studyforge/internal/tagged"
	"github.com/jonathan/studyforge/internal/types"
)

// Topics builds clusters from `<topic>` blocks. The first non-empty line is the
// topic name and each following line is a member question text. A topic may also
// use `<name>` and `<question>` children.
func Topics(blocks []*tagged.Block) ([]types.TopicCluster, []defect.Defect) {
	var (
		out     []types.TopicCluster
		defects []defect.Defect
	)
	for i, b := range blocks {
		cluster, ok := topic(b)
		if !ok {
			defects = append(defects, defect.At(defect.KindNormalize, defect.CodeEmptyEntry, i, "topic", "topic has no name"))
			continue
		}
		out = append(out, cluster)
	}
	return out, defects
}

func topic(b *tagged.Block) (types.TopicCluster, bool) {
	if name, ok := blockText(b, "name"); ok {
		cluster := types.TopicCluster{Name: Label(name), Members: []string{}}
		for _, q := range b.Children("question") {
			if text := CleanLine(q.Text()); text != "" {
				cluster.Members = append(cluster.Members, text)
			}
		}
		return cluster, cluster.Name != ""
	}

	var cluster types.TopicCluster
	cluster.Members = []string{}
	for _, line := range b.Lines() {
		if cluster.Name == "" {
			cluster.Name = Label(line)
			continue
		}
		if text := CleanLine(line); text != "" {
			cluster.Members = append(cluster.Members, text)
		}
	}
	return cluster, cluster.Name != ""
}
