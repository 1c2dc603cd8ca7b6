// Package evaluate scores a cluster table against hand-labelled authorities
// with pairwise precision and recall.
package evaluate

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kobza-harvester/authdedup/internal/models"
)

// Label assigns an authority to the real-world identity it describes.
type Label struct {
	EntityID int64  `json:"auth_id"`
	Group    string `json:"group"`
}

// LoadLabels reads a JSONL label file. Malformed lines are logged and skipped.
func LoadLabels(path string, logger *slog.Logger) ([]Label, error) {
	if logger == nil {
		logger = slog.Default()
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open label file: %w", err)
	}
	defer file.Close()

	var labels []Label
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var l Label
		if err := json.Unmarshal([]byte(line), &l); err != nil || l.Group == "" {
			logger.Error("Skipping malformed label line", "line", lineNum, "error", err)
			continue
		}
		labels = append(labels, l)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading labels: %w", err)
	}
	return labels, nil
}

// Results are the pairwise metrics of one evaluation.
type Results struct {
	EvaluationDate time.Time `json:"evaluation_date"`

	LabelledEntities   int `json:"labelled_entities"`
	UnlabelledClusters int `json:"unlabelled_clustered_entities"`
	Clusters           int `json:"clusters"`
	LargestCluster     int `json:"largest_cluster"`

	TruePairs      int64 `json:"true_pairs"`
	PredictedPairs int64 `json:"predicted_pairs"`
	TruePositives  int64 `json:"true_positives"`

	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`

	// ImpureClusters merge more than one labelled identity.
	ImpureClusters int `json:"impure_clusters"`
	// SplitGroups are identities spread over several clusters.
	SplitGroups int `json:"split_groups"`
}

// Evaluate compares assignments with labels. Only labelled entities count;
// an unclustered labelled entity is its own singleton cluster.
func Evaluate(assignments []models.ClusterAssignment, labels []Label) *Results {
	res := &Results{EvaluationDate: time.Now()}

	group := make(map[int64]string, len(labels))
	for _, l := range labels {
		group[l.EntityID] = l.Group
	}
	res.LabelledEntities = len(group)

	cluster := make(map[int64]int64, len(assignments))
	sizes := make(map[int64]int)
	for _, a := range assignments {
		sizes[a.ClusterID]++
		if _, ok := group[a.EntityID]; !ok {
			res.UnlabelledClusters++
			continue
		}
		cluster[a.EntityID] = a.ClusterID
	}
	res.Clusters = len(sizes)
	for _, n := range sizes {
		res.LargestCluster = max(res.LargestCluster, n)
	}

	type cell struct {
		cluster string
		group   string
	}
	perCluster := make(map[string]int64)
	perGroup := make(map[string]int64)
	perCell := make(map[cell]int64)
	clusterGroups := make(map[string]map[string]bool)
	groupClusters := make(map[string]map[string]bool)

	for entity, g := range group {
		c := fmt.Sprintf("singleton:%d", entity)
		if id, ok := cluster[entity]; ok {
			c = fmt.Sprintf("cluster:%d", id)
		}
		perCluster[c]++
		perGroup[g]++
		perCell[cell{c, g}]++

		if clusterGroups[c] == nil {
			clusterGroups[c] = make(map[string]bool)
		}
		clusterGroups[c][g] = true
		if groupClusters[g] == nil {
			groupClusters[g] = make(map[string]bool)
		}
		groupClusters[g][c] = true
	}

	for _, n := range perCluster {
		res.PredictedPairs += pairs(n)
	}
	for _, n := range perGroup {
		res.TruePairs += pairs(n)
	}
	for _, n := range perCell {
		res.TruePositives += pairs(n)
	}
	for _, gs := range clusterGroups {
		if len(gs) > 1 {
			res.ImpureClusters++
		}
	}
	for _, cs := range groupClusters {
		if len(cs) > 1 {
			res.SplitGroups++
		}
	}

	if res.PredictedPairs > 0 {
		res.Precision = float64(res.TruePositives) / float64(res.PredictedPairs)
	}
	if res.TruePairs > 0 {
		res.Recall = float64(res.TruePositives) / float64(res.TruePairs)
	}
	if res.Precision+res.Recall > 0 {
		res.F1 = 2 * res.Precision * res.Recall / (res.Precision + res.Recall)
	}
	return res
}

func pairs(n int64) int64 {
	return n * (n - 1) / 2
}

// PrintSummary writes a human-readable summary of the evaluation
func (r *Results) PrintSummary(w io.Writer) {
	fmt.Fprintln(w, "\n"+strings.Repeat("=", 70))
	fmt.Fprintln(w, "AUTHDEDUP CLUSTER EVALUATION")
	fmt.Fprintln(w, strings.Repeat("=", 70))
	fmt.Fprintf(w, "Evaluation Date: %s\n", r.EvaluationDate.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Labelled Entities: %d\n", r.LabelledEntities)
	fmt.Fprintf(w, "Unlabelled Clustered Entities: %d\n", r.UnlabelledClusters)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "CLUSTERS")
	fmt.Fprintln(w, strings.Repeat("-", 70))
	fmt.Fprintf(w, "Clusters: %d\n", r.Clusters)
	fmt.Fprintf(w, "Largest Cluster: %d\n", r.LargestCluster)
	fmt.Fprintf(w, "Impure Clusters: %d\n", r.ImpureClusters)
	fmt.Fprintf(w, "Split Identities: %d\n", r.SplitGroups)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "PAIRWISE SCORES")
	fmt.Fprintln(w, strings.Repeat("-", 70))
	fmt.Fprintf(w, "True Pairs: %d\n", r.TruePairs)
	fmt.Fprintf(w, "Predicted Pairs: %d\n", r.PredictedPairs)
	fmt.Fprintf(w, "True Positives: %d\n", r.TruePositives)
	fmt.Fprintf(w, "Precision: %.2f%% (%.3f)\n", r.Precision*100, r.Precision)
	fmt.Fprintf(w, "Recall: %.2f%% (%.3f)\n", r.Recall*100, r.Recall)
	fmt.Fprintf(w, "F1: %.3f\n", r.F1)
	fmt.Fprintln(w, strings.Repeat("=", 70))
}

// SaveToJSON saves the results to a JSON file
func (r *Results) SaveToJSON(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(r); err != nil {
		return fmt.Errorf("failed to encode results to JSON: %w", err)
	}
	return nil
}
