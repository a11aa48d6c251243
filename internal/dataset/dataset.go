// Package dataset reads samples from CSV files and generates synthetic
// Gaussian blobs.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Dataset is a numeric sample matrix with optional ground-truth labels.
type Dataset struct {
	X *mat.Dense
	// Labels holds one id per sample, nil when the source had none.
	Labels []int
	// Classes maps label ids back to the names found in the source.
	Classes []string
	// Columns names the feature columns.
	Columns []string
}

// LoadCSV reads a dataset from a CSV file. See ReadCSV.
func LoadCSV(path string, header bool, labelColumn int) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening CSV file: %w", err)
	}
	defer file.Close()
	return ReadCSV(file, header, labelColumn)
}

// ReadCSV parses one sample per record. Every column must be numeric except
// labelColumn (negative for none), whose values become label ids in order
// of first appearance.
func ReadCSV(r io.Reader, header bool, labelColumn int) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("CSV file is empty")
	}

	width := len(records[0])
	if labelColumn >= width {
		return nil, fmt.Errorf("label column %d out of range for %d columns", labelColumn, width)
	}
	features := width
	if labelColumn >= 0 {
		features--
	}
	if features == 0 {
		return nil, errors.New("CSV has no feature columns")
	}

	ds := &Dataset{}
	if header {
		for c, name := range records[0] {
			if c != labelColumn {
				ds.Columns = append(ds.Columns, strings.TrimSpace(name))
			}
		}
		records = records[1:]
	} else {
		for c := 0; c < features; c++ {
			ds.Columns = append(ds.Columns, fmt.Sprintf("x%d", c))
		}
	}
	if len(records) == 0 {
		return nil, errors.New("CSV has no samples")
	}

	ds.X = mat.NewDense(len(records), features, nil)
	classes := map[string]int{}
	if labelColumn >= 0 {
		ds.Labels = make([]int, len(records))
	}
	for i, rec := range records {
		row := ds.X.RawRowView(i)
		f := 0
		for c, field := range rec {
			field = strings.TrimSpace(field)
			if c == labelColumn {
				id, ok := classes[field]
				if !ok {
					id = len(ds.Classes)
					classes[field] = id
					ds.Classes = append(ds.Classes, field)
				}
				ds.Labels[i] = id
				continue
			}
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("record %d, column %d: %w", i+1, c+1, err)
			}
			row[f] = v
			f++
		}
	}
	return ds, nil
}

// WriteLabels writes one "index,label" record per sample.
func WriteLabels(w io.Writer, labels []int) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"index", "label"}); err != nil {
		return err
	}
	for i, l := range labels {
		if err := writer.Write([]string{strconv.Itoa(i), strconv.Itoa(l)}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteCSV writes the samples, followed by a label column when labels is
// non-nil.
func WriteCSV(w io.Writer, x *mat.Dense, columns []string, labels []int) error {
	n, dims := x.Dims()
	if labels != nil && len(labels) != n {
		return fmt.Errorf("%d labels for %d samples", len(labels), n)
	}
	writer := csv.NewWriter(w)
	head := append([]string(nil), columns...)
	for len(head) < dims {
		head = append(head, fmt.Sprintf("x%d", len(head)))
	}
	if labels != nil {
		head = append(head, "label")
	}
	if err := writer.Write(head); err != nil {
		return err
	}
	rec := make([]string, len(head))
	for i := 0; i < n; i++ {
		for d, v := range x.RawRowView(i) {
			rec[d] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if labels != nil {
			rec[dims] = strconv.Itoa(labels[i])
		}
		if err := writer.Write(rec); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// Blobs draws size samples from an isotropic Gaussian around each center.
// Samples are grouped by center and labeled with the center's index.
func Blobs(centers [][]float64, size int, sigma float64, rng *rand.Rand) (*Dataset, error) {
	if len(centers) == 0 || size < 1 {
		return nil, fmt.Errorf("need at least one center and one sample per center, got %d and %d", len(centers), size)
	}
	if sigma <= 0 {
		return nil, fmt.Errorf("sigma must be > 0, got %f", sigma)
	}
	if rng == nil {
		return nil, errors.New("nil random source")
	}
	dims := len(centers[0])
	ds := &Dataset{
		X:      mat.NewDense(len(centers)*size, dims, nil),
		Labels: make([]int, len(centers)*size),
	}
	for d := 0; d < dims; d++ {
		ds.Columns = append(ds.Columns, fmt.Sprintf("x%d", d))
	}
	for c, center := range centers {
		if len(center) != dims {
			return nil, fmt.Errorf("center %d has %d dimensions, want %d", c, len(center), dims)
		}
		ds.Classes = append(ds.Classes, strconv.Itoa(c))
		noise := distuv.Normal{Mu: 0, Sigma: sigma, Src: rng}
		for i := 0; i < size; i++ {
			row := c*size + i
			ds.Labels[row] = c
			for d, mu := range center {
				ds.X.Set(row, d, mu+noise.Rand())
			}
		}
	}
	return ds, nil
}

// RandomCenters places k centers uniformly in [-spread, spread]^dims.
func RandomCenters(k, dims int, spread float64, rng *rand.Rand) [][]float64 {
	u := distuv.Uniform{Min: -spread, Max: spread, Src: rng}
	centers := make([][]float64, k)
	for c := range centers {
		centers[c] = make([]float64, dims)
		for d := range centers[c] {
			centers[c][d] = u.Rand()
		}
	}
	return centers
}

// Purity is the fraction of samples whose predicted cluster is the most
// common cluster among samples of their ground-truth class.
func Purity(predicted, truth []int) (float64, error) {
	if len(predicted) != len(truth) {
		return 0, fmt.Errorf("%d predictions for %d labels", len(predicted), len(truth))
	}
	if len(truth) == 0 {
		return 0, errors.New("no labels")
	}
	counts := map[[2]int]int{}
	for i := range truth {
		counts[[2]int{truth[i], predicted[i]}]++
	}
	best := map[int]int{}
	for key, c := range counts {
		best[key[0]] = max(best[key[0]], c)
	}
	var agree int
	for _, c := range best {
		agree += c
	}
	return float64(agree) / float64(len(truth)), nil
}
