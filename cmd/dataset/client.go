package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/ghodss/yaml"
	"github.com/ohsu-comp-bio/cascade/client"
	"github.com/ohsu-comp-bio/cascade/cmd/util"
	"github.com/ohsu-comp-bio/cascade/config"
	"github.com/ohsu-comp-bio/cascade/model"
)

// File is the document read by "dataset create". Dataset fields sit at
// the top level next to the job config.
type File struct {
	model.Dataset
	Config []model.TaskTemplate `json:"config"`
}

// ParseFile reads a dataset document in YAML or JSON.
func ParseFile(b []byte) (*File, error) {
	f := &File{}
	if err := yaml.Unmarshal(b, f); err != nil {
		return nil, fmt.Errorf("parsing dataset: %v", err)
	}
	if len(f.Config) == 0 {
		return nil, fmt.Errorf("dataset has no config")
	}
	if f.TasksPerJob == 0 {
		f.TasksPerJob = len(f.Config)
	}
	return f, nil
}

// Create reads a dataset document from path, or from stdin when path is
// "-", and submits it.
func Create(conf config.Client, path string, stdin io.Reader, w io.Writer) error {
	b, err := util.ReadInput(path, stdin)
	if err != nil {
		return err
	}
	f, err := ParseFile(b)
	if err != nil {
		return err
	}

	cli, err := client.NewClient(conf)
	if err != nil {
		return err
	}
	d, err := cli.CreateDataset(context.Background(), &f.Dataset, f.Config)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, d.DatasetID)
	return nil
}

// Get prints datasets as JSON, one per line.
func Get(conf config.Client, ids []string, w io.Writer) error {
	cli, err := client.NewClient(conf)
	if err != nil {
		return err
	}
	for _, id := range ids {
		d, err := cli.GetDataset(context.Background(), id)
		if err != nil {
			return err
		}
		if err := printJSON(w, d); err != nil {
			return err
		}
	}
	return nil
}

// List prints datasets, optionally only those with status.
func List(conf config.Client, status string, w io.Writer) error {
	cli, err := client.NewClient(conf)
	if err != nil {
		return err
	}
	ds, err := cli.ListDatasets(context.Background(), model.DatasetStatus(status))
	if err != nil {
		return err
	}
	for _, d := range ds {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", d.DatasetID, d.Dataset, d.Status, d.Description)
	}
	return nil
}

// SetStatus moves a dataset to status.
func SetStatus(conf config.Client, id, status string) error {
	cli, err := client.NewClient(conf)
	if err != nil {
		return err
	}
	return cli.SetDatasetStatus(context.Background(), id, model.DatasetStatus(status))
}

// Counts prints the dataset's task counts by status.
func Counts(conf config.Client, id string, w io.Writer) error {
	cli, err := client.NewClient(conf)
	if err != nil {
		return err
	}
	counts, err := cli.TaskCounts(context.Background(), id)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%d\n", k, counts[k])
	}
	return nil
}

func printJSON(w io.Writer, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
