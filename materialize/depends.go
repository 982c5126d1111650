package materialize

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ohsu-comp-bio/cascade/database"
	"github.com/ohsu-comp-bio/cascade/model"
)

// ErrUnresolved is wrapped by errors for dependency references that name
// no existing task.
var ErrUnresolved = errors.New("unresolved dependency")

// depends resolves a template's dependency references to task IDs.
//
// A reference is tried, in order, as a sibling task name, an integer
// sibling index, "<dataset>:<name-or-index>" naming the task of the same
// job index in another dataset, and finally a raw task ID. A sibling must
// come earlier in the job than the dependent task.
func (r *run) depends(ctx context.Context, d *model.Dataset, job *model.Job, idx int, conf *model.DatasetConfig, refs []interface{}, siblings []*sibling) ([]string, error) {
	out := []string{}
	seen := map[string]bool{}
	for _, ref := range refs {
		id, err := r.resolve(ctx, d, job, idx, conf, ref, siblings)
		if err != nil {
			return nil, err
		}
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, nil
}

func (r *run) resolve(ctx context.Context, d *model.Dataset, job *model.Job, idx int, conf *model.DatasetConfig, ref interface{}, siblings []*sibling) (string, error) {
	if s, ok := ref.(string); ok {
		if dep := templateIndex(conf, s, d.TasksPerJob); dep >= 0 {
			return siblingID(dep, idx, ref, siblings)
		}
		if dep, err := strconv.Atoi(s); err == nil {
			return siblingID(dep, idx, ref, siblings)
		}
		if ds, task, ok := strings.Cut(s, ":"); ok {
			if ds == d.DatasetID || ds == strconv.Itoa(d.Dataset) {
				dep := templateIndex(conf, task, d.TasksPerJob)
				if n, err := strconv.Atoi(task); dep < 0 && err == nil {
					dep = n
				}
				return siblingID(dep, idx, ref, siblings)
			}
			return r.crossDataset(ctx, ds, task, job.JobIndex, ref)
		}
		n, err := r.store.Tasks().Count(ctx, database.Filter{database.Eq("task_id", s)})
		if err != nil {
			return "", fmt.Errorf("looking up dependency %q: %w", s, err)
		}
		if n == 0 {
			return "", fmt.Errorf("%w %q", ErrUnresolved, s)
		}
		return s, nil
	}

	dep, ok := index(ref)
	if !ok {
		return "", fmt.Errorf("%w: dependency %v is neither a name nor an index", ErrBadConfig, ref)
	}
	return siblingID(dep, idx, ref, siblings)
}

// crossDataset finds the task of another dataset with the given job index
// and task name or index. The dataset is named by ID or sequence number.
func (r *run) crossDataset(ctx context.Context, dsRef, task string, jobIndex int, ref interface{}) (string, error) {
	other, err := r.store.GetDataset(ctx, dsRef)
	if errors.Is(err, database.ErrNotFound) {
		if n, aerr := strconv.Atoi(dsRef); aerr == nil {
			ds, lerr := r.store.ListDatasets(ctx, database.Filter{database.Eq("dataset", n)}, &database.FindOptions{Limit: 1})
			if lerr != nil {
				return "", lerr
			}
			if len(ds) > 0 {
				other, err = ds[0], nil
			}
		}
	}
	if errors.Is(err, database.ErrNotFound) {
		return "", fmt.Errorf("%w %q: no dataset %s", ErrUnresolved, ref, dsRef)
	}
	if err != nil {
		return "", fmt.Errorf("looking up dataset %s: %w", dsRef, err)
	}

	f := database.Filter{
		database.Eq("dataset_id", other.DatasetID),
		database.Eq("job_index", jobIndex),
	}
	if n, err := strconv.Atoi(task); err == nil {
		f = f.And(database.Eq("task_index", n))
	} else {
		f = f.And(database.Eq("name", task))
	}
	doc, err := r.store.Tasks().FindOne(ctx, f, database.Project("task_id"))
	if errors.Is(err, database.ErrNotFound) {
		return "", fmt.Errorf("%w %q: dataset %s has no such task in job %d", ErrUnresolved, ref, other.DatasetID, jobIndex)
	}
	if err != nil {
		return "", err
	}
	return doc.String("task_id"), nil
}

func siblingID(dep, idx int, ref interface{}, siblings []*sibling) (string, error) {
	if dep < 0 || dep >= idx {
		return "", fmt.Errorf("%w: task %d depends on %v, which is not an earlier task of the job", ErrBadConfig, idx, ref)
	}
	s := siblings[dep]
	if s == nil {
		return "", fmt.Errorf("%w %v: task %d of the job does not exist", ErrUnresolved, ref, dep)
	}
	return s.id, nil
}

// templateIndex returns the index of the named template within the first
// n templates, or -1.
func templateIndex(conf *model.DatasetConfig, name string, n int) int {
	for i := 0; i < n && i < len(conf.Tasks); i++ {
		if conf.Tasks[i].Name == name {
			return i
		}
	}
	return -1
}

func index(v interface{}) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int32:
		return int(x), true
	case int64:
		return int(x), true
	case float64:
		if x != math.Trunc(x) {
			return 0, false
		}
		return int(x), true
	}
	return 0, false
}
