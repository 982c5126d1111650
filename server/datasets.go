package server

import (
	"net/http"

	"github.com/ohsu-comp-bio/cascade/database"
	"github.com/ohsu-comp-bio/cascade/events"
	"github.com/ohsu-comp-bio/cascade/model"
)

func (s *Server) listDatasets(req *http.Request) (interface{}, error) {
	opts, err := listOptions(req, "dataset")
	if err != nil {
		return nil, err
	}
	f := eqFilter(req, nil, "status", "username", "group")
	return s.store.ListDatasets(req.Context(), f, opts)
}

// createDatasetRequest is a dataset with an optional initial config.
type createDatasetRequest struct {
	model.Dataset
	Config []model.TaskTemplate `json:"config,omitempty"`
}

func (s *Server) createDataset(req *http.Request) (interface{}, error) {
	var body createDatasetRequest
	if err := decode(req, &body); err != nil {
		return nil, err
	}
	d := body.Dataset
	d.DatasetID = ""
	if err := s.store.CreateDataset(req.Context(), &d); err != nil {
		return nil, err
	}
	if len(body.Config) > 0 {
		conf := &model.DatasetConfig{DatasetID: d.DatasetID, Tasks: body.Config}
		if err := s.store.PutConfig(req.Context(), conf); err != nil {
			return nil, err
		}
	}
	s.log.Info("dataset created", "datasetID", d.DatasetID, "dataset", d.Dataset, "username", d.Username)
	return &d, nil
}

func (s *Server) getDataset(req *http.Request) (interface{}, error) {
	return s.store.GetDataset(req.Context(), vars(req, "id"))
}

func (s *Server) setDatasetStatus(req *http.Request) (interface{}, error) {
	var body struct {
		Status model.DatasetStatus `json:"status"`
	}
	if err := decode(req, &body); err != nil {
		return nil, err
	}
	ctx := req.Context()
	id := vars(req, "id")
	prev, err := s.store.GetDataset(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetDatasetStatus(ctx, id, body.Status); err != nil {
		return nil, err
	}
	s.events.WriteEvent(ctx, events.NewDatasetStatus(id, string(prev.Status), string(body.Status)))
	return s.store.GetDataset(ctx, id)
}

func (s *Server) setDatasetPriority(req *http.Request) (interface{}, error) {
	var body struct {
		Priority *float64 `json:"priority"`
	}
	if err := decode(req, &body); err != nil {
		return nil, err
	}
	if body.Priority == nil {
		return nil, model.Invalid("priority is required")
	}
	id := vars(req, "id")
	if err := s.store.SetDatasetPriority(req.Context(), id, *body.Priority); err != nil {
		return nil, err
	}
	return s.store.GetDataset(req.Context(), id)
}

func (s *Server) setJobsSubmitted(req *http.Request) (interface{}, error) {
	var body struct {
		JobsSubmitted *int `json:"jobs_submitted"`
	}
	if err := decode(req, &body); err != nil {
		return nil, err
	}
	if body.JobsSubmitted == nil {
		return nil, model.Invalid("jobs_submitted is required")
	}
	return s.store.SetJobsSubmitted(req.Context(), vars(req, "id"), *body.JobsSubmitted)
}

func (s *Server) getConfig(req *http.Request) (interface{}, error) {
	return s.store.GetConfig(req.Context(), vars(req, "id"))
}

func (s *Server) putConfig(req *http.Request) (interface{}, error) {
	var c model.DatasetConfig
	if err := decode(req, &c); err != nil {
		return nil, err
	}
	c.DatasetID = vars(req, "id")
	if err := s.store.PutConfig(req.Context(), &c); err != nil {
		return nil, err
	}
	return s.store.GetConfig(req.Context(), c.DatasetID)
}

func (s *Server) taskCounts(req *http.Request) (interface{}, error) {
	id := vars(req, "id")
	if id != "" {
		if _, err := s.store.GetDataset(req.Context(), id); err != nil {
			return nil, err
		}
	}
	return s.store.TaskStatusCounts(req.Context(), id)
}

func (s *Server) setUserPriority(req *http.Request) (interface{}, error) {
	p, err := decodePriority(req)
	if err != nil {
		return nil, err
	}
	name := vars(req, "name")
	if err := s.store.SetUserPriority(req.Context(), name, p); err != nil {
		return nil, err
	}
	return &model.User{Username: name, Priority: p}, nil
}

func (s *Server) setGroupPriority(req *http.Request) (interface{}, error) {
	p, err := decodePriority(req)
	if err != nil {
		return nil, err
	}
	name := vars(req, "name")
	if err := s.store.SetGroupPriority(req.Context(), name, p); err != nil {
		return nil, err
	}
	return &model.Group{Name: name, Priority: p}, nil
}

func decodePriority(req *http.Request) (float64, error) {
	var body struct {
		Priority *float64 `json:"priority"`
	}
	if err := decode(req, &body); err != nil {
		return 0, err
	}
	if body.Priority == nil {
		return 0, model.Invalid("priority is required")
	}
	return *body.Priority, nil
}

// jobIndexFilter adds a job_index condition when the query names one.
func jobIndexFilter(req *http.Request, f database.Filter) (database.Filter, error) {
	if req.URL.Query().Get("job_index") == "" {
		return f, nil
	}
	n, err := queryInt(req, "job_index", 0)
	if err != nil {
		return nil, err
	}
	return append(f, database.Eq("job_index", n)), nil
}
