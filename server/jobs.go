package server

import (
	"net/http"

	"github.com/ohsu-comp-bio/cascade/database"
	"github.com/ohsu-comp-bio/cascade/events"
	"github.com/ohsu-comp-bio/cascade/model"
)

func (s *Server) createJob(req *http.Request) (interface{}, error) {
	var j model.Job
	if err := decode(req, &j); err != nil {
		return nil, err
	}
	j.JobID = ""
	if j.DatasetID != "" {
		if _, err := s.store.GetDataset(req.Context(), j.DatasetID); err != nil {
			return nil, err
		}
	}
	if err := s.store.CreateJob(req.Context(), &j); err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *Server) getJob(req *http.Request) (interface{}, error) {
	return s.store.GetJob(req.Context(), vars(req, "id"))
}

func (s *Server) patchJob(req *http.Request) (interface{}, error) {
	patch, err := decodeMap(req)
	if err != nil {
		return nil, err
	}
	return s.store.UpdateJob(req.Context(), vars(req, "id"), patch)
}

func (s *Server) setJobStatus(req *http.Request) (interface{}, error) {
	var body struct {
		Status model.JobStatus `json:"status"`
	}
	if err := decode(req, &body); err != nil {
		return nil, err
	}
	ctx := req.Context()
	id := vars(req, "id")
	prev, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetJobStatus(ctx, id, body.Status); err != nil {
		return nil, err
	}
	s.events.WriteEvent(ctx, events.NewJobStatus(id, prev.DatasetID, string(prev.Status), string(body.Status)))
	return s.store.GetJob(ctx, id)
}

func (s *Server) listJobs(req *http.Request) (interface{}, error) {
	opts, err := listOptions(req, "job_index")
	if err != nil {
		return nil, err
	}
	f := eqFilter(req, database.Filter{database.Eq("dataset_id", vars(req, "id"))}, "status")
	if f, err = jobIndexFilter(req, f); err != nil {
		return nil, err
	}
	return s.store.ListJobs(req.Context(), f, opts)
}

func (s *Server) bulkJobStatus(req *http.Request) (interface{}, error) {
	var body struct {
		Jobs []string `json:"jobs"`
	}
	if err := decode(req, &body); err != nil {
		return nil, err
	}
	if err := model.CheckBulkIDs("job", body.Jobs); err != nil {
		return nil, err
	}
	id := vars(req, "id")
	if _, err := s.store.GetDataset(req.Context(), id); err != nil {
		return nil, err
	}
	n, err := s.store.BulkJobStatus(req.Context(), id, body.Jobs, model.JobStatus(vars(req, "status")))
	if err != nil {
		return nil, err
	}
	return map[string]int{"updated": n}, nil
}
