package server

import (
	"net/http"

	"github.com/ohsu-comp-bio/cascade/database"
	"github.com/ohsu-comp-bio/cascade/metrics"
	"github.com/ohsu-comp-bio/cascade/model"
	"github.com/ohsu-comp-bio/cascade/queue"
)

func (s *Server) createTask(req *http.Request) (interface{}, error) {
	var t model.Task
	if err := decode(req, &t); err != nil {
		return nil, err
	}
	t.TaskID = ""
	if t.JobID != "" {
		if _, err := s.store.GetJob(req.Context(), t.JobID); err != nil {
			return nil, err
		}
	}
	if err := s.store.CreateTask(req.Context(), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Server) getTask(req *http.Request) (interface{}, error) {
	return s.store.GetTask(req.Context(), vars(req, "id"))
}

func (s *Server) patchTask(req *http.Request) (interface{}, error) {
	patch, err := decodeMap(req)
	if err != nil {
		return nil, err
	}
	return s.store.UpdateTask(req.Context(), vars(req, "id"), patch)
}

func (s *Server) setTaskStatus(req *http.Request) (interface{}, error) {
	var body struct {
		Status model.TaskStatus `json:"status"`
	}
	if err := decode(req, &body); err != nil {
		return nil, err
	}
	id := vars(req, "id")
	if err := s.queue.SetStatus(req.Context(), id, body.Status); err != nil {
		return nil, err
	}
	return s.store.GetTask(req.Context(), id)
}

func (s *Server) listTasks(req *http.Request) (interface{}, error) {
	opts, err := listOptions(req, "job_index", "task_index")
	if err != nil {
		return nil, err
	}
	f := eqFilter(req, database.Filter{database.Eq("dataset_id", vars(req, "id"))}, "status", "job_id", "name")
	if f, err = jobIndexFilter(req, f); err != nil {
		return nil, err
	}
	return s.store.ListTasks(req.Context(), f, opts)
}

func (s *Server) queueTasks(req *http.Request) (interface{}, error) {
	var body struct {
		NumTasks  int    `json:"num_tasks"`
		DatasetID string `json:"dataset_id"`
	}
	if err := decode(req, &body); err != nil {
		return nil, err
	}
	if body.NumTasks <= 0 {
		return nil, model.Invalid("num_tasks must be positive")
	}
	var f database.Filter
	if body.DatasetID != "" {
		f = append(f, database.Eq("dataset_id", body.DatasetID))
	}
	n, err := s.queue.QueueTasks(req.Context(), body.NumTasks, f)
	if err != nil {
		return nil, err
	}
	return map[string]int{"queued": n}, nil
}

// processRequest is what a pilot sends when it asks for work.
type processRequest struct {
	Requirements map[string]interface{} `json:"requirements"`
	QueryParams  map[string]interface{} `json:"query_params"`
}

func (s *Server) processTask(req *http.Request) (interface{}, error) {
	var body processRequest
	if err := decode(req, &body); err != nil {
		return nil, err
	}
	return s.queue.Dispatch(req.Context(), body.Requirements, body.QueryParams)
}

func (s *Server) resetTask(req *http.Request) (interface{}, error) {
	var rep queue.ErrorReport
	if err := decode(req, &rep); err != nil {
		return nil, err
	}
	return s.queue.ReportError(req.Context(), vars(req, "id"), rep)
}

func (s *Server) completeTask(req *http.Request) (interface{}, error) {
	var rep queue.CompleteReport
	if err := decode(req, &rep); err != nil {
		return nil, err
	}
	return s.queue.ReportComplete(req.Context(), vars(req, "id"), rep)
}

func (s *Server) bulkTaskStatus(req *http.Request) (interface{}, error) {
	var body struct {
		Tasks []string `json:"tasks"`
	}
	if err := decode(req, &body); err != nil {
		return nil, err
	}
	n, err := s.queue.BulkStatus(req.Context(), vars(req, "id"), body.Tasks, model.TaskStatus(vars(req, "status")))
	if err != nil {
		return nil, err
	}
	return map[string]int{"updated": n}, nil
}

func (s *Server) bulkRequirements(req *http.Request) (interface{}, error) {
	reqs, err := decodeMap(req)
	if err != nil {
		return nil, err
	}
	n, err := s.queue.BulkRequirements(req.Context(), vars(req, "id"), vars(req, "name"), reqs)
	if err != nil {
		return nil, err
	}
	return map[string]int{"updated": n}, nil
}

func (s *Server) listPilots(req *http.Request) (interface{}, error) {
	opts, err := listOptions(req)
	if err != nil {
		return nil, err
	}
	return s.store.ListPilots(req.Context(), eqFilter(req, nil, "queue_host", "site"), opts)
}

func (s *Server) createPilot(req *http.Request) (interface{}, error) {
	var p model.Pilot
	if err := decode(req, &p); err != nil {
		return nil, err
	}
	p.PilotID = ""
	if err := s.store.CreatePilot(req.Context(), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Server) getPilot(req *http.Request) (interface{}, error) {
	return s.store.GetPilot(req.Context(), vars(req, "id"))
}

func (s *Server) patchPilot(req *http.Request) (interface{}, error) {
	patch, err := decodeMap(req)
	if err != nil {
		return nil, err
	}
	p, err := s.store.UpdatePilot(req.Context(), vars(req, "id"), patch)
	if err != nil {
		return nil, err
	}
	metrics.Heartbeat()
	return p, nil
}

func (s *Server) deletePilot(req *http.Request) (interface{}, error) {
	return nil, s.store.DeletePilot(req.Context(), vars(req, "id"))
}
