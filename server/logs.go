package server

import (
	"net/http"

	"github.com/ohsu-comp-bio/cascade/model"
)

func (s *Server) createLog(req *http.Request) (interface{}, error) {
	var l model.Log
	if err := decode(req, &l); err != nil {
		return nil, err
	}
	l.LogID = ""
	if err := s.store.AddLog(req.Context(), &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *Server) getLog(req *http.Request) (interface{}, error) {
	return s.store.GetLog(req.Context(), vars(req, "id"))
}

func (s *Server) taskLogs(req *http.Request) (interface{}, error) {
	return s.store.TaskLogs(req.Context(), vars(req, "id"), vars(req, "task_id"))
}
