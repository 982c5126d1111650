package server

import (
	"net/http"

	"github.com/ohsu-comp-bio/cascade/model"
)

func (s *Server) requestMaterialization(req *http.Request) (interface{}, error) {
	var body struct {
		Num       int              `json:"num"`
		SetStatus model.TaskStatus `json:"set_status"`
	}
	if err := decode(req, &body); err != nil {
		return nil, err
	}
	return s.worker.Request(req.Context(), vars(req, "id"), body.Num, body.SetStatus)
}

func (s *Server) materializationStatus(req *http.Request) (interface{}, error) {
	return s.worker.Status(req.Context(), vars(req, "id"))
}

// healthz reports the materialization worker's health. An unhealthy
// worker answers 500 with the same body.
func (s *Server) healthz(w http.ResponseWriter, req *http.Request) {
	hs, err := s.worker.Health(req.Context())
	if err != nil {
		s.log.Warn("materialization worker unhealthy", err)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"status": hs,
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": hs})
}
