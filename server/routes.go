package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (s *Server) routes(r *mux.Router) {
	get, post, put, patch, del := http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete
	ok, created := http.StatusOK, http.StatusCreated

	// datasets
	r.HandleFunc("/datasets", s.api(ok, s.listDatasets)).Methods(get)
	r.HandleFunc("/datasets", s.api(created, s.createDataset)).Methods(post)
	r.HandleFunc("/datasets/{id}", s.api(ok, s.getDataset)).Methods(get)
	r.HandleFunc("/datasets/{id}/status", s.api(ok, s.setDatasetStatus)).Methods(put)
	r.HandleFunc("/datasets/{id}/priority", s.api(ok, s.setDatasetPriority)).Methods(put)
	r.HandleFunc("/datasets/{id}/jobs_submitted", s.api(ok, s.setJobsSubmitted)).Methods(put)
	r.HandleFunc("/config/{id}", s.api(ok, s.getConfig)).Methods(get)
	r.HandleFunc("/config/{id}", s.api(ok, s.putConfig)).Methods(put)

	// jobs
	r.HandleFunc("/jobs", s.api(created, s.createJob)).Methods(post)
	r.HandleFunc("/jobs/{id}", s.api(ok, s.getJob)).Methods(get)
	r.HandleFunc("/jobs/{id}", s.api(ok, s.patchJob)).Methods(patch)
	r.HandleFunc("/jobs/{id}/status", s.api(ok, s.setJobStatus)).Methods(put)
	r.HandleFunc("/datasets/{id}/jobs", s.api(ok, s.listJobs)).Methods(get)
	r.HandleFunc("/datasets/{id}/job_actions/bulk_status/{status}", s.api(ok, s.bulkJobStatus)).Methods(post)

	// tasks
	r.HandleFunc("/tasks", s.api(created, s.createTask)).Methods(post)
	r.HandleFunc("/tasks/{id}", s.api(ok, s.getTask)).Methods(get)
	r.HandleFunc("/tasks/{id}", s.api(ok, s.patchTask)).Methods(patch)
	r.HandleFunc("/tasks/{id}/status", s.api(ok, s.setTaskStatus)).Methods(put)
	r.HandleFunc("/datasets/{id}/tasks", s.api(ok, s.listTasks)).Methods(get)
	r.HandleFunc("/task_actions/queue", s.api(ok, s.queueTasks)).Methods(post)
	r.HandleFunc("/task_actions/process", s.api(ok, s.processTask)).Methods(post)
	r.HandleFunc("/tasks/{id}/task_actions/reset", s.api(ok, s.resetTask)).Methods(post)
	r.HandleFunc("/tasks/{id}/task_actions/complete", s.api(ok, s.completeTask)).Methods(post)
	r.HandleFunc("/task_actions/bulk_status/{status}", s.api(ok, s.bulkTaskStatus)).Methods(post)
	r.HandleFunc("/datasets/{id}/task_actions/bulk_status/{status}", s.api(ok, s.bulkTaskStatus)).Methods(post)
	r.HandleFunc("/datasets/{id}/task_actions/bulk_requirements/{name}", s.api(ok, s.bulkRequirements)).Methods(patch)
	r.HandleFunc("/task_counts/status", s.api(ok, s.taskCounts)).Methods(get)
	r.HandleFunc("/datasets/{id}/task_counts/status", s.api(ok, s.taskCounts)).Methods(get)

	// pilots
	r.HandleFunc("/pilots", s.api(ok, s.listPilots)).Methods(get)
	r.HandleFunc("/pilots", s.api(created, s.createPilot)).Methods(post)
	r.HandleFunc("/pilots/{id}", s.api(ok, s.getPilot)).Methods(get)
	r.HandleFunc("/pilots/{id}", s.api(ok, s.patchPilot)).Methods(patch)
	r.HandleFunc("/pilots/{id}", s.api(ok, s.deletePilot)).Methods(del)

	// materialization
	r.HandleFunc("/materialization/request", s.api(created, s.requestMaterialization)).Methods(post)
	r.HandleFunc("/materialization/request/dataset/{id}", s.api(created, s.requestMaterialization)).Methods(post)
	r.HandleFunc("/materialization/status/{id}", s.api(ok, s.materializationStatus)).Methods(get)
	r.HandleFunc("/materialization/healthz", s.healthz).Methods(get)

	// logs
	r.HandleFunc("/logs", s.api(created, s.createLog)).Methods(post)
	r.HandleFunc("/logs/{id}", s.api(ok, s.getLog)).Methods(get)
	r.HandleFunc("/datasets/{id}/tasks/{task_id}/logs", s.api(ok, s.taskLogs)).Methods(get)

	// priority weights
	r.HandleFunc("/users/{name}/priority", s.api(ok, s.setUserPriority)).Methods(put)
	r.HandleFunc("/groups/{name}/priority", s.api(ok, s.setGroupPriority)).Methods(put)
}
