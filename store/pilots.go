package store

import (
	"context"
	"time"

	"github.com/ohsu-comp-bio/cascade/database"
	"github.com/ohsu-comp-bio/cascade/model"
	"github.com/ohsu-comp-bio/cascade/util"
)

// GetPilot returns a pilot by ID.
func (s *Store) GetPilot(ctx context.Context, id string) (*model.Pilot, error) {
	p := &model.Pilot{}
	if err := findOne(ctx, s.Pilots(), "pilot_id", id, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ListPilots returns pilots matching the filter.
func (s *Store) ListPilots(ctx context.Context, f database.Filter, opts *database.FindOptions) ([]*model.Pilot, error) {
	docs, err := s.Pilots().Find(ctx, f, opts)
	if err != nil {
		return nil, err
	}
	return decodeAll[model.Pilot](docs)
}

// CreatePilot registers a pilot.
func (s *Store) CreatePilot(ctx context.Context, p *model.Pilot) error {
	if p.QueueHost == "" {
		return model.Invalid("pilot requires queue_host")
	}
	if p.PilotID == "" {
		p.PilotID = util.GenPilotID()
	}
	if p.Tasks == nil {
		p.Tasks = []string{}
	}
	now := time.Now().UTC()
	p.SubmitDate = now
	p.LastUpdate = now
	return insert(ctx, s.Pilots(), p)
}

var pilotPatchable = map[string]bool{
	"grid_queue_id":       true,
	"resources":           true,
	"resources_available": true,
	"resources_claimed":   true,
	"tasks":               true,
	"site":                true,
	"queue_version":       true,
}

// UpdatePilot applies a heartbeat patch and refreshes last_update.
func (s *Store) UpdatePilot(ctx context.Context, id string, patch map[string]interface{}) (*model.Pilot, error) {
	set := database.Doc{"last_update": time.Now().UTC()}
	for k, v := range patch {
		if !pilotPatchable[k] {
			return nil, model.Invalid("pilot field %q cannot be updated", k)
		}
		set[k] = v
	}
	doc, err := s.Pilots().Transition(ctx,
		database.Filter{database.Eq("pilot_id", id)},
		database.Update{Set: set},
		nil,
	)
	if err != nil {
		return nil, err
	}
	p := &model.Pilot{}
	return p, database.Decode(doc, p)
}

// DeletePilot removes a pilot.
func (s *Store) DeletePilot(ctx context.Context, id string) error {
	n, err := s.Pilots().DeleteMany(ctx, database.Filter{database.Eq("pilot_id", id)})
	if err != nil {
		return err
	}
	if n == 0 {
		return database.ErrNotFound
	}
	return nil
}

// ClaimedTasks returns the set of task IDs held by any pilot.
func (s *Store) ClaimedTasks(ctx context.Context) (map[string]bool, error) {
	docs, err := s.Pilots().Find(ctx, nil, database.Project("tasks"))
	if err != nil {
		return nil, err
	}
	out := map[string]bool{}
	for _, d := range docs {
		for _, id := range d.Strings("tasks") {
			out[id] = true
		}
	}
	return out, nil
}
