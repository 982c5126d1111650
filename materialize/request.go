package materialize

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ohsu-comp-bio/cascade/database"
	"github.com/ohsu-comp-bio/cascade/model"
	"github.com/ohsu-comp-bio/cascade/util"
)

// Request queues a materialization request. A dataset with a request
// still waiting gets that request back instead of a new one. An empty
// datasetID requests a sweep of every processing dataset.
func (m *Materializer) Request(ctx context.Context, datasetID string, num int, setStatus model.TaskStatus) (*model.MaterializationRequest, error) {
	if num < 0 {
		return nil, model.Invalid("num must not be negative")
	}
	switch setStatus {
	case "", model.TaskWaiting, model.TaskSuspended:
	default:
		return nil, model.Invalid("new tasks cannot start as %q", setStatus)
	}
	if datasetID != "" {
		if _, err := m.store.GetDataset(ctx, datasetID); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	req := &model.MaterializationRequest{
		MaterializationID: util.GenID(),
		Status:            model.RequestWaiting,
		DatasetID:         datasetID,
		Num:               num,
		SetStatus:         setStatus,
		CreateTimestamp:   now,
		ModifyTimestamp:   now,
		Pending:           pendingKey(datasetID),
	}
	fresh, err := database.Encode(req)
	if err != nil {
		return nil, err
	}
	delete(fresh, "pending")

	// A waiting request for the dataset is returned as is; otherwise the
	// new one is inserted. The unique pending index makes this atomic.
	f := database.Filter{database.Eq("pending", req.Pending)}
	u := database.Update{SetOnInsert: fresh}
	doc, err := m.store.Requests().Upsert(ctx, f, u)
	if errors.Is(err, database.ErrDuplicateKey) {
		doc, err = m.store.Requests().Upsert(ctx, f, u)
	}
	if err != nil {
		return nil, fmt.Errorf("requesting materialization: %w", err)
	}
	out := &model.MaterializationRequest{}
	if err := database.Decode(doc, out); err != nil {
		return nil, err
	}
	if out.MaterializationID == req.MaterializationID {
		m.log.Info("materialization requested", "requestID", out.MaterializationID, "datasetID", datasetID, "num", num)
	}
	return out, nil
}

// Status returns a materialization request.
func (m *Materializer) Status(ctx context.Context, id string) (*model.MaterializationRequest, error) {
	doc, err := m.store.Requests().FindOne(ctx, database.Filter{database.Eq("materialization_id", id)}, nil)
	if err != nil {
		return nil, err
	}
	req := &model.MaterializationRequest{}
	return req, database.Decode(doc, req)
}

// Cleanup returns requests stuck in processing for longer than the stale
// timeout to waiting, and deletes finished requests older than the same
// window.
func (m *Materializer) Cleanup(ctx context.Context) (reset, deleted int, err error) {
	now := time.Now().UTC()
	cutoff := now.Add(-m.conf.Materialization.StaleTimeout.D())

	// Reset requests are not pending, so a new request for the same
	// dataset is not merged into them.
	reset, err = m.store.Requests().UpdateMany(ctx,
		database.Filter{
			database.Eq("status", model.RequestProcessing),
			database.Lt("modify_timestamp", cutoff),
		},
		database.Update{Set: database.Doc{"status": model.RequestWaiting, "modify_timestamp": now}},
	)
	if err != nil {
		return 0, 0, fmt.Errorf("resetting stale requests: %w", err)
	}

	deleted, err = m.store.Requests().DeleteMany(ctx, database.Filter{
		database.In("status", []model.RequestStatus{model.RequestComplete, model.RequestError}),
		database.Lt("modify_timestamp", cutoff),
	})
	if err != nil {
		return reset, 0, fmt.Errorf("deleting old requests: %w", err)
	}
	if reset > 0 || deleted > 0 {
		m.log.Info("cleaned materialization requests", "reset", reset, "deleted", deleted)
	}
	return reset, deleted, nil
}

func pendingKey(datasetID string) string {
	if datasetID == "" {
		return "*"
	}
	return datasetID
}
