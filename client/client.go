// Package client is a REST client for the Cascade server, used by the CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/ohsu-comp-bio/cascade/config"
	"github.com/ohsu-comp-bio/cascade/model"
	"github.com/ohsu-comp-bio/cascade/util"
	"golang.org/x/time/rate"
)

// ErrNoToken is returned for calls that require credentials when no
// token is configured.
var ErrNoToken = errors.New("no server token configured; set CASCADE_SERVER_TOKEN or Client.AuthToken")

// Client represents the HTTP client.
type Client struct {
	address string
	token   string
	client  *http.Client
	limiter *rate.Limiter
	retrier *util.Retrier
}

// NewClient returns a new HTTP client for the server at conf.ServerAddress.
func NewClient(conf config.Client) (*Client, error) {
	re := regexp.MustCompile("^(.+://)?(.[^/]+)(.+)?$")
	endpoint := re.ReplaceAllString(conf.ServerAddress, "$1$2")

	reScheme := regexp.MustCompile("^.+://")
	if reScheme.MatchString(endpoint) {
		if !strings.HasPrefix(endpoint, "http") {
			return nil, fmt.Errorf("invalid protocol: '%s'; expected: 'http://' or 'https://'", reScheme.FindString(endpoint))
		}
	} else {
		endpoint = "http://" + endpoint
	}

	timeout := conf.Timeout.D()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	limit := rate.Inf
	if conf.RequestsPerSecond > 0 {
		limit = rate.Limit(conf.RequestsPerSecond)
	}

	r := util.NewRetrier(conf.MaxRetries + 1)
	r.InitialInterval = 100 * time.Millisecond
	r.MaxInterval = 10 * time.Second
	r.MaxElapsedTime = 2 * time.Minute
	r.Retryable = retryable

	return &Client{
		address: endpoint,
		token:   conf.AuthToken,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
		retrier: r,
	}, nil
}

// HasToken reports whether the client sends credentials.
func (c *Client) HasToken() bool {
	return c.token != ""
}

// HTTPError is a non-2xx response from the server.
type HTTPError struct {
	Code    int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("[STATUS CODE - %d]\t%s", e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var herr *HTTPError
	return errors.As(err, &herr) && herr.Code == http.StatusNotFound
}

// retryable reports whether a failed call may succeed if sent again.
func retryable(err error) bool {
	var herr *HTTPError
	if errors.As(err, &herr) {
		return herr.Code >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// do sends a JSON request, retrying transient failures, and decodes the
// JSON response into out when it is not nil.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("error marshaling request: %v", err)
		}
		payload = b
	}

	return c.retrier.Retry(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		hreq, err := http.NewRequestWithContext(ctx, method, c.address+path, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		if body != nil {
			hreq.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			hreq.Header.Set("Authorization", "Bearer "+c.token)
		}
		resp, err := c.client.Do(hreq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode/100 != 2 {
			var e struct {
				Error string `json:"error"`
			}
			msg := string(b)
			if json.Unmarshal(b, &e) == nil && e.Error != "" {
				msg = e.Error
			}
			return &HTTPError{Code: resp.StatusCode, Message: msg}
		}
		if out == nil {
			return nil
		}
		return json.Unmarshal(b, out)
	})
}

// GetDataset returns the result of GET /datasets/{id}
func (c *Client) GetDataset(ctx context.Context, id string) (*model.Dataset, error) {
	d := &model.Dataset{}
	return d, c.do(ctx, http.MethodGet, "/datasets/"+url.PathEscape(id), nil, d)
}

// ListDatasets returns the result of GET /datasets, optionally filtered by status.
func (c *Client) ListDatasets(ctx context.Context, status model.DatasetStatus) ([]*model.Dataset, error) {
	path := "/datasets"
	if status != "" {
		path += "?" + url.Values{"status": {string(status)}}.Encode()
	}
	var out []*model.Dataset
	return out, c.do(ctx, http.MethodGet, path, nil, &out)
}

// CreateDataset POSTs a dataset and its task templates to /datasets
func (c *Client) CreateDataset(ctx context.Context, d *model.Dataset, templates []model.TaskTemplate) (*model.Dataset, error) {
	body := struct {
		*model.Dataset
		Config []model.TaskTemplate `json:"config,omitempty"`
	}{d, templates}
	out := &model.Dataset{}
	return out, c.do(ctx, http.MethodPost, "/datasets", body, out)
}

// SetDatasetStatus PUTs to /datasets/{id}/status
func (c *Client) SetDatasetStatus(ctx context.Context, id string, status model.DatasetStatus) error {
	return c.do(ctx, http.MethodPut, "/datasets/"+url.PathEscape(id)+"/status",
		map[string]model.DatasetStatus{"status": status}, nil)
}

// TaskCounts returns task counts by status, for one dataset or overall.
func (c *Client) TaskCounts(ctx context.Context, datasetID string) (map[string]int, error) {
	path := "/task_counts/status"
	if datasetID != "" {
		path = "/datasets/" + url.PathEscape(datasetID) + path
	}
	out := map[string]int{}
	return out, c.do(ctx, http.MethodGet, path, nil, &out)
}

// QueueTasks POSTs to /task_actions/queue and returns how many tasks were queued.
func (c *Client) QueueTasks(ctx context.Context, n int, datasetID string) (int, error) {
	var out struct {
		Queued int `json:"queued"`
	}
	body := map[string]interface{}{"num_tasks": n}
	if datasetID != "" {
		body["dataset_id"] = datasetID
	}
	return out.Queued, c.do(ctx, http.MethodPost, "/task_actions/queue", body, &out)
}

// RequestMaterialization POSTs a materialization request, for one dataset
// or, with an empty datasetID, for every processing dataset.
func (c *Client) RequestMaterialization(ctx context.Context, datasetID string, num int, setStatus model.TaskStatus) (*model.MaterializationRequest, error) {
	if !c.HasToken() {
		return nil, ErrNoToken
	}
	path := "/materialization/request"
	if datasetID != "" {
		path += "/dataset/" + url.PathEscape(datasetID)
	}
	body := map[string]interface{}{"num": num}
	if setStatus != "" {
		body["set_status"] = setStatus
	}
	out := &model.MaterializationRequest{}
	return out, c.do(ctx, http.MethodPost, path, body, out)
}

// MaterializationStatus returns the result of GET /materialization/status/{id}
func (c *Client) MaterializationStatus(ctx context.Context, id string) (*model.MaterializationRequest, error) {
	out := &model.MaterializationRequest{}
	return out, c.do(ctx, http.MethodGet, "/materialization/status/"+url.PathEscape(id), nil, out)
}

// WaitForMaterialization polls a request until it is complete or failed.
func (c *Client) WaitForMaterialization(ctx context.Context, id string, every time.Duration) (*model.MaterializationRequest, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		r, err := c.MaterializationStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		switch r.Status {
		case model.RequestComplete:
			return r, nil
		case model.RequestError:
			return r, fmt.Errorf("materialization %s failed: %s", id, r.Error)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
