package resources

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/projectify/live/config"
	"github.com/projectify/live/logging"
	"github.com/projectify/live/pkg/api"
	"github.com/projectify/live/pkg/cache"
	"github.com/projectify/live/pkg/live"
	"github.com/projectify/live/pkg/protocol"
	"github.com/projectify/live/pkg/retry"
)

// Caches bundles one cache per subscribable resource type, all sharing one
// connection manager and one API client.
type Caches struct {
	Manager   *live.Manager
	API       *api.Client
	Workspace *cache.Cache[Workspace]
	Project   *cache.Cache[Project]
	Task      *cache.Cache[Task]

	ownsManager bool
}

// NewCaches builds the API client, the connection manager and the caches
// from live.yml. The websocket shares the API client's cookie jar.
func NewCaches(cfg *config.Config) (*Caches, error) {
	client, err := api.New(api.Options{
		BaseURL: cfg.APIURL,
		Timeout: cfg.Connection.RequestTimeout.Std(),
		Logger:  logging.NewLogger("api"),
	})
	if err != nil {
		return nil, err
	}
	opts, err := live.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	opts.Transport.Jar = client.Jar()
	opts.Logger = logging.NewLogger("live")

	c := NewCachesWith(live.New(opts), client, retry.FromConfig(cfg.Retry), logging.NewLogger("cache"))
	c.ownsManager = true
	return c, nil
}

// NewCachesWith builds the caches on an existing manager and client.
func NewCachesWith(m *live.Manager, client *api.Client, policy retry.Policy, logger *logrus.Entry) *Caches {
	return &Caches{
		Manager:   m,
		API:       client,
		Workspace: newCache[Workspace](m, client, protocol.ResourceWorkspace, policy, logger),
		Project:   newCache[Project](m, client, protocol.ResourceProject, policy, logger),
		Task:      newCache[Task](m, client, protocol.ResourceTask, policy, logger),
	}
}

func newCache[T any](m *live.Manager, client *api.Client, t protocol.ResourceType, policy retry.Policy, logger *logrus.Entry) *cache.Cache[T] {
	return cache.New(cache.Options[T]{
		Type:       t,
		Subscriber: m,
		Getter:     api.Getter[T](client, t),
		Retry:      policy,
		Logger:     logger,
	})
}

// Reset clears every cache, e.g. on logout.
func (c *Caches) Reset(ctx context.Context) error {
	var result *multierror.Error
	if err := c.Workspace.Reset(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	if err := c.Project.Reset(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	if err := c.Task.Reset(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// Close stops the caches and, when NewCaches created it, the manager.
func (c *Caches) Close() error {
	c.Workspace.Close()
	c.Project.Close()
	c.Task.Close()
	if c.ownsManager {
		return c.Manager.Close()
	}
	return nil
}
