package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mivahub/mivahub-backend/pkg/config"
	"github.com/mivahub/mivahub-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoResources       = errors.New("at least one topic or subscription is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// Resources lists the topics and subscriptions a process depends on. Each
// one must exist at startup and is re-checked by Ping.
type Resources struct {
	Topics        []string
	Subscriptions []string
}

func (r Resources) empty() bool {
	return len(r.Topics) == 0 && len(r.Subscriptions) == 0
}

// Client wraps a Pub/Sub v2 client. Publishers are created once per topic
// and stopped on Close.
type Client struct {
	client    *pubsub.Client
	projectID string
	resources Resources

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

func NewClient(ctx context.Context, gcp config.GCPConfig, res Resources, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	if res.empty() {
		return nil, errNoResources
	}

	psClient, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{
		client:     psClient,
		projectID:  projectID,
		resources:  res,
		publishers: make(map[string]*pubsub.Publisher),
	}
	if err := c.Ping(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"topics":        res.Topics,
			"subscriptions": res.Subscriptions,
		}), "pubsub.ready")
	}
	return c, nil
}

// Ping checks that every configured resource still exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	for _, sub := range c.resources.Subscriptions {
		_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx,
			&pubsubpb.GetSubscriptionRequest{Subscription: SubscriptionResourceName(c.projectID, sub)})
		if err := classify("subscription", sub, err); err != nil {
			return err
		}
	}
	for _, topic := range c.resources.Topics {
		_, err := c.client.TopicAdminClient.GetTopic(ctx,
			&pubsubpb.GetTopicRequest{Topic: TopicResourceName(c.projectID, topic)})
		if err := classify("topic", topic, err); err != nil {
			return err
		}
	}
	return nil
}

func classify(kind, name string, err error) error {
	if err == nil {
		return nil
	}
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%s %q does not exist", kind, name)
	}
	return fmt.Errorf("checking %s %q: %w", kind, name, err)
}

// Subscriber returns a subscriber for a subscription ID or full name.
func (c *Client) Subscriber(name string) *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	full := SubscriptionResourceName(c.projectID, name)
	if full == "" {
		return nil
	}
	return c.client.Subscriber(full)
}

// Publisher returns the cached publisher for a topic ID or full name.
func (c *Client) Publisher(topic string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := TopicResourceName(c.projectID, topic)
	if full == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.publishers[full]; ok {
		return p
	}
	p := c.client.Publisher(full)
	c.publishers[full] = p
	return p
}

// Send publishes msg to topic and blocks until the server acknowledges it,
// returning the server-assigned message id.
func (c *Client) Send(ctx context.Context, topic string, msg *pubsub.Message) (string, error) {
	p := c.Publisher(topic)
	if p == nil {
		return "", fmt.Errorf("no publisher for topic %q", topic)
	}
	return p.Publish(ctx, msg).Get(ctx)
}

// Close flushes and stops every publisher, then closes the client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for name, p := range c.publishers {
		p.Stop()
		delete(c.publishers, name)
	}
	c.mu.Unlock()
	return c.client.Close()
}

// SubscriptionResourceName expands a subscription ID to
// projects/{project}/subscriptions/{id}. Full names pass through.
func SubscriptionResourceName(projectID, name string) string {
	return resourceName(projectID, name, "subscriptions")
}

// TopicResourceName expands a topic ID to projects/{project}/topics/{id}.
func TopicResourceName(projectID, name string) string {
	return resourceName(projectID, name, "topics")
}

func resourceName(projectID, name, collection string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+collection+"/") {
		return n
	}
	p := strings.TrimSpace(projectID)
	if p == "" {
		return ""
	}
	return "projects/" + p + "/" + collection + "/" + n
}
