// Package pubsub implements the backend adapter for message topics using
// gocloud.dev/pubsub. Inserts publish a row as a JSON message; selects
// consume messages until one satisfies the predicate.
package pubsub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/yosida95/uritemplate/v3"
	"gocloud.dev/pubsub"
	_ "gocloud.dev/pubsub/gcppubsub" // registers gcppubsub://
	_ "gocloud.dev/pubsub/mempubsub" // registers mem://

	"github.com/txn2/sql-gateway/pkg/backend"
	"github.com/txn2/sql-gateway/pkg/backend/filter"
	"github.com/txn2/sql-gateway/pkg/operation"
)

const shutdownTimeout = 5 * time.Second

// MetadataTable is the message metadata key carrying the source table.
const MetadataTable = "table"

// channel is the topic and subscription serving one target.
type channel struct {
	topic *pubsub.Topic
	sub   *pubsub.Subscription
	url   string

	// recv serializes selects so concurrent readers do not steal each
	// other's matches.
	recv sync.Mutex
}

// Adapter implements backend.Adapter over gocloud.dev/pubsub.
type Adapter struct {
	name     string
	cfg      Config
	topicURL *uritemplate.Template
	subURL   *uritemplate.Template
	logger   *slog.Logger

	mu       sync.Mutex
	channels map[string]*channel
	closed   bool
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the adapter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// New creates a pub/sub adapter. Topics are opened on first use.
func New(name string, cfg Config, opts ...Option) (*Adapter, error) {
	topicURL, err := uritemplate.New(cfg.TopicURL)
	if err != nil {
		return nil, fmt.Errorf("invalid topic_url %q: %w", cfg.TopicURL, err)
	}
	subTmpl := cfg.SubscriptionURL
	if subTmpl == "" {
		subTmpl = cfg.TopicURL
	}
	subURL, err := uritemplate.New(subTmpl)
	if err != nil {
		return nil, fmt.Errorf("invalid subscription_url %q: %w", subTmpl, err)
	}
	if cfg.ReceiveTimeout <= 0 {
		cfg.ReceiveTimeout = defaultReceiveTimeout
	}
	if cfg.MaxScan <= 0 {
		cfg.MaxScan = defaultMaxScan
	}

	a := &Adapter{
		name:     name,
		cfg:      cfg,
		topicURL: topicURL,
		subURL:   subURL,
		logger:   slog.Default(),
		channels: make(map[string]*channel),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Name returns the backend name.
func (a *Adapter) Name() string {
	return a.name
}

// Family returns backend.PubSub.
func (a *Adapter) Family() backend.Family {
	return backend.PubSub
}

// Execute publishes or consumes a row.
func (a *Adapter) Execute(ctx context.Context, call *backend.Call) (*backend.Result, error) {
	if call.Category != operation.DML {
		return nil, backend.UnsupportedKind(backend.PubSub, call.Kind)
	}
	if err := backend.RejectJoins(backend.PubSub, call); err != nil {
		return nil, err
	}

	switch call.Kind {
	case operation.Insert:
		return a.publish(ctx, call)
	case operation.Select:
		if err := backend.RejectPaging(backend.PubSub, call); err != nil {
			return nil, err
		}
		return a.consume(ctx, call)
	default:
		return nil, backend.UnsupportedKind(backend.PubSub, call.Kind)
	}
}

func expand(tmpl *uritemplate.Template, target string) (string, error) {
	vars := uritemplate.Values{}
	vars.Set("target", uritemplate.String(target))
	url, err := tmpl.Expand(vars)
	if err != nil {
		return "", fmt.Errorf("expanding %q: %w", tmpl.Raw(), err)
	}
	return url, nil
}

// open returns the channel for target, opening the topic before its
// subscription so no message published through the adapter is missed.
func (a *Adapter) open(ctx context.Context, target string) (*channel, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, errors.New("adapter is closed")
	}
	if ch, ok := a.channels[target]; ok {
		return ch, nil
	}

	topicURL, err := expand(a.topicURL, target)
	if err != nil {
		return nil, err
	}
	subURL, err := expand(a.subURL, target)
	if err != nil {
		return nil, err
	}

	topic, err := pubsub.OpenTopic(ctx, topicURL)
	if err != nil {
		return nil, fmt.Errorf("opening topic %s: %w", topicURL, err)
	}
	// The subscription outlives this call, so it is not bound to ctx.
	sub, err := pubsub.OpenSubscription(context.WithoutCancel(ctx), subURL)
	if err != nil {
		_ = topic.Shutdown(ctx)
		return nil, fmt.Errorf("opening subscription %s: %w", subURL, err)
	}

	ch := &channel{topic: topic, sub: sub, url: topicURL}
	a.channels[target] = ch
	a.logger.Debug("topic opened", "backend", a.name, "topic", topicURL)
	return ch, nil
}

func (a *Adapter) publish(ctx context.Context, call *backend.Call) (*backend.Result, error) {
	values := call.Values()
	if len(values) == 0 {
		return nil, fmt.Errorf("insert into %s has no values", call.Target)
	}
	body, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}
	ch, err := a.open(ctx, call.Target)
	if err != nil {
		return nil, err
	}
	err = ch.topic.Send(ctx, &pubsub.Message{
		Body:     body,
		Metadata: map[string]string{MetadataTable: call.Target},
	})
	if err != nil {
		return nil, fmt.Errorf("publishing to %s: %w", ch.url, err)
	}
	return &backend.Result{Rows: []map[string]any{}, Affected: 1, Meta: map[string]any{"topic": ch.url}}, nil
}

// consume receives messages until one matches the predicate. Messages
// that do not match are acknowledged and dropped. An empty result means
// nothing matched before the receive window or scan limit ran out.
func (a *Adapter) consume(ctx context.Context, call *backend.Call) (*backend.Result, error) {
	ch, err := a.open(ctx, call.Target)
	if err != nil {
		return nil, err
	}
	ch.recv.Lock()
	defer ch.recv.Unlock()

	rctx, cancel := context.WithTimeout(ctx, a.cfg.ReceiveTimeout)
	defer cancel()

	res := &backend.Result{Rows: []map[string]any{}, Meta: map[string]any{"topic": ch.url}}
	if cols := call.Columns(); len(cols) > 0 && cols[0] != "*" {
		res.Columns = cols
	}
	where := call.Where()

	for scanned := 0; scanned < a.cfg.MaxScan; scanned++ {
		msg, err := ch.sub.Receive(rctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if rctx.Err() != nil {
				res.Meta["scanned"] = scanned
				return res, nil
			}
			return nil, fmt.Errorf("receiving from %s: %w", ch.url, err)
		}
		msg.Ack()

		record := decodeMessage(msg.Body)
		ok, err := filter.Match(where, record)
		if err != nil {
			return nil, err
		}
		if ok {
			res.Rows = append(res.Rows, filter.Project(record, call.Columns()))
			res.Affected = 1
			res.Meta["scanned"] = scanned + 1
			return res, nil
		}
	}
	res.Meta["scanned"] = a.cfg.MaxScan
	return res, nil
}

// decodeMessage reads a JSON object body. Anything else is returned under
// the "body" field.
func decodeMessage(body []byte) map[string]any {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	record := make(map[string]any)
	if err := dec.Decode(&record); err != nil {
		return map[string]any{"body": string(body)}
	}
	return record
}

// Close shuts down every open subscription and topic.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	for target, ch := range a.channels {
		if err := ch.sub.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("subscription %s: %w", target, err))
		}
		if err := ch.topic.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("topic %s: %w", target, err))
		}
	}
	a.channels = nil
	return errors.Join(errs...)
}

var _ backend.Adapter = (*Adapter)(nil)
