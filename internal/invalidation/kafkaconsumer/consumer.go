// Package kafkaconsumer consumes invalidation events and drops the
// affected cache entries from both tiers.
package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/gridwatch/energy-data-cache/internal/cache/keys"
	"github.com/gridwatch/energy-data-cache/internal/core/model"
	obs "github.com/gridwatch/energy-data-cache/internal/core/observability"
	"github.com/gridwatch/energy-data-cache/internal/invalidation"
)

// SharedScanner deletes shared-tier keys by pattern. Implemented by
// redisstore.
type SharedScanner interface {
	ScanDel(ctx context.Context, pattern string) (int, error)
}

// LocalInvalidator drops local-tier entries matched by a predicate.
// Implemented by the tiered cache.
type LocalInvalidator interface {
	InvalidateLocal(match func(key string) bool) int
}

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	local  LocalInvalidator
	shared SharedScanner
}

func New(cfg Config, logger *slog.Logger, local LocalInvalidator, shared SharedScanner) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{cfg: cfg, logger: logger, local: local, shared: shared}
}

// Start joins the consumer group and processes events until ctx is
// canceled. Consume errors are logged and retried; they never bring
// the serving path down.
func (c *Consumer) Start(ctx context.Context) error {
	if c.local == nil || c.shared == nil {
		return errors.New("kafkaconsumer: missing dependencies (local/shared)")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: c.ProcessOne}

	c.logger.Info("kafka invalidation consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("kafka invalidation consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				c.logger.Error("consumer error", "topic", c.cfg.Topic, "err", err)
				time.Sleep(2 * time.Second)
			}
		}
	}
}

// ProcessOne handles a single invalidation message. Malformed or
// invalid events are counted and skipped rather than retried; they
// would fail the same way forever.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		obs.IncInvalidation("decode_error")
		c.logger.Error("invalidation decode failed",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	if err := ev.Validate(); err != nil {
		obs.IncInvalidation("invalid")
		c.logger.Error("invalidation event rejected",
			"topic", msg.Topic, "offset", msg.Offset, "err", err)
		return nil
	}

	primary, fallback := patternsFor(ev)

	localDropped := 0
	for _, p := range primary {
		prefix := strings.TrimSuffix(p, "*")
		localDropped += c.local.InvalidateLocal(func(key string) bool {
			return strings.HasPrefix(key, prefix)
		})
	}

	sharedDropped := 0
	patterns := primary
	if ev.Op == invalidation.OpPurge {
		patterns = append(patterns, fallback...)
	}
	for _, p := range patterns {
		n, err := c.shared.ScanDel(ctx, p)
		if err != nil {
			obs.IncInvalidation("shared_error")
			return fmt.Errorf("shared scan-del %q: %w", p, err)
		}
		sharedDropped += n
	}

	obs.IncInvalidation("ok")
	c.logger.Info("cache invalidated",
		"op", ev.Op, "resource", ev.Resource, "region", ev.Region,
		"local_dropped", localDropped, "shared_dropped", sharedDropped)
	return nil
}

// patternsFor expands an event into the shared-tier key patterns it
// covers. A named sub-region also takes the combined region with it:
// corrected dk1 data makes every cached dk answer stale too.
func patternsFor(ev invalidation.Event) (primary, fallback []string) {
	res := model.Resource(ev.Resource)
	switch reg := model.Region(ev.Region); reg {
	case model.RegionWest, model.RegionEast:
		primary = []string{keys.Pattern(res, reg), keys.Pattern(res, model.RegionAll)}
		fallback = []string{keys.FallbackPattern(res, reg), keys.FallbackPattern(res, model.RegionAll)}
	case model.RegionAll:
		primary = []string{keys.Pattern(res, reg)}
		fallback = []string{keys.FallbackPattern(res, reg)}
	default:
		primary = []string{keys.Pattern(res, "")}
		fallback = []string{keys.FallbackPattern(res, "")}
	}
	return primary, fallback
}
