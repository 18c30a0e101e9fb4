package payout_batch_service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/joy095/payouts/logger"
	"github.com/redis/go-redis/v9"
)

// NumberGenerator hands out human-readable batch and payout numbers.
type NumberGenerator interface {
	NextBatchNumber(ctx context.Context, tenantID uuid.UUID, at time.Time) (string, error)
	NextPayoutNumber() string
}

const (
	batchSequencePrefix = "payout_batch_seq:"
	batchSequenceTTL    = 48 * time.Hour
)

// Numbering issues PB-YYYYMMDD-NNNN batch numbers from a per-tenant daily
// Redis counter and VP-<snowflake> payout numbers. Without Redis the batch
// suffix falls back to a base36 snowflake id.
type Numbering struct {
	rdb  *redis.Client
	node *snowflake.Node
}

func NewNumbering(rdb *redis.Client, nodeID int64) (*Numbering, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node %d: %w", nodeID, err)
	}
	return &Numbering{rdb: rdb, node: node}, nil
}

func (n *Numbering) NextBatchNumber(ctx context.Context, tenantID uuid.UUID, at time.Time) (string, error) {
	day := at.UTC().Format("20060102")
	if n.rdb == nil {
		return n.fallbackBatchNumber(day), nil
	}

	key := fmt.Sprintf("%s%s:%s", batchSequencePrefix, tenantID, day)
	seq, err := n.rdb.Incr(ctx, key).Result()
	if err != nil {
		logger.WarnLogger.Warnf("Batch sequence unavailable for tenant %s, using snowflake suffix: %v", tenantID, err)
		return n.fallbackBatchNumber(day), nil
	}
	if seq == 1 {
		if err := n.rdb.Expire(ctx, key, batchSequenceTTL).Err(); err != nil {
			logger.WarnLogger.Warnf("Failed to set expiry on %s: %v", key, err)
		}
	}
	return fmt.Sprintf("PB-%s-%04d", day, seq), nil
}

func (n *Numbering) fallbackBatchNumber(day string) string {
	return fmt.Sprintf("PB-%s-%s", day, n.node.Generate().Base36())
}

func (n *Numbering) NextPayoutNumber() string {
	return "VP-" + n.node.Generate().String()
}
