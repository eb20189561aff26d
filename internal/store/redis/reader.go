package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/go-redis/redis/v8"

	"signal-engine/internal/model"
)

// Reader reads published signals back, for dashboards and late subscribers.
type Reader struct {
	client goredis.UniversalClient
}

// NewReader wraps client.
func NewReader(client goredis.UniversalClient) *Reader {
	return &Reader{client: client}
}

// Latest returns the most recent signal of a triple. ok is false when none
// was published or the key expired.
func (r *Reader) Latest(ctx context.Context, symbol string, iv model.Interval, strategy string) (model.Signal, bool, error) {
	data, err := r.client.Get(ctx, LatestKey(symbol, iv, strategy)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return model.Signal{}, false, nil
	}
	if err != nil {
		return model.Signal{}, false, fmt.Errorf("redis GET latest: %w", err)
	}
	var sig model.Signal
	if err := json.Unmarshal(data, &sig); err != nil {
		return model.Signal{}, false, fmt.Errorf("decode latest signal: %w", err)
	}
	return sig, true, nil
}

// Recent returns up to n signals from the triple's stream, oldest first.
func (r *Reader) Recent(ctx context.Context, symbol string, iv model.Interval, strategy string, n int64) ([]model.Signal, error) {
	msgs, err := r.client.XRevRangeN(ctx, StreamKey(symbol, iv, strategy), "+", "-", n).Result()
	if err != nil {
		return nil, fmt.Errorf("redis XREVRANGE: %w", err)
	}

	out := make([]model.Signal, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		raw, ok := msgs[i].Values["data"].(string)
		if !ok {
			return nil, fmt.Errorf("stream entry %s has no data field", msgs[i].ID)
		}
		var sig model.Signal
		if err := json.Unmarshal([]byte(raw), &sig); err != nil {
			return nil, fmt.Errorf("decode stream entry %s: %w", msgs[i].ID, err)
		}
		out = append(out, sig)
	}
	return out, nil
}
