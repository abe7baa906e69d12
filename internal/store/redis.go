package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"qrattend/internal/attendance"
)

// Redis wraps redis client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to redis with short timeouts.
func NewRedis(addr, password string, db int) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

// Close closes the client.
func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}

const (
	dayKeyPrefix     = "attendance:day:"
	rosterEmailKey   = "students:email:"
	rosterRollToMail = "students:roll"
)

type redisDay struct {
	Version int64           `json:"version"`
	Doc     json.RawMessage `json:"doc"`
}

// RedisDays keeps each day record under attendance:day:<date>, guarded by WATCH.
type RedisDays struct {
	client *redis.Client
}

// NewRedisDays creates a day store on a client.
func NewRedisDays(client *redis.Client) *RedisDays {
	return &RedisDays{client: client}
}

// Get loads the record for date.
func (s *RedisDays) Get(ctx context.Context, date string) (*attendance.DayRecord, error) {
	raw, err := s.client.Get(ctx, dayKeyPrefix+date).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, attendance.ErrDayNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeRedisDay(raw)
}

// Put writes rec if the stored version still equals rec.Version.
func (s *RedisDays) Put(ctx context.Context, rec attendance.DayRecord) error {
	doc, err := encodeDay(rec)
	if err != nil {
		return err
	}
	data, err := json.Marshal(redisDay{Version: rec.Version + 1, Doc: doc})
	if err != nil {
		return err
	}

	key := dayKeyPrefix + rec.Date
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		var stored int64
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			cur, err := decodeRedisDay(raw)
			if err != nil {
				return err
			}
			stored = cur.Version
		}
		if stored != rec.Version {
			return attendance.ErrVersionConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return attendance.ErrVersionConflict
	}
	return err
}

func decodeRedisDay(raw []byte) (*attendance.DayRecord, error) {
	var env redisDay
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	rec, err := decodeDay(env.Doc)
	if err != nil {
		return nil, err
	}
	rec.Version = env.Version
	return rec, nil
}

// RedisRoster indexes students by email in one hash per address.
type RedisRoster struct {
	client *redis.Client
}

// NewRedisRoster creates a roster on a client.
func NewRedisRoster(client *redis.Client) *RedisRoster {
	return &RedisRoster{client: client}
}

// FindByEmail returns every student registered under email.
func (r *RedisRoster) FindByEmail(ctx context.Context, email string) ([]attendance.Identity, error) {
	vals, err := r.client.HGetAll(ctx, rosterEmailKey+email).Result()
	if err != nil {
		return nil, err
	}
	out := make([]attendance.Identity, 0, len(vals))
	for _, v := range vals {
		var id attendance.Identity
		if err := json.Unmarshal([]byte(v), &id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Roll < out[j].Roll })
	return out, nil
}

// Upsert creates or updates a student by roll.
func (r *RedisRoster) Upsert(ctx context.Context, id attendance.Identity) error {
	if id.Roll == "" || id.Email == "" {
		return errors.New("roll and email required")
	}
	data, err := json.Marshal(id)
	if err != nil {
		return err
	}
	prev, err := r.client.HGet(ctx, rosterRollToMail, id.Roll).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if prev != "" && prev != id.Email {
			pipe.HDel(ctx, rosterEmailKey+prev, id.Roll)
		}
		pipe.HSet(ctx, rosterEmailKey+id.Email, id.Roll, data)
		pipe.HSet(ctx, rosterRollToMail, id.Roll, id.Email)
		return nil
	})
	return err
}
