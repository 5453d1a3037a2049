// Package redisstore keeps planner sessions in Redis so conversations survive
// restarts and can be shared by several server replicas.
//
// Each session is stored as one JSON document. Mutations use WATCH/MULTI so
// concurrent appends to the same session never overwrite each other.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/messplanner/core"
	"github.com/hupe1980/messplanner/logging"
)

// Options configures the Redis session store.
type Options struct {
	// Prefix is prepended to every key. Default "messplanner:session".
	Prefix string
	// TTL expires idle sessions. Zero keeps them forever.
	TTL time.Duration
	// MaxRetries bounds optimistic transaction retries on contention.
	MaxRetries int
	Logger     logging.Logger
}

// Store implements core.SessionStore on top of a go-redis client.
type Store struct {
	client redis.UniversalClient
	opts   Options
}

// New wraps an existing client.
func New(client redis.UniversalClient, optFns ...func(o *Options)) *Store {
	opts := Options{
		Prefix:     "messplanner:session",
		MaxRetries: 5,
		Logger:     logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Store{client: client, opts: opts}
}

// NewFromURL parses a redis:// URL, connects and verifies the connection.
func NewFromURL(ctx context.Context, url string, optFns ...func(o *Options)) (*Store, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return New(client, optFns...), nil
}

// Close releases the underlying client.
func (s *Store) Close() error { return s.client.Close() }

func (s *Store) key(k core.SessionKey) string {
	return fmt.Sprintf("%s:%s:%s:%s", s.opts.Prefix, k.AppName, k.UserID, k.SessionID)
}

// Create makes a new empty session. It fails with core.ErrSessionExists when
// the key is already taken.
func (s *Store) Create(ctx context.Context, key core.SessionKey) (*core.Session, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	sess := core.NewSession(key)

	data, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.key(key), data, s.opts.TTL).Result()
	if err != nil {
		return nil, fmt.Errorf("create session %s: %w", key, err)
	}
	if !ok {
		return nil, core.ErrSessionExists
	}

	s.opts.Logger.Debug("session.redis.created", "session", key.String())

	return sess, nil
}

// Get returns the stored session or core.ErrSessionNotFound.
func (s *Store) Get(ctx context.Context, key core.SessionKey) (*core.Session, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", key, err)
	}

	return decode(data)
}

// AppendEvent adds an event to an existing session.
func (s *Store) AppendEvent(ctx context.Context, key core.SessionKey, ev core.Event) error {
	return s.update(ctx, key, func(sess *core.Session) { sess.AddEvent(ev) })
}

// ApplyDelta merges a key/value delta into the session state.
func (s *Store) ApplyDelta(ctx context.Context, key core.SessionKey, delta map[string]any) error {
	return s.update(ctx, key, func(sess *core.Session) { sess.ApplyStateDelta(delta) })
}

// update performs an optimistic read-modify-write of one session document.
func (s *Store) update(ctx context.Context, key core.SessionKey, mutate func(*core.Session)) error {
	rkey := s.key(key)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, rkey).Bytes()
		if errors.Is(err, redis.Nil) {
			return core.ErrSessionNotFound
		}
		if err != nil {
			return err
		}

		sess, err := decode(data)
		if err != nil {
			return err
		}

		mutate(sess)

		out, err := json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rkey, out, s.opts.TTL)
			return nil
		})

		return err
	}

	for attempt := 0; attempt <= s.opts.MaxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, rkey)
		if !errors.Is(err, redis.TxFailedErr) {
			if err != nil && !errors.Is(err, core.ErrSessionNotFound) {
				return fmt.Errorf("update session %s: %w", key, err)
			}
			return err
		}

		s.opts.Logger.Debug("session.redis.conflict", "session", key.String(), "attempt", attempt+1)
	}

	return fmt.Errorf("update session %s: too much contention", key)
}

func decode(data []byte) (*core.Session, error) {
	sess := &core.Session{}
	if err := json.Unmarshal(data, sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}

	if sess.State == nil {
		sess.State = map[string]any{}
	}

	return sess, nil
}
