package refresh

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/markjoyeuxcom/tokenforge/internal"
)

const (
	redisKeyPrefix       = "rt"
	tokenRecordVersionV1 = 1
	rotateMaxRetries     = 4

	// Records outlive token expiry by this much so an expired token still
	// reports Expired instead of NotFound, and revoked records stay around
	// to catch replays.
	redisRetention = 24 * time.Hour

	recordFlagRevoked = 1 << 0
)

// RedisRepository stores token records keyed by value fingerprint. Raw values
// never reach redis: keys are truncated digests and each record carries a
// full value hash that is checked in constant time on every read.
type RedisRepository struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRepository(client redis.UniversalClient, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = redisKeyPrefix
	}
	return &RedisRepository{client: client, prefix: prefix}
}

// Ping verifies connectivity.
func (r *RedisRepository) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (r *RedisRepository) key(value string) string {
	return r.prefix + ":" + internal.Fingerprint(value)
}

type tokenRecord struct {
	ValueHash   [32]byte
	CreatedAt   int64
	ExpiresAt   int64
	RevokedAt   int64
	Revoked     bool
	ID          string
	UserID      string
	CreatedByIP string
	UserAgent   string
}

func recordFromToken(t *Token) *tokenRecord {
	rec := &tokenRecord{
		ValueHash:   sha256.Sum256([]byte(t.Value)),
		CreatedAt:   t.CreatedAt.Unix(),
		ExpiresAt:   t.ExpiresAt.Unix(),
		Revoked:     t.Revoked,
		ID:          t.ID,
		UserID:      t.UserID,
		CreatedByIP: t.CreatedByIP,
		UserAgent:   t.UserAgent,
	}
	if t.RevokedAt != nil {
		rec.RevokedAt = t.RevokedAt.Unix()
	}
	return rec
}

func (rec *tokenRecord) token(value string) *Token {
	t := &Token{
		ID:          rec.ID,
		Value:       value,
		UserID:      rec.UserID,
		CreatedAt:   time.Unix(rec.CreatedAt, 0).UTC(),
		ExpiresAt:   time.Unix(rec.ExpiresAt, 0).UTC(),
		Revoked:     rec.Revoked,
		CreatedByIP: rec.CreatedByIP,
		UserAgent:   rec.UserAgent,
	}
	if rec.RevokedAt != 0 {
		at := time.Unix(rec.RevokedAt, 0).UTC()
		t.RevokedAt = &at
	}
	return t
}

func (r *RedisRepository) ttlFor(rec *tokenRecord, now time.Time) time.Duration {
	ttl := time.Unix(rec.ExpiresAt, 0).Sub(now) + redisRetention
	if ttl < time.Minute {
		ttl = time.Minute
	}
	return ttl
}

func (r *RedisRepository) Add(ctx context.Context, token *Token) error {
	rec := recordFromToken(token)
	encoded, err := encodeTokenRecord(rec)
	if err != nil {
		return err
	}

	ok, err := r.client.SetNX(ctx, r.key(token.Value), encoded, r.ttlFor(rec, token.CreatedAt)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return ErrDuplicateValue
	}
	return nil
}

func (r *RedisRepository) FindByValue(ctx context.Context, value string) (*Token, error) {
	data, err := r.client.Get(ctx, r.key(value)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	rec, err := decodeTokenRecord(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	valueHash := sha256.Sum256([]byte(value))
	if subtle.ConstantTimeCompare(rec.ValueHash[:], valueHash[:]) != 1 {
		return nil, ErrTokenNotFound
	}

	return rec.token(value), nil
}

func (r *RedisRepository) Revoke(ctx context.Context, value string, at time.Time) error {
	key := r.key(value)
	valueHash := sha256.Sum256([]byte(value))

	for i := 0; i < rotateMaxRetries; i++ {
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			rec, err := decodeTokenRecord(data)
			if err != nil {
				return err
			}
			if subtle.ConstantTimeCompare(rec.ValueHash[:], valueHash[:]) != 1 {
				return ErrTokenNotFound
			}
			if rec.Revoked {
				return nil
			}

			rec.Revoked = true
			rec.RevokedAt = at.Unix()
			updated, err := encodeTokenRecord(rec)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, redis.KeepTTL)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return ErrTokenNotFound
			case errors.Is(err, ErrTokenNotFound):
				return err
			default:
				return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
		}
		return nil
	}

	return fmt.Errorf("%w: revoke contention", ErrStoreUnavailable)
}

func (r *RedisRepository) Rotate(ctx context.Context, oldValue string, at time.Time, next *Token) error {
	oldKey := r.key(oldValue)
	oldHash := sha256.Sum256([]byte(oldValue))

	nextRec := recordFromToken(next)
	nextEncoded, err := encodeTokenRecord(nextRec)
	if err != nil {
		return err
	}
	nextKey := r.key(next.Value)
	nextTTL := r.ttlFor(nextRec, at)

	for i := 0; i < rotateMaxRetries; i++ {
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, oldKey).Bytes()
			if err != nil {
				return err
			}
			rec, err := decodeTokenRecord(data)
			if err != nil {
				return err
			}
			if subtle.ConstantTimeCompare(rec.ValueHash[:], oldHash[:]) != 1 {
				return ErrTokenNotFound
			}
			if rec.Revoked {
				return ErrRotationConflict
			}

			rec.Revoked = true
			rec.RevokedAt = at.Unix()
			revokedEncoded, err := encodeTokenRecord(rec)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, oldKey, revokedEncoded, redis.KeepTTL)
				pipe.Set(ctx, nextKey, nextEncoded, nextTTL)
				return nil
			})
			return err
		}, oldKey)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return ErrTokenNotFound
			case errors.Is(err, ErrTokenNotFound), errors.Is(err, ErrRotationConflict):
				return err
			default:
				return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
		}
		return nil
	}

	// The watched key kept changing under us; whoever changed it spent the
	// token.
	return ErrRotationConflict
}

func encodeTokenRecord(rec *tokenRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(tokenRecordVersionV1)

	var flags byte
	if rec.Revoked {
		flags |= recordFlagRevoked
	}
	buf.WriteByte(flags)

	for _, v := range []int64{rec.CreatedAt, rec.ExpiresAt, rec.RevokedAt} {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			return nil, err
		}
	}
	buf.Write(rec.ValueHash[:])

	for _, s := range []string{rec.ID, rec.UserID, rec.CreatedByIP, rec.UserAgent} {
		if len(s) > 65535 {
			return nil, errors.New("refresh: record field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(s))); err != nil {
			return nil, err
		}
		buf.WriteString(s)
	}

	return buf.Bytes(), nil
}

func decodeTokenRecord(data []byte) (*tokenRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != tokenRecordVersionV1 {
		return nil, errors.New("refresh: invalid record version")
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	rec := &tokenRecord{Revoked: flags&recordFlagRevoked != 0}

	for _, v := range []*int64{&rec.CreatedAt, &rec.ExpiresAt, &rec.RevokedAt} {
		if err := binary.Read(reader, binary.BigEndian, v); err != nil {
			return nil, err
		}
	}
	if _, err := io.ReadFull(reader, rec.ValueHash[:]); err != nil {
		return nil, err
	}

	for _, s := range []*string{&rec.ID, &rec.UserID, &rec.CreatedByIP, &rec.UserAgent} {
		var length uint16
		if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
			return nil, err
		}
		field := make([]byte, length)
		if _, err := io.ReadFull(reader, field); err != nil {
			return nil, err
		}
		*s = string(field)
	}

	return rec, nil
}
