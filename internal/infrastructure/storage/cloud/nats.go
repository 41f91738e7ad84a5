package cloud

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/exp/slog"
)

// kvBucket - часть jetstream.KeyValue, которой пользуется мост
type kvBucket interface {
	Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error)
	Put(ctx context.Context, key string, value []byte) (uint64, error)
	Delete(ctx context.Context, key string, opts ...jetstream.KVDeleteOpt) error
}

// NATSConfig - параметры облака на JetStream KV
type NATSConfig struct {
	URL           string
	Bucket        string
	MaxValueBytes int
	CallTimeout   time.Duration
}

// NATSBridge хранит данные пользователя в JetStream KV, ключи вида u<id>.<key>
type NATSBridge struct {
	nc       *nats.Conn
	kv       kvBucket
	user     Identity
	maxValue int
	timeout  time.Duration
	log      *slog.Logger
}

// NewNATSBridge подключается к NATS и создает (или обновляет) bucket
func NewNATSBridge(ctx context.Context, cfg NATSConfig, user Identity, log *slog.Logger) (*NATSBridge, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("bodytweaker"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: подключение к NATS: %v", ErrUnavailable, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("%w: jetstream: %v", ErrUnavailable, err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:       cfg.Bucket,
		Description:  "bodytweaker per-user storage",
		MaxValueSize: int32(cfg.MaxValueBytes),
		History:      1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("%w: bucket %q: %v", ErrUnavailable, cfg.Bucket, err)
	}

	b := newNATSBridge(kv, user, cfg.MaxValueBytes, cfg.CallTimeout, log)
	b.nc = nc
	return b, nil
}

func newNATSBridge(kv kvBucket, user Identity, maxValue int, timeout time.Duration, log *slog.Logger) *NATSBridge {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NATSBridge{
		kv:       kv,
		user:     user,
		maxValue: maxValue,
		timeout:  timeout,
		log:      log.With(slog.String("component", "nats_bridge")),
	}
}

func (b *NATSBridge) Ready() bool {
	if b.kv == nil {
		return false
	}
	return b.nc == nil || b.nc.IsConnected()
}

func (b *NATSBridge) User() Identity {
	return b.user
}

func (b *NATSBridge) GetItem(key string, cb func(err error, value string)) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()

		entry, err := b.kv.Get(ctx, b.scoped(key))
		switch {
		case errors.Is(err, jetstream.ErrKeyNotFound), errors.Is(err, jetstream.ErrKeyDeleted):
			cb(nil, "")
		case err != nil:
			cb(mapNATSError(err), "")
		default:
			cb(nil, string(entry.Value()))
		}
	}()
}

func (b *NATSBridge) SetItem(key, value string, cb func(err error, stored bool)) {
	if b.maxValue > 0 && len(value) > b.maxValue {
		go cb(fmt.Errorf("%w: %d > %d байт", ErrValueTooLarge, len(value), b.maxValue), false)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()

		if _, err := b.kv.Put(ctx, b.scoped(key), []byte(value)); err != nil {
			cb(mapNATSError(err), false)
			return
		}
		cb(nil, true)
	}()
}

func (b *NATSBridge) RemoveItem(key string, cb func(err error, removed bool)) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()

		err := b.kv.Delete(ctx, b.scoped(key))
		if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
			cb(mapNATSError(err), false)
			return
		}
		cb(nil, true)
	}()
}

// Close дожидается отправки буферов и закрывает соединение
func (b *NATSBridge) Close() error {
	if b.nc == nil {
		return nil
	}
	if err := b.nc.Drain(); err != nil {
		b.log.Warn("ошибка закрытия соединения", slog.String("error", err.Error()))
		return err
	}
	return nil
}

func (b *NATSBridge) scoped(key string) string {
	return "u" + strconv.FormatInt(b.user.ID, 10) + "." + key
}

func mapNATSError(err error) error {
	switch {
	case errors.Is(err, nats.ErrMaxPayload):
		return fmt.Errorf("%w: %v", ErrValueTooLarge, err)
	case errors.Is(err, nats.ErrConnectionClosed), errors.Is(err, nats.ErrNoResponders),
		errors.Is(err, nats.ErrDisconnected):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, nats.ErrTimeout):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	default:
		return err
	}
}
