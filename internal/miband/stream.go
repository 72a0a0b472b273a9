package miband

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/inoli/internal/device"
	"github.com/srg/inoli/internal/groutine"
)

const streamBuffer = 16

// decodeStream turns raw notifications into records. Frames that fail to decode
// are logged and dropped; the stream ends when raw does.
func decodeStream[T any](ctx context.Context, name string, raw <-chan []byte, decode func([]byte) (T, error), logger *logrus.Entry) <-chan T {
	out := make(chan T, streamBuffer)
	groutine.Go(ctx, "band-stream-"+name, func(ctx context.Context) {
		defer close(out)
		for data := range raw {
			v, err := decode(data)
			if err != nil {
				logger.WithFields(logrus.Fields{
					"stream": name,
					"data":   fmt.Sprintf("% x", data),
					"error":  err,
				}).Debug("Dropping malformed frame")
				continue
			}
			select {
			case out <- v:
			case <-ctx.Done():
				return
			}
		}
	})
	return out
}

func (b *Band) stream(ctx context.Context, u uuid.UUID) (<-chan []byte, error) {
	raw, err := b.subscribe(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", device.ShortUUID(u), err)
	}
	return raw, nil
}

// NotificationStream yields raw payloads of the general notification characteristic.
func (b *Band) NotificationStream(ctx context.Context) (<-chan []byte, error) {
	return b.stream(ctx, CharNotification)
}

// ActivityStream yields raw payloads of the activity data characteristic.
func (b *Band) ActivityStream(ctx context.Context) (<-chan []byte, error) {
	return b.stream(ctx, CharActivity)
}
