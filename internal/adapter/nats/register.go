package nats

import (
	"context"
	"time"

	"github.com/portyard/fleetsim/internal/port/notifier"
)

func init() {
	notifier.Register(providerName, func(config map[string]string) (notifier.Notifier, error) {
		url := config["url"]
		if url == "" {
			return nil, notifier.ErrNotConfigured
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return Connect(ctx, url)
	})
}
