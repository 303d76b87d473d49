package journal

import (
	"log/slog"

	"github.com/portyard/fleetsim/internal/port/notifier"
)

func init() {
	notifier.Register(providerName, func(_ map[string]string) (notifier.Notifier, error) {
		return New(slog.Default()), nil
	})
}
