package main

// Sink blank imports: each import activates a self-registering
// notifier adapter. Add new sinks here as they are implemented.

import (
	_ "github.com/portyard/fleetsim/internal/adapter/journal"
	_ "github.com/portyard/fleetsim/internal/adapter/nats"
)
