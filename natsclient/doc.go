// Package natsclient manages the NATS connection used by fr-service tasks.
//
// The Client wraps nats.go with a circuit breaker: after a threshold of
// consecutive failures (default 5) the circuit opens and calls fail fast with
// errors.ErrCircuitOpen until the backoff elapses. Backoff doubles per round
// up to a maximum (default one minute).
//
// # Usage
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//		natsclient.WithLogger(logger),
//		natsclient.WithMetrics(registry.CoreMetrics()),
//	)
//	if err != nil {
//		return err
//	}
//	if err := client.ConnectWithRetry(ctx, retry.Persistent()); err != nil {
//		return err
//	}
//	defer client.Close(context.Background())
//
// Subscriptions deliver raw message bytes to a handler together with a
// context derived from the subscription context:
//
//	sub, err := client.Subscribe(ctx, "points.>", func(ctx context.Context, data []byte) {
//		...
//	})
//
// # Key-Value
//
// CreateKeyValueBucket returns an existing bucket or creates it. KVStore adds
// per-operation timeouts and retries of transient failures on top of a
// bucket; the task retain store persists values through it.
//
// # Testing
//
// NewTestClient starts a NATS server in a container with testcontainers-go
// and returns a connected Client. It is used by the integration tests, which
// are behind the "integration" build tag.
package natsclient
