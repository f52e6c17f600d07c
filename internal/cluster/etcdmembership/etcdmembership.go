// Package etcdmembership supplies the concrete BrokerManager backing the
// Cluster Announcer: broker URLs registered as etcd keys under a prefix,
// watched for changes, mirroring the controller's own watchInstances
// reconnect-on-error loop.
package etcdmembership

import (
	"context"
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/jizhuozhi/hermes/broker/internal/cluster"
)

// reconnectDelay is how long the watch loop waits before re-establishing a
// watch after an error, matching the controller's watchInstances pacing.
const reconnectDelay = 3 * time.Second

// Manager is a BrokerManager backed by an etcd key prefix: each live
// broker registers its URL as the value of a key under Prefix (typically a
// lease-bound key so a crashed broker's entry expires automatically).
type Manager struct {
	client *clientv3.Client
	prefix string
	logger *zap.SugaredLogger
}

// New returns a Manager watching prefix on client. prefix is normalized to
// end in exactly one "/".
func New(client *clientv3.Client, prefix string, logger *zap.SugaredLogger) *Manager {
	return &Manager{
		client: client,
		prefix: strings.TrimRight(prefix, "/") + "/",
		logger: logger,
	}
}

func (m *Manager) IsStandalone() bool { return false }

// CurrentBrokers lists every key currently under the prefix as an active
// broker. Ordering matches etcd's lexicographic key order, which is the
// "stable ordering" spec.md §4.5 requires from the membership source.
func (m *Manager) CurrentBrokers(ctx context.Context) ([]cluster.Broker, error) {
	resp, err := m.client.Get(ctx, m.prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("list brokers: %w", err)
	}
	brokers := make([]cluster.Broker, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		brokers = append(brokers, cluster.Broker{URL: string(kv.Value), Active: true})
	}
	return brokers, nil
}

// Membership starts a background watch loop and returns a channel emitting
// the full current broker set on every change, until ctx is canceled. The
// loop re-establishes the watch after a transient error rather than giving
// up, the same way the controller's watchInstances does.
func (m *Manager) Membership(ctx context.Context) (<-chan []cluster.Broker, error) {
	out := make(chan []cluster.Broker, 1)

	initial, err := m.CurrentBrokers(ctx)
	if err != nil {
		return nil, err
	}

	go func() {
		defer close(out)

		select {
		case out <- initial:
		case <-ctx.Done():
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			watchCh := m.client.Watch(ctx, m.prefix, clientv3.WithPrefix())
			for resp := range watchCh {
				if resp.Err() != nil {
					m.logger.Warnf("broker membership watch error: %v", resp.Err())
					break
				}
				brokers, err := m.CurrentBrokers(ctx)
				if err != nil {
					m.logger.Warnf("broker membership refresh failed: %v", err)
					continue
				}
				select {
				case out <- brokers:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
				m.logger.Info("broker membership watch reconnecting...")
			}
		}
	}()

	return out, nil
}
