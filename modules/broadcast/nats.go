package broadcast

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/nats-io/nats.go"
)

// NATSRegistry shares groups across instances through core NATS subjects.
// Membership stays local; every instance delivers what arrives on
// <prefix>.<group> to its own members.
type NATSRegistry struct {
	*Hub
	url    string
	prefix string
	nc     *nats.Conn
	sub    *nats.Subscription
	logger types.Logger
}

var _ Registry = (*NATSRegistry)(nil)

// NewNATSRegistry creates a registry that connects to url on Connect.
func NewNATSRegistry(url, prefix string, logger types.Logger) *NATSRegistry {
	return &NATSRegistry{
		Hub:    NewHub(logger),
		url:    url,
		prefix: prefix,
		logger: logger,
	}
}

// Connect dials NATS and subscribes to every group subject.
func (r *NATSRegistry) Connect(_ context.Context) error {
	nc, err := nats.Connect(r.url,
		nats.Name("campus-helpdesk-chat"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				r.logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			r.logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", r.url, err)
	}

	sub, err := nc.Subscribe(r.prefix+".*", func(msg *nats.Msg) {
		r.deliver(strings.TrimPrefix(msg.Subject, r.prefix+"."), msg.Data)
	})
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to subscribe to %s.*: %w", r.prefix, err)
	}
	if err := nc.Flush(); err != nil {
		nc.Close()
		return fmt.Errorf("failed to flush NATS subscription: %w", err)
	}

	r.nc = nc
	r.sub = sub
	r.logger.Info("NATS registry connected", "url", r.url, "subject", r.prefix+".*")
	return nil
}

// Publish sends payload to every instance subscribed to groupID.
func (r *NATSRegistry) Publish(_ context.Context, groupID string, payload any) error {
	if r.nc == nil {
		return fmt.Errorf("NATS registry is not connected")
	}
	data, err := encode(payload)
	if err != nil {
		return err
	}
	if err := r.nc.Publish(r.subject(groupID), data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", r.subject(groupID), err)
	}
	return nil
}

// Connected reports whether the NATS connection is up.
func (r *NATSRegistry) Connected() bool {
	return r.nc != nil && r.nc.IsConnected()
}

// Close drains the subscription and closes the connection.
func (r *NATSRegistry) Close() error {
	if r.nc == nil {
		return nil
	}
	if err := r.nc.Drain(); err != nil {
		r.nc.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	return nil
}

func (r *NATSRegistry) subject(groupID string) string {
	return r.prefix + "." + groupID
}
