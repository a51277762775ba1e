package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSSink publishes entries to a subject for an external collector.
// This process is write-only against it: Query reports unsupported and
// retention belongs to whatever consumes the subject.
type NATSSink struct {
	conn    *nats.Conn
	subject string
}

func NewNATSSink(url, subject string) (*NATSSink, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &NATSSink{conn: conn, subject: subject}, nil
}

func (s *NATSSink) Store(ctx context.Context, e Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.conn.Publish(s.subject, b)
}

func (s *NATSSink) Query(ctx context.Context, f Filter) ([]Entry, error) {
	return nil, ErrQueryUnsupported
}

func (s *NATSSink) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	return 0, nil
}

func (s *NATSSink) Close() {
	s.conn.Close()
}
