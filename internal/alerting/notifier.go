package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/models"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/security"
)

// NATSNotifier publishes alerts and operator escalations to NATS.
// It satisfies both AlertNotifier and security.Alerter.
type NATSNotifier struct {
	conn    *nats.Conn
	subject string
	logger  *security.Logger
}

// NewNATSNotifier creates a notifier publishing alerts on subject and
// escalations on subject + ".escalations".
func NewNATSNotifier(conn *nats.Conn, subject string, logger *security.Logger) *NATSNotifier {
	return &NATSNotifier{conn: conn, subject: subject, logger: logger}
}

// ConnectNATS dials url with unlimited reconnects, logging connection changes.
func ConnectNATS(url string, logger *security.Logger) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("athier"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Error("NATS disconnected", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info(fmt.Sprintf("NATS reconnected to %s", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

func (n *NATSNotifier) available() error {
	if n.conn == nil || !n.conn.IsConnected() {
		return fmt.Errorf("NATS connection not available")
	}
	return nil
}

// NotifyAlert publishes alert as JSON with id, severity and policy headers.
func (n *NATSNotifier) NotifyAlert(ctx context.Context, alert *models.Alert) error {
	if err := n.available(); err != nil {
		return err
	}

	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	headers := nats.Header{}
	headers.Set("x-alert-id", alert.ID)
	headers.Set("x-severity", string(alert.Severity))
	headers.Set("x-blocked", strconv.FormatBool(alert.Blocked))
	if alert.PolicyID != nil {
		headers.Set("x-policy-id", *alert.PolicyID)
	}

	msg := &nats.Msg{Subject: n.subject, Data: data, Header: headers}
	if err := n.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	return nil
}

// escalation is the payload of an operator escalation.
type escalation struct {
	Severity  string    `json:"severity"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// SendAlert publishes an operator escalation.
func (n *NATSNotifier) SendAlert(ctx context.Context, severity, title, message string) error {
	if err := n.available(); err != nil {
		return err
	}

	data, err := json.Marshal(escalation{Severity: severity, Title: title, Message: message, Timestamp: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal escalation: %w", err)
	}

	headers := nats.Header{}
	headers.Set("x-severity", severity)
	msg := &nats.Msg{Subject: n.subject + ".escalations", Data: data, Header: headers}
	if err := n.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish escalation: %w", err)
	}
	return nil
}
