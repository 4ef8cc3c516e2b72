package outreach

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/resilience"
)

// Message is a fully rendered email addressed to one recipient.
type Message struct {
	From     string
	FromName string
	To       string
	Subject  string
	HTML     string
	Plain    string
}

// Transport delivers messages. Any returned error is a failed delivery.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// BuildMIME encodes msg as multipart/alternative with the plain part first.
func BuildMIME(msg Message, now time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	h.SetSubject(msg.Subject)
	h.SetAddressList("From", []*mail.Address{{Name: msg.FromName, Address: msg.From}})
	h.SetAddressList("To", []*mail.Address{{Address: msg.To}})
	if err := h.GenerateMessageID(); err != nil {
		return nil, eris.Wrap(err, "outreach: generate message id")
	}

	var buf bytes.Buffer
	w, err := mail.CreateInlineWriter(&buf, h)
	if err != nil {
		return nil, eris.Wrap(err, "outreach: create mime writer")
	}

	for _, part := range []struct {
		contentType string
		body        string
	}{
		{"text/plain", msg.Plain},
		{"text/html", msg.HTML},
	} {
		var ph mail.InlineHeader
		ph.SetContentType(part.contentType, map[string]string{"charset": "utf-8"})
		pw, err := w.CreatePart(ph)
		if err != nil {
			return nil, eris.Wrapf(err, "outreach: create %s part", part.contentType)
		}
		if _, err := io.WriteString(pw, part.body); err != nil {
			return nil, eris.Wrapf(err, "outreach: write %s part", part.contentType)
		}
		if err := pw.Close(); err != nil {
			return nil, eris.Wrapf(err, "outreach: close %s part", part.contentType)
		}
	}

	if err := w.Close(); err != nil {
		return nil, eris.Wrap(err, "outreach: close mime writer")
	}
	return buf.Bytes(), nil
}

// SMTPConfig configures SMTPTransport.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Timeout  time.Duration
	// TLSConfig overrides the TLS settings (tests).
	TLSConfig *tls.Config
}

// SMTPTransport sends mail over SMTP. Port 465 uses implicit TLS; other
// ports upgrade with STARTTLS when the server offers it.
type SMTPTransport struct {
	cfg SMTPConfig
	now func() time.Time
}

// NewSMTPTransport creates an SMTPTransport.
func NewSMTPTransport(cfg SMTPConfig) *SMTPTransport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SMTPTransport{cfg: cfg, now: time.Now}
}

func (t *SMTPTransport) tlsConfig() *tls.Config {
	if t.cfg.TLSConfig != nil {
		return t.cfg.TLSConfig
	}
	return &tls.Config{ServerName: t.cfg.Host, MinVersion: tls.VersionTLS12}
}

// Send implements Transport.
func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	data, err := BuildMIME(msg, t.now())
	if err != nil {
		return resilience.NewPermanentError(err, 0)
	}

	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
	dialer := &net.Dialer{Timeout: t.cfg.Timeout}

	var conn net.Conn
	if t.cfg.Port == 465 {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: t.tlsConfig()}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return resilience.NewTransientError(eris.Wrapf(err, "smtp: dial %s", addr), 0)
	}
	if err := conn.SetDeadline(time.Now().Add(t.cfg.Timeout)); err != nil {
		conn.Close() //nolint:errcheck
		return eris.Wrap(err, "smtp: set deadline")
	}

	c, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		conn.Close() //nolint:errcheck
		return classifySMTP(eris.Wrap(err, "smtp: greeting"))
	}
	defer c.Close() //nolint:errcheck

	if t.cfg.Port != 465 {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(t.tlsConfig()); err != nil {
				return classifySMTP(eris.Wrap(err, "smtp: starttls"))
			}
		}
	}

	if t.cfg.Username != "" {
		if ok, _ := c.Extension("AUTH"); !ok {
			return resilience.NewPermanentError(eris.New("smtp: server does not support AUTH"), 0)
		}
		if err := c.Auth(smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)); err != nil {
			return classifySMTP(eris.Wrap(err, "smtp: auth"))
		}
	}

	if err := c.Mail(msg.From); err != nil {
		return classifySMTP(eris.Wrap(err, "smtp: mail from"))
	}
	if err := c.Rcpt(msg.To); err != nil {
		return classifySMTP(eris.Wrapf(err, "smtp: rcpt to %s", msg.To))
	}
	w, err := c.Data()
	if err != nil {
		return classifySMTP(eris.Wrap(err, "smtp: data"))
	}
	if _, err := w.Write(data); err != nil {
		return classifySMTP(eris.Wrap(err, "smtp: write body"))
	}
	if err := w.Close(); err != nil {
		return classifySMTP(eris.Wrap(err, "smtp: end data"))
	}
	return classifySMTP(c.Quit())
}

// classifySMTP marks 5xx replies permanent and everything else transient.
func classifySMTP(err error) error {
	if err == nil {
		return nil
	}
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		if tpErr.Code >= 500 {
			return resilience.NewPermanentError(err, tpErr.Code)
		}
		return resilience.NewTransientError(err, tpErr.Code)
	}
	return resilience.NewTransientError(err, 0)
}
