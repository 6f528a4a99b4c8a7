package external

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"emailer/internal/types"
)

// smtpSession is the subset of *smtp.Client used by SMTPClient.
type smtpSession interface {
	Extension(ext string) (bool, string)
	StartTLS(config *tls.Config) error
	Auth(a smtp.Auth) error
	Mail(from string) error
	Rcpt(to string) error
	Data() (io.WriteCloser, error)
	Quit() error
	Close() error
}

// SMTPClientConfig holds the SMTP connection settings.
type SMTPClientConfig struct {
	Host     string
	Port     int
	Username string
	Password types.SecretString
	// TLS upgrades a plain connection with STARTTLS.
	TLS bool
	// SSL dials with implicit TLS (usually port 465).
	SSL     bool
	Timeout time.Duration
}

// SMTPClient implements EmailProvider over one SMTP connection per message.
type SMTPClient struct {
	cfg   SMTPClientConfig
	dial  func(ctx context.Context) (smtpSession, error)
	clock types.Clock
}

// NewSMTPClient creates an SMTPClient.
func NewSMTPClient(cfg SMTPClientConfig) *SMTPClient {
	c := &SMTPClient{cfg: cfg, clock: types.RealClock{}}
	c.dial = c.dialServer
	return c
}

func (c *SMTPClient) Name() string { return "smtp" }

func (c *SMTPClient) addr() string {
	return net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
}

func (c *SMTPClient) dialServer(ctx context.Context) (smtpSession, error) {
	timeout := c.cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialer := &net.Dialer{Timeout: timeout}

	var (
		conn net.Conn
		err  error
	)
	if c.cfg.SSL {
		td := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: c.cfg.Host}}
		conn, err = td.DialContext(ctx, "tcp", c.addr())
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", c.addr())
	}
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}

	client, err := smtp.NewClient(conn, c.cfg.Host)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return client, nil
}

// Send delivers msg to every recipient in a single SMTP transaction.
func (c *SMTPClient) Send(ctx context.Context, msg types.Message) (string, error) {
	from, to, err := ParseAddresses(msg)
	if err != nil {
		return "", err
	}
	raw, err := BuildMIME(msg, c.clock.Now())
	if err != nil {
		return "", err
	}

	session, err := c.dial(ctx)
	if err != nil {
		return "", mapSMTPError("connect", err)
	}
	defer session.Close()

	if c.cfg.TLS && !c.cfg.SSL {
		if ok, _ := session.Extension("STARTTLS"); !ok {
			return "", types.NewAppError(types.ErrCodeUpstreamEmailProvider,
				"SMTP server does not support STARTTLS", nil)
		}
		if err := session.StartTLS(&tls.Config{ServerName: c.cfg.Host}); err != nil {
			return "", mapSMTPError("starttls", err)
		}
	}
	if c.cfg.Username != "" {
		auth := smtp.PlainAuth("", c.cfg.Username, c.cfg.Password.Unmask(), c.cfg.Host)
		if err := session.Auth(auth); err != nil {
			return "", mapSMTPError("auth", err)
		}
	}

	if err := session.Mail(from.Address); err != nil {
		return "", mapSMTPError("mail from", err)
	}
	for _, rcpt := range to {
		if err := session.Rcpt(rcpt.Address); err != nil {
			return "", mapSMTPError("rcpt to", err)
		}
	}

	w, err := session.Data()
	if err != nil {
		return "", mapSMTPError("data", err)
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return "", mapSMTPError("data", err)
	}
	if err := w.Close(); err != nil {
		return "", mapSMTPError("data", err)
	}
	_ = session.Quit()

	return msg.ID, nil
}

// mapSMTPError translates SMTP failures into AppErrors. Permanent 5xx replies
// mean the message was refused; 4xx replies and network errors are transient.
func mapSMTPError(stage string, err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch {
		case tpErr.Code >= 500:
			return types.NewAppError(types.ErrCodeEmailBlocked,
				fmt.Sprintf("SMTP %s rejected: %d %s", stage, tpErr.Code, tpErr.Msg), err)
		case tpErr.Code == 421 || tpErr.Code == 450 || tpErr.Code == 451 || tpErr.Code == 452:
			return types.NewAppError(types.ErrCodeUpstreamRateLimited,
				fmt.Sprintf("SMTP %s deferred: %d %s", stage, tpErr.Code, tpErr.Msg), err)
		}
	}
	return types.NewAppError(types.ErrCodeUpstreamEmailProvider,
		fmt.Sprintf("SMTP %s failed: %v", stage, err), err)
}

var _ EmailProvider = (*SMTPClient)(nil)
