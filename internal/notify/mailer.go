package notify

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

// MailConfig holds SMTP relay settings.
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer sends settlement e-mails through an SMTP relay.
type Mailer struct {
	addr string
	from string
	auth smtp.Auth
	send sendFunc
}

// NewMailer returns nil when no host is configured.
func NewMailer(cfg MailConfig) *Mailer {
	if cfg.Host == "" {
		return nil
	}
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &Mailer{
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		from: cfg.From,
		auth: auth,
		send: smtp.SendMail,
	}
}

// SendOrderSettled e-mails the user the outcome of a settled order.
func (m *Mailer) SendOrderSettled(ctx context.Context, user domain.User, order domain.BinaryOrder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if user.Email == "" {
		return fmt.Errorf("mailer: user %s has no e-mail address", user.ID)
	}
	msg := settledMessage(m.from, user, order, time.Now().UTC())
	if err := m.send(m.addr, m.auth, m.from, []string{user.Email}, msg); err != nil {
		return fmt.Errorf("mailer: send to %s: %w", user.Email, err)
	}
	return nil
}

func settledMessage(from string, user domain.User, o domain.BinaryOrder, now time.Time) []byte {
	name := user.FirstName
	if name == "" {
		name = "trader"
	}
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", user.Email)
	fmt.Fprintf(&b, "Subject: Binary order %s: %s\r\n", o.Symbol(), o.Status)
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&b, "Hello %s,\r\n\r\n", name)
	fmt.Fprintf(&b, "Your %s %s order %s has closed.\r\n\r\n", o.Side, o.Symbol(), o.ID)
	fmt.Fprintf(&b, "Result:      %s\r\n", o.Status)
	fmt.Fprintf(&b, "Stake:       %s %s\r\n", o.Amount, o.Pair)
	fmt.Fprintf(&b, "Entry price: %s\r\n", o.Price)
	if o.ClosePrice.Valid {
		fmt.Fprintf(&b, "Close price: %s\r\n", o.ClosePrice.Decimal)
	}
	fmt.Fprintf(&b, "Payout:      %s %s\r\n", domain.SettlementCredit(o, o.Status), o.Pair)
	return b.Bytes()
}
