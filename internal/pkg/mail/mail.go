package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	netmail "net/mail"
	"strings"
	"text/template"
	"time"

	"github.com/yuin/goldmark"
	"gopkg.in/gomail.v2"
)

const defaultResendEndpoint = "https://api.resend.com/emails"

// Config holds mail provider settings.
type Config struct {
	Enable    bool
	Host      string
	Port      int
	User      string
	Pass      string
	From      string
	FromName  string
	ReplyTo   string
	UseResend bool
	ResendKey string
	// ResendEndpoint overrides the Resend API URL.
	ResendEndpoint string
}

// Message is a single email to send. HTML is optional; when set it is sent
// as an alternative to Text.
type Message struct {
	To      []netmail.Address
	Subject string
	Text    string
	HTML    string
}

// Sender sends emails via SMTP or Resend.
type Sender struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) *Sender {
	return &Sender{cfg: cfg, client: &http.Client{Timeout: 15 * time.Second}}
}

// Enabled reports whether Send delivers anything.
func (s *Sender) Enabled() bool { return s.cfg.Enable }

// Send dispatches an email. Uses Resend if configured, otherwise SMTP.
func (s *Sender) Send(ctx context.Context, msg Message) error {
	if !s.cfg.Enable {
		return nil
	}
	if len(msg.To) == 0 {
		return fmt.Errorf("mail: no recipients")
	}
	if s.cfg.UseResend && s.cfg.ResendKey != "" {
		return s.sendResend(ctx, msg)
	}
	return s.sendSMTP(msg)
}

func (s *Sender) from() netmail.Address {
	addr := s.cfg.From
	if addr == "" {
		addr = s.cfg.User
	}
	return netmail.Address{Name: s.cfg.FromName, Address: addr}
}

// sendSMTP sends via gomail.
func (s *Sender) sendSMTP(msg Message) error {
	port := s.cfg.Port
	if port == 0 {
		port = 587
	}

	m := buildMessage(s.from(), s.cfg.ReplyTo, msg)
	d := gomail.NewDialer(s.cfg.Host, port, s.cfg.User, s.cfg.Pass)
	return d.DialAndSend(m)
}

func buildMessage(from netmail.Address, replyTo string, msg Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", from.Address, from.Name)
	to := make([]string, 0, len(msg.To))
	for _, addr := range msg.To {
		to = append(to, m.FormatAddress(addr.Address, addr.Name))
	}
	m.SetHeader("To", to...)
	m.SetHeader("Subject", msg.Subject)
	if replyTo != "" {
		m.SetHeader("Reply-To", replyTo)
	}
	if msg.Text != "" {
		m.SetBody("text/plain", msg.Text)
		if msg.HTML != "" {
			m.AddAlternative("text/html", msg.HTML)
		}
	} else {
		m.SetBody("text/html", msg.HTML)
	}
	return m
}

// sendResend sends via the Resend HTTP API.
func (s *Sender) sendResend(ctx context.Context, msg Message) error {
	to := make([]string, 0, len(msg.To))
	for _, addr := range msg.To {
		to = append(to, addr.String())
	}
	from := s.from()
	body := map[string]interface{}{
		"from":    from.String(),
		"to":      to,
		"subject": msg.Subject,
	}
	if msg.Text != "" {
		body["text"] = msg.Text
	}
	if msg.HTML != "" {
		body["html"] = msg.HTML
	}
	if s.cfg.ReplyTo != "" {
		body["reply_to"] = s.cfg.ReplyTo
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	endpoint := s.cfg.ResendEndpoint
	if endpoint == "" {
		endpoint = defaultResendEndpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.ResendKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Message string `json:"message"`
		}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return fmt.Errorf("resend error %d: %s", resp.StatusCode, errResp.Message)
	}
	return nil
}

const unsubscribeNoticeTpl = `A subscriber has left the newsletter:

- **Name:** {{.FirstName}} {{.LastName}}
- **E-Mail:** {{.Email}}
- **Usergroup:** {{if .HadGroups}}assigned{{else}}none{{end}}
`

// UnsubscribeNoticeData is the data for admin unsubscribe notices.
type UnsubscribeNoticeData struct {
	FirstName string
	LastName  string
	Email     string
	HadGroups bool
}

// RenderUnsubscribeNotice returns the Markdown text body and its HTML form.
func RenderUnsubscribeNotice(data UnsubscribeNoticeData) (text, html string, err error) {
	t, err := template.New("unsubscribe").Parse(unsubscribeNoticeTpl)
	if err != nil {
		return "", "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", "", err
	}
	text = buf.String()

	var out bytes.Buffer
	if err := goldmark.Convert(buf.Bytes(), &out); err != nil {
		return "", "", err
	}
	return text, out.String(), nil
}

// SendUnsubscribeNotice tells the administrator that someone unsubscribed.
func (s *Sender) SendUnsubscribeNotice(ctx context.Context, to netmail.Address, subject string, data UnsubscribeNoticeData) error {
	if strings.TrimSpace(subject) == "" {
		subject = "Newsletter unsubscribe"
	}
	text, html, err := RenderUnsubscribeNotice(data)
	if err != nil {
		return err
	}
	return s.Send(ctx, Message{
		To:      []netmail.Address{to},
		Subject: subject,
		Text:    text,
		HTML:    html,
	})
}
