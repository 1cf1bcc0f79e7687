// Package email provides email sending functionality
package email

import (
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config holds email configuration
type Config struct {
	Host        string
	Port        int
	User        string
	Password    string
	From        string
	FromName    string
	UseTLS      bool
	FrontendURL string
}

// Service handles email sending
type Service struct {
	config    *Config
	templates map[string]*template.Template
	logger    *zap.Logger
}

func NewService(config *Config, logger *zap.Logger) *Service {
	s := &Service{
		config:    config,
		templates: make(map[string]*template.Template),
		logger:    logger.Named("email"),
	}
	s.loadTemplates()
	return s
}

// Email represents an email message
type Email struct {
	To       []string
	Subject  string
	Body     string
	HTMLBody string
}

// AccessDecisionData holds data for the access decision email
type AccessDecisionData struct {
	Nickname    string
	Approved    bool
	WindowStart string
	WindowEnd   string
	JournalURL  string
}

const templateAccessDecision = "access_decision"

func (s *Service) loadTemplates() {
	s.templates[templateAccessDecision] = template.Must(template.New(templateAccessDecision).Parse(`
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Helvetica, Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background: #1f2937; color: white; padding: 24px; border-radius: 8px 8px 0 0; }
        .content { background: #f9fafb; padding: 24px; border-radius: 0 0 8px 8px; }
        .btn { display: inline-block; background: #2563eb; color: white; padding: 12px 20px; text-decoration: none; border-radius: 6px; margin-top: 16px; }
        .footer { margin-top: 24px; font-size: 12px; color: #6b7280; text-align: center; }
    </style>
</head>
<body>
<div class="container">
    <div class="header">
        <h2>{{if .Approved}}Journal access approved{{else}}Journal access request declined{{end}}</h2>
    </div>
    <div class="content">
        <p>Hi {{.Nickname}},</p>
        {{if .Approved}}
        <p>Your request to read the class journal was approved for <strong>{{.WindowStart}}</strong> to <strong>{{.WindowEnd}}</strong>.</p>
        <a href="{{.JournalURL}}" class="btn">Open the journal</a>
        {{else}}
        <p>Your request for <strong>{{.WindowStart}}</strong> to <strong>{{.WindowEnd}}</strong> was not approved. You are welcome to submit a new one.</p>
        {{end}}
    </div>
    <div class="footer">
        Class 26B
    </div>
</div>
</body>
</html>
`))
}

func (s *Service) Send(email *Email) error {
	if s.config.Host == "" {
		s.logger.Debug("email not configured, skipping send")
		return nil
	}

	var msg bytes.Buffer
	msg.WriteString(fmt.Sprintf("From: %s <%s>\r\n", s.config.FromName, s.config.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(email.To, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", email.Subject))
	msg.WriteString("MIME-Version: 1.0\r\n")

	if email.HTMLBody != "" {
		msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
		msg.WriteString(email.HTMLBody)
	} else {
		msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
		msg.WriteString(email.Body)
	}

	auth := smtp.PlainAuth("", s.config.User, s.config.Password, s.config.Host)
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	if !s.config.UseTLS {
		return smtp.SendMail(addr, auth, s.config.From, email.To, msg.Bytes())
	}

	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: s.config.Host})
	if err != nil {
		return fmt.Errorf("TLS dial error: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		return fmt.Errorf("SMTP client error: %w", err)
	}
	defer client.Close()

	if err = client.Auth(auth); err != nil {
		return fmt.Errorf("auth error: %w", err)
	}
	if err = client.Mail(s.config.From); err != nil {
		return fmt.Errorf("mail error: %w", err)
	}
	for _, rcpt := range email.To {
		if err = client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt error: %w", err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data error: %w", err)
	}
	if _, err = w.Write(msg.Bytes()); err != nil {
		return fmt.Errorf("write error: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("close error: %w", err)
	}
	return client.Quit()
}

// Render executes a named template.
func (s *Service) Render(templateName string, data interface{}) (string, error) {
	tmpl, ok := s.templates[templateName]
	if !ok {
		return "", fmt.Errorf("template not found: %s", templateName)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return "", fmt.Errorf("template execution error: %w", err)
	}
	return body.String(), nil
}

// SendWithTemplate sends an email using a template
func (s *Service) SendWithTemplate(to []string, subject, templateName string, data interface{}) error {
	body, err := s.Render(templateName, data)
	if err != nil {
		return err
	}
	return s.Send(&Email{To: to, Subject: subject, HTMLBody: body})
}

func (s *Service) JournalURL() string {
	return strings.TrimRight(s.config.FrontendURL, "/") + "/journal"
}

// ============================================
// Async Email Queue (simple in-memory)
// ============================================

// TemplateSender is what the queue workers deliver through.
type TemplateSender interface {
	SendWithTemplate(to []string, subject, templateName string, data interface{}) error
}

var ErrQueueFull = errors.New("email queue full")

// EmailQueue handles async email sending
type EmailQueue struct {
	sender     TemplateSender
	journalURL string
	queue      chan *queuedEmail
	done       chan struct{}
	wg         sync.WaitGroup
	stopOnce   sync.Once
	retryDelay time.Duration
	logger     *zap.Logger
}

type queuedEmail struct {
	to           []string
	subject      string
	templateName string
	data         interface{}
	retries      int
}

func NewEmailQueue(service *Service, workers int, logger *zap.Logger) *EmailQueue {
	return newEmailQueue(service, service.JournalURL(), workers, 2*time.Second, logger)
}

func newEmailQueue(sender TemplateSender, journalURL string, workers int, retryDelay time.Duration, logger *zap.Logger) *EmailQueue {
	q := &EmailQueue{
		sender:     sender,
		journalURL: journalURL,
		queue:      make(chan *queuedEmail, 1000),
		done:       make(chan struct{}),
		retryDelay: retryDelay,
		logger:     logger.Named("email_queue"),
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

func (q *EmailQueue) worker() {
	defer q.wg.Done()
	for {
		select {
		case email := <-q.queue:
			q.deliver(email)
		case <-q.done:
			return
		}
	}
}

// deliver retries up to three times with a growing delay.
func (q *EmailQueue) deliver(email *queuedEmail) {
	for {
		err := q.sender.SendWithTemplate(email.to, email.subject, email.templateName, email.data)
		if err == nil {
			return
		}
		if email.retries >= 3 {
			q.logger.Warn("email dropped", zap.Strings("to", email.to), zap.Error(err))
			return
		}
		email.retries++
		select {
		case <-time.After(q.retryDelay * time.Duration(email.retries)):
		case <-q.done:
			return
		}
	}
}

// Enqueue adds an email to the queue without blocking.
func (q *EmailQueue) Enqueue(to []string, subject, templateName string, data interface{}) error {
	select {
	case q.queue <- &queuedEmail{to: to, subject: subject, templateName: templateName, data: data}:
		return nil
	default:
		return ErrQueueFull
	}
}

// SendAccessDecisionEmail queues the decision email for a requester.
func (q *EmailQueue) SendAccessDecisionEmail(to, nickname string, approved bool, windowStart, windowEnd time.Time) error {
	subject := "Your journal access request was declined"
	if approved {
		subject = "Your journal access request was approved"
	}
	return q.Enqueue([]string{to}, subject, templateAccessDecision, AccessDecisionData{
		Nickname:    nickname,
		Approved:    approved,
		WindowStart: windowStart.Format("2006-01-02 15:04"),
		WindowEnd:   windowEnd.Format("2006-01-02 15:04"),
		JournalURL:  q.journalURL,
	})
}

// Stop stops the workers and waits for in-flight sends.
func (q *EmailQueue) Stop() {
	q.stopOnce.Do(func() {
		close(q.done)
	})
	q.wg.Wait()
}
