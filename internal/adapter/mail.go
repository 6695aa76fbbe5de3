package adapter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/voicebridge/voicebridge/internal/config"
	"github.com/voicebridge/voicebridge/internal/domain"
	"github.com/voicebridge/voicebridge/internal/logging"
)

// MailSender sends one email. Satisfied by the Gmail API client and by
// test doubles.
type MailSender interface {
	Send(ctx context.Context, raw string) (string, error)
}

// MailAdapter sends follow-up emails through Gmail. Params: "to",
// "subject", "body"; config supplies fallbacks.
type MailAdapter struct {
	sender MailSender
	cfg    config.MailConfig
	log    *logging.Logger
}

// NewMailAdapter builds the Gmail-backed mail adapter from OAuth
// credentials and a stored token.
func NewMailAdapter(ctx context.Context, cfg config.MailConfig, log *logging.Logger) (*MailAdapter, error) {
	creds, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read gmail credentials: %w", err)
	}
	oauthCfg, err := google.ConfigFromJSON(creds, gmail.GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("parse gmail credentials: %w", err)
	}

	token, err := tokenFromFile(cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("read gmail token: %w", err)
	}

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(oauthCfg.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}

	return newMailAdapter(&gmailSender{svc: svc}, cfg, log), nil
}

func newMailAdapter(sender MailSender, cfg config.MailConfig, log *logging.Logger) *MailAdapter {
	return &MailAdapter{sender: sender, cfg: cfg, log: log.Sub("action.mail")}
}

// Name implements Adapter.
func (a *MailAdapter) Name() string { return "mail" }

// Perform implements Adapter.
func (a *MailAdapter) Perform(ctx context.Context, inv Invocation) (domain.Outcome, error) {
	to := inv.Param("to", a.cfg.DefaultTo)
	if to == "" {
		return domain.Outcome{}, Terminalf("mail", fmt.Errorf("no recipient: set params.to or adapters.mail.defaultTo"))
	}

	subject := inv.Param("subject", fmt.Sprintf("Call update from %s", inv.Event.Caller))
	body := inv.Param("body", defaultMailBody(inv.Event))

	var msg strings.Builder
	if a.cfg.SenderName != "" {
		fmt.Fprintf(&msg, "From: %s <me>\r\n", a.cfg.SenderName)
	}
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	raw := base64.URLEncoding.EncodeToString([]byte(msg.String()))
	id, err := a.sender.Send(ctx, raw)
	if err != nil {
		return domain.Outcome{}, Classify("mail", err)
	}

	a.log.Info().Str("to", to).Str("messageId", id).Msg("email sent")
	return domain.Outcome{Data: map[string]any{"messageId": id, "to": to}}, nil
}

// defaultMailBody summarizes the event when no body param is configured.
func defaultMailBody(ev *domain.ConversationEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Event: %s\n", ev.Type)
	if ev.Caller != "" {
		fmt.Fprintf(&b, "Caller: %s\n", ev.Caller)
	}
	if ev.Called != "" {
		fmt.Fprintf(&b, "Number called: %s\n", ev.Called)
	}
	if ev.Transcript != "" {
		fmt.Fprintf(&b, "\nTranscript:\n%s\n", ev.Transcript)
	}
	return b.String()
}

type gmailSender struct {
	svc *gmail.Service
}

func (g *gmailSender) Send(ctx context.Context, raw string) (string, error) {
	msg, err := g.svc.Users.Messages.Send("me", &gmail.Message{Raw: raw}).Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return msg.Id, nil
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var token oauth2.Token
	if err := json.NewDecoder(f).Decode(&token); err != nil {
		return nil, err
	}
	return &token, nil
}
