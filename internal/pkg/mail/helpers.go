package mail

import (
	"strings"

	"github.com/mx-space/newsletter/internal/config"
)

// BuildMailConfig constructs a mail.Config from the application's mail
// settings so every caller builds the mailer the same way.
func BuildMailConfig(cfg config.MailRuntimeConfig) Config {
	mc := Config{
		Enable:   cfg.Enable,
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Pass:     cfg.Pass,
		From:     cfg.From,
		FromName: cfg.FromName,
		ReplyTo:  cfg.ReplyTo,
	}
	if key := strings.TrimSpace(cfg.ResendKey); key != "" {
		mc.UseResend = true
		mc.ResendKey = key
	}
	return mc
}
