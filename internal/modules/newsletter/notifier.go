package newsletter

import (
	"context"
	netmail "net/mail"
	"strings"

	"github.com/mx-space/newsletter/internal/pkg/mail"
)

// MailNotifier sends unsubscribe notices to the site administrator.
type MailNotifier struct {
	sender  *mail.Sender
	admin   netmail.Address
	subject string
}

// NewMailNotifier returns nil when no admin address is configured; a nil
// Notifier disables notices in the Service.
func NewMailNotifier(sender *mail.Sender, adminAddr, adminName, subject string) Notifier {
	adminAddr = strings.TrimSpace(adminAddr)
	if sender == nil || adminAddr == "" {
		return nil
	}
	return &MailNotifier{
		sender:  sender,
		admin:   netmail.Address{Name: adminName, Address: adminAddr},
		subject: subject,
	}
}

func (n *MailNotifier) SendUnsubscribeNotice(ctx context.Context, notice UnsubscribeNotice) error {
	return n.sender.SendUnsubscribeNotice(ctx, n.admin, n.subject, mail.UnsubscribeNoticeData{
		FirstName: notice.FirstName,
		LastName:  notice.LastName,
		Email:     notice.Email,
		HadGroups: notice.HadGroups,
	})
}
