package actions

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/signaldock/signaldock/pkg/models"
	"github.com/signaldock/signaldock/pkg/template"
)

// Notifier shows one desktop notification. The default shells out to
// notify-send; tests script it.
type Notifier interface {
	Notify(ctx context.Context, title, message string, timeout time.Duration) error
}

type notifySend struct{}

func (notifySend) Notify(ctx context.Context, title, message string, timeout time.Duration) error {
	args := []string{"-a", "SignalDock"}
	if timeout > 0 {
		args = append(args, "-t", strconv.Itoa(int(timeout.Milliseconds())))
	}
	args = append(args, title, message)
	if out, err := exec.CommandContext(ctx, "notify-send", args...).CombinedOutput(); err != nil {
		return fmt.Errorf("notify-send: %w (%s)", err, truncate(string(out), 200))
	}
	return nil
}

// NotificationAction shows a desktop notification, with {placeholder}
// substitution from the event data in both title and message.
type NotificationAction struct {
	notifier Notifier
}

// NewNotificationAction builds the action. A nil notifier selects
// notify-send.
func NewNotificationAction(n Notifier) *NotificationAction {
	if n == nil {
		n = notifySend{}
	}
	return &NotificationAction{notifier: n}
}

func (a *NotificationAction) Metadata() Metadata {
	return Metadata{
		Type:        "notification",
		DisplayName: "Notification",
		Description: "Show a system notification",
	}
}

func (a *NotificationAction) ValidateParams(params map[string]any) error {
	if paramString(params, "title", "") == "" && paramString(params, "message", "") == "" {
		return fmt.Errorf("title or message is required")
	}
	return nil
}

func (a *NotificationAction) Execute(ctx context.Context, actx Context) models.ActionResult {
	data := actx.Data()
	title := template.Substitute(paramString(actx.Params, "title", "SignalDock Alert"), data, "")
	message := template.Substitute(paramString(actx.Params, "message", ""), data, "")
	timeout := time.Duration(paramFloat(actx.Params, "timeout", 10)) * time.Second

	if err := a.notifier.Notify(ctx, title, message, timeout); err != nil {
		return models.FailureResult("failed to show notification", err)
	}
	return models.SuccessResult("Notification shown: "+title, map[string]any{
		"title":   title,
		"message": message,
	})
}
