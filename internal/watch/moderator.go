package watch

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/historyhiders/hidewatch/internal/metrics"
	"github.com/historyhiders/hidewatch/internal/models"
	"github.com/historyhiders/hidewatch/internal/moderation"

	"github.com/rs/zerolog/log"
)

// Toast texts shown for rejected usernames and completed clears.
const (
	MsgNoUsername      = "there was no username given"
	MsgInvalidUsername = "that username is syntactically invalid"
	MsgDone            = "Done!"
)

// Menu actions and form names.
const (
	ActionPostNow = "postNow"
	ActionFindNow = "findNow"

	FormEvaluate = "evaluate"
	FormClear    = "clear"
	FormGoto     = "goto"
)

// MenuItem is an entry of the moderator menu. Exactly one of Action and
// Form is set: actions run immediately, forms are shown first.
type MenuItem struct {
	Label      string                `json:"label"`
	Action     string                `json:"action,omitempty"`
	Form       string                `json:"form,omitempty"`
	Permission moderation.Permission `json:"permission"`
}

// FormField is one input of a moderator form.
type FormField struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Label    string `json:"label"`
	HelpText string `json:"helpText,omitempty"`
	Required bool   `json:"required"`
}

// Form is a modal form shown to a moderator.
type Form struct {
	Name        string                `json:"name"`
	Title       string                `json:"title"`
	AcceptLabel string                `json:"acceptLabel"`
	Fields      []FormField           `json:"fields"`
	Permission  moderation.Permission `json:"permission"`
}

var usernameField = FormField{
	Type:     "string",
	Name:     "username",
	Label:    "Enter a username",
	HelpText: "the user you want to evaluate. (without u/)",
	Required: true,
}

var forms = map[string]Form{
	FormEvaluate: {
		Name:        FormEvaluate,
		Title:       "Evaluate User",
		AcceptLabel: "Submit",
		Fields:      []FormField{usernameField},
		Permission:  moderation.PermissionEvaluateAccount,
	},
	FormClear: {
		Name:        FormClear,
		Title:       "Clear User",
		AcceptLabel: "Submit",
		Fields:      []FormField{usernameField},
		Permission:  moderation.PermissionClearAccount,
	},
	FormGoto: {
		Name:        FormGoto,
		Title:       "Go to account",
		AcceptLabel: "Go",
		Fields: []FormField{{
			Type:     "string",
			Name:     "userId",
			Label:    "Enter a user id",
			HelpText: "the account id, e.g. t2_abc123",
			Required: true,
		}},
		Permission: moderation.PermissionGotoAccount,
	},
}

var menu = []MenuItem{
	{Label: "postNow", Action: ActionPostNow, Permission: moderation.PermissionRunJobs},
	{Label: "findNow", Action: ActionFindNow, Permission: moderation.PermissionRunJobs},
	{Label: "Evaluate an account", Form: FormEvaluate, Permission: moderation.PermissionEvaluateAccount},
	{Label: "clear an account", Form: FormClear, Permission: moderation.PermissionClearAccount},
	{Label: "goto account from id", Form: FormGoto, Permission: moderation.PermissionGotoAccount},
}

// Menu returns the moderator menu.
func Menu() []MenuItem {
	return append([]MenuItem(nil), menu...)
}

// LookupForm returns the form with the given name.
func LookupForm(name string) (Form, bool) {
	f, ok := forms[name]
	return f, ok
}

// ActionPermission returns the permission a menu action requires.
func ActionPermission(action string) (moderation.Permission, bool) {
	for _, item := range menu {
		if item.Action != "" && item.Action == action {
			return item.Permission, true
		}
	}
	return "", false
}

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// NormalizeUsername trims raw input and strips a leading "u/". Empty or
// syntactically invalid names yield a KindInvalidInput failure whose Detail
// is the text to show the moderator.
func NormalizeUsername(raw string) (string, error) {
	name := strings.TrimPrefix(strings.TrimSpace(raw), "u/")
	if name == "" {
		return "", fail(KindInvalidInput, "username", MsgNoUsername)
	}
	if !usernamePattern.MatchString(name) {
		return "", fail(KindInvalidInput, "username", MsgInvalidUsername)
	}
	return name, nil
}

// PostNow runs the publisher on demand.
func (w *Watcher) PostNow(ctx context.Context, ui UI) error {
	res, err := w.Publish(ctx)
	if err != nil {
		metrics.ModeratorActionsTotal.WithLabelValues(ActionPostNow, "error").Inc()
		showFailure(ui, err)
		return err
	}
	metrics.ModeratorActionsTotal.WithLabelValues(ActionPostNow, "ok").Inc()
	ui.ShowToast(fmt.Sprintf("published %d accounts to r/%s/wiki/%s", res.Entries, res.Subreddit, res.Page))
	return nil
}

// FindNow runs the ingester on demand.
func (w *Watcher) FindNow(ctx context.Context, ui UI) error {
	res, err := w.Ingest(ctx)
	if err != nil {
		metrics.ModeratorActionsTotal.WithLabelValues(ActionFindNow, "error").Inc()
		showFailure(ui, err)
		return err
	}
	metrics.ModeratorActionsTotal.WithLabelValues(ActionFindNow, "ok").Inc()
	ui.ShowToast(fmt.Sprintf("applied %d verdicts from %s, %d hiding", res.Applied, res.PostID, res.Hiding))
	return nil
}

// Evaluate shows the cached verdict of a user.
func (w *Watcher) Evaluate(ctx context.Context, ui UI, rawUsername string) error {
	user, err := w.resolveUsername(ctx, ui, rawUsername)
	if err != nil {
		metrics.ModeratorActionsTotal.WithLabelValues(FormEvaluate, "rejected").Inc()
		return err
	}

	entry, err := w.GetAuthor(ctx, user.ID)
	if err != nil {
		metrics.ModeratorActionsTotal.WithLabelValues(FormEvaluate, "error").Inc()
		showFailure(ui, err)
		return err
	}
	metrics.ModeratorActionsTotal.WithLabelValues(FormEvaluate, "ok").Inc()
	if entry == nil {
		ui.ShowToast(fmt.Sprintf("u/%s was not found in the cache", user.Name))
		return nil
	}
	ui.ShowToast(describeEntry(user.Name, entry))
	return nil
}

// Clear deletes the cached entry of a user, allowing re-evaluation.
func (w *Watcher) Clear(ctx context.Context, ui UI, rawUsername string) error {
	user, err := w.resolveUsername(ctx, ui, rawUsername)
	if err != nil {
		metrics.ModeratorActionsTotal.WithLabelValues(FormClear, "rejected").Inc()
		return err
	}

	if err := w.ClearAuthor(ctx, user.ID); err != nil {
		metrics.ModeratorActionsTotal.WithLabelValues(FormClear, "error").Inc()
		showFailure(ui, err)
		return err
	}
	metrics.ModeratorActionsTotal.WithLabelValues(FormClear, "ok").Inc()
	log.Info().Str("user", user.Name).Str("actor", actorFrom(ctx)).Msg("Cleared author cache entry")
	w.record(ctx, moderation.AuditActionClearAccount, user.ID, "", map[string]string{"username": user.Name})
	ui.ShowToast(MsgDone)
	return nil
}

// Goto navigates to the profile of a user id.
func (w *Watcher) Goto(ctx context.Context, ui UI, rawUserID string) error {
	userID := strings.TrimSpace(rawUserID)
	if userID == "" {
		metrics.ModeratorActionsTotal.WithLabelValues(FormGoto, "rejected").Inc()
		f := fail(KindInvalidInput, "goto", "there was no user id given")
		ui.ShowToast(f.Detail)
		return f
	}

	user, err := w.content.GetUserByID(ctx, userID)
	if errors.Is(err, models.ErrNotFound) || (err == nil && user == nil) {
		metrics.ModeratorActionsTotal.WithLabelValues(FormGoto, "rejected").Inc()
		f := fail(KindNotFound, "goto", "%s was not found", userID)
		ui.ShowToast(f.Detail)
		return f
	}
	if err != nil {
		metrics.ModeratorActionsTotal.WithLabelValues(FormGoto, "error").Inc()
		ui.ShowToast(err.Error())
		return fmt.Errorf("failed to resolve %s: %w", userID, err)
	}

	metrics.ModeratorActionsTotal.WithLabelValues(FormGoto, "ok").Inc()
	ui.NavigateTo(w.content.ProfileURL(user))
	return nil
}

// resolveUsername validates raw input and looks the user up, toasting any
// rejection.
func (w *Watcher) resolveUsername(ctx context.Context, ui UI, raw string) (*models.User, error) {
	name, err := NormalizeUsername(raw)
	if err != nil {
		showFailure(ui, err)
		return nil, err
	}

	user, err := w.content.GetUserByUsername(ctx, name)
	if errors.Is(err, models.ErrNotFound) || (err == nil && user == nil) {
		f := fail(KindNotFound, "username", "u/%s was not found", name)
		ui.ShowToast(f.Detail)
		return nil, f
	}
	if err != nil {
		ui.ShowToast(err.Error())
		return nil, fmt.Errorf("failed to resolve u/%s: %w", name, err)
	}
	if user.Name == "" {
		user.Name = name
	}
	return user, nil
}

func showFailure(ui UI, err error) {
	var f *Failure
	if errors.As(err, &f) {
		ui.ShowToast(f.Detail)
		return
	}
	ui.ShowToast(err.Error())
}

func describeEntry(username string, e *models.AuthorCacheEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "u/%s: isHiding=%t isCalculating=%t lastCheck=%s",
		username, e.IsHiding, e.IsCalculating, e.LastCheck.UTC().Format(time.RFC3339))
	if e.EqualsInPosts != nil {
		fmt.Fprintf(&b, " equalsInPosts=%t", *e.EqualsInPosts)
	}
	if e.EqualsInComments != nil {
		fmt.Fprintf(&b, " equalsInComments=%t", *e.EqualsInComments)
	}
	return b.String()
}
