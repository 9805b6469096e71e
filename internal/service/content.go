package service

import (
	"html"

	"clubhub/internal/featureflags"
	"clubhub/internal/models"
	"clubhub/internal/render"
)

// Actor is the caller of an ownership-checked operation.
type Actor struct {
	ID      uint
	IsAdmin bool
}

// ActorOf builds an Actor from an authenticated user.
func ActorOf(u *models.User) Actor {
	if u == nil {
		return Actor{}
	}
	return Actor{ID: u.ID, IsAdmin: u.IsAdmin}
}

// CanModify reports whether the actor owns the resource or is an admin.
func (a Actor) CanModify(ownerID uint) bool {
	return a.IsAdmin || (a.ID != 0 && a.ID == ownerID)
}

const defaultCategory = "general"

// renderBody produces the HTML shown for user-written text.
func renderBody(flags *featureflags.Manager, source string) string {
	if flags.On(featureflags.MarkdownContent) {
		return render.Markdown(source)
	}
	return "<p>" + html.EscapeString(source) + "</p>"
}
