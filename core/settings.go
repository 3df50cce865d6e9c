package core

import "context"

// Visibility is a sender-side policy controlling who may receive that
// sender's location updates.
type Visibility string

const (
	// VisibilityAll makes the sender's location visible to every session in
	// the shared space.
	VisibilityAll Visibility = "all"
	// VisibilityFriends restricts location fan-out to recipients that are
	// friends of the sender at the time of each update.
	VisibilityFriends Visibility = "friends"
	// VisibilityNone hides the sender's location from everyone. The sender
	// still receives its own echo.
	VisibilityNone Visibility = "none"
)

func (v Visibility) Valid() bool {
	return v == VisibilityAll || v == VisibilityFriends || v == VisibilityNone
}

// SettingsStore provides the per-user location visibility preference.
// Implementations must return VisibilityAll when the user has never saved a
// preference.
type SettingsStore interface {
	LocationVisibility(ctx context.Context, nickname string) (Visibility, error)
	SetLocationVisibility(ctx context.Context, nickname string, v Visibility) error
}
