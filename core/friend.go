package core

import "context"

// FriendshipOracle answers the visibility-filtering question on the
// broadcast hot path. The relation is symmetric: IsFriend(a, b) and
// IsFriend(b, a) must agree.
type FriendshipOracle interface {
	IsFriend(ctx context.Context, a, b string) (bool, error)
}

// FriendStore is the full friendship relation as the REST surface sees it.
// The realtime protocol itself only ever reads through FriendshipOracle.
type FriendStore interface {
	FriendshipOracle

	// AddFriendship records a symmetric friendship between the two
	// nicknames. Adding an existing pair is a no-op.
	AddFriendship(ctx context.Context, a, b string) error

	// RemoveFriendship deletes the pair in either order.
	RemoveFriendship(ctx context.Context, a, b string) error

	// Friends lists the nicknames the given user is friends with, sorted.
	Friends(ctx context.Context, nickname string) ([]string, error)
}
