package docstore

import "context"

// Change kinds.
const (
	ChangeCreated = "created"
	ChangeUpdated = "updated"
	ChangeDeleted = "deleted"
)

// ChangeEvent describes one committed write.
type ChangeEvent struct {
	Collection string `json:"collection"`
	DocID      string `json:"docId"`
	Kind       string `json:"kind"`
}

// ChangeNotifier carries committed-write events to watchers. Stores without a
// native change stream use it to drive WatchPosts.
type ChangeNotifier interface {
	Notify(ctx context.Context, events ...ChangeEvent)
	Listen(fn func(ChangeEvent)) (cancel func())
}
