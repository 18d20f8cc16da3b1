package node

// Node is one running role. Status must be safe to call from HTTP handlers
// while the role's event loop runs.
type Node interface {
	NodeID() string
	Kind() string
	Status() any
}
