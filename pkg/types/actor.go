package types

type ActorKind string

const (
	ActorHuman  ActorKind = "human"
	ActorSystem ActorKind = "system"
)

// Actor identifies who performed an action. Human actors carry an account ID
// and display name; system actors carry the process name in ID.
type Actor struct {
	Kind ActorKind `json:"kind"`
	ID   string    `json:"id"`
	Name string    `json:"name,omitempty"`
}

func HumanActor(id, name string) Actor {
	return Actor{Kind: ActorHuman, ID: id, Name: name}
}

func SystemActor(processName string) Actor {
	return Actor{Kind: ActorSystem, ID: processName, Name: processName}
}
