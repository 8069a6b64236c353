package models

import "fmt"

// ActorKind identifies who is performing a state-mutating call.
type ActorKind string

const (
	ActorUser    ActorKind = "user"
	ActorStaff   ActorKind = "staff"
	ActorSystem  ActorKind = "system"
	ActorGateway ActorKind = "gateway"
)

// Actor is attached to every booking and settlement mutation for audit.
type Actor struct {
	Kind ActorKind `json:"kind"`
	ID   string    `json:"id"`
}

var (
	SystemActor  = Actor{Kind: ActorSystem, ID: "system"}
	GatewayActor = Actor{Kind: ActorGateway, ID: "gateway"}
)

func (a Actor) String() string {
	if a.ID == "" {
		return string(a.Kind)
	}
	return fmt.Sprintf("%s:%s", a.Kind, a.ID)
}

// Valid reports whether the actor kind is one of the known kinds.
func (a Actor) Valid() bool {
	switch a.Kind {
	case ActorUser, ActorStaff, ActorSystem, ActorGateway:
		return true
	}
	return false
}
