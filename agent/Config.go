package agent

// Type represents a type of an agent.
type Type string

// Available agent types
const (
	SAC Type = "SAC"
)

// ActionType describes the kind of action space an agent acts in
type ActionType string

// Available action types
const (
	Continuous ActionType = "continuous"
	Discrete   ActionType = "discrete"
)

// Config represents a configuration for creating an agent
type Config interface {
	// Type returns the type of agent the config describes
	Type() Type

	// Validate returns an error describing whether or not the
	// configuration is valid or not.
	Validate() error
}
