package mqtt

import "strings"

// DefaultTopicPrefix roots every lightbridge topic.
const DefaultTopicPrefix = "lightbridge"

// Topics builds lightbridge MQTT topics under a prefix.
//
//	<prefix>/status                          bridge online/offline (LWT)
//	<prefix>/state/<resource-id>/<property>  retained property value
//	<prefix>/resource/<resource-id>          retained resource descriptor
//	<prefix>/command/<target>                assignment lists for a target
//
// The zero value uses DefaultTopicPrefix.
type Topics struct {
	Prefix string
}

func (t Topics) join(parts ...string) string {
	prefix := strings.TrimSuffix(t.Prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return prefix + "/" + strings.Join(parts, "/")
}

// Status returns the bridge status topic.
func (t Topics) Status() string {
	return t.join("status")
}

// State returns the retained value topic of one resource property.
func (t Topics) State(resourceID, property string) string {
	return t.join("state", resourceID, property)
}

// Resource returns the retained descriptor topic of one resource.
func (t Topics) Resource(resourceID string) string {
	return t.join("resource", resourceID)
}

// Command returns the command topic for a target (literal id or *regex).
func (t Topics) Command(target string) string {
	return t.join("command", target)
}

// AllCommands returns the wildcard matching every command topic.
func (t Topics) AllCommands() string {
	return t.join("command", "+")
}

// AllStates returns the wildcard matching every state topic.
func (t Topics) AllStates() string {
	return t.join("state", "+", "+")
}

// All returns the wildcard matching every lightbridge topic.
func (t Topics) All() string {
	return t.join("#")
}
