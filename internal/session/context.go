// Package session implements the Session Context component: the in-memory
// per-session mutable aggregate (messages, type, workspace), its cache, and
// the per-session serialization lock the Runtime holds across a whole turn.
package session

import (
	"sync"

	"github.com/haasonsaas/agentcore/pkg/models"
)

// Context is the in-memory aggregate for one session. SessionID, Channel,
// SenderID, and SessionType are set at creation and never change; Messages
// and Metadata are the only mutable fields, and mutation is restricted to
// appending messages and updating metadata entries.
type Context struct {
	SessionID   string
	Channel     string
	SenderID    string
	SenderName  string
	Workspace   string
	SessionType models.SessionType

	mu       sync.RWMutex
	messages []models.Message
	metadata map[string]any
}

// NewContext constructs an empty Context for the given identity.
func NewContext(sessionID, channel, senderID, senderName string, sessionType models.SessionType) *Context {
	return &Context{
		SessionID:   sessionID,
		Channel:     channel,
		SenderID:    senderID,
		SenderName:  senderName,
		SessionType: sessionType,
		Workspace:   ".",
		metadata:    make(map[string]any),
	}
}

// AppendMessage adds msg to the end of the transcript.
func (c *Context) AppendMessage(msg models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
}

// SeedMessages replaces the transcript wholesale — used once, when
// rehydrating a freshly created Context's tail from the Transcript Store.
func (c *Context) SeedMessages(msgs []models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append([]models.Message(nil), msgs...)
}

// Messages returns a snapshot copy of the transcript so far.
func (c *Context) Messages() []models.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// SetMetadata sets a single metadata entry.
func (c *Context) SetMetadata(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata[key] = value
}

// Metadata returns a snapshot copy of the metadata map.
func (c *Context) Metadata() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.metadata))
	for k, v := range c.metadata {
		out[k] = v
	}
	return out
}

// DeriveSessionType assigns the trust category for a newly created session
// from its channel name. The spec leaves the channel-to-type mapping as an
// external policy decision; this is the simplest one that satisfies the
// closed SessionType enum: explicit channel markers select DM/GROUP/TOPIC,
// anything else (including a bare CLI or direct API caller) is MAIN.
func DeriveSessionType(channel string) models.SessionType {
	switch channel {
	case "dm":
		return models.SessionDM
	case "group":
		return models.SessionGroup
	case "topic":
		return models.SessionTopic
	default:
		return models.SessionMain
	}
}
