// Package profile models the public profile a visitor sees: the owner's
// info, the agents available for chat, and the content widgets.
//
// Widgets are a closed sum over their kind. Each kind carries its own
// typed payload and decoding is strict: an unknown kind or a payload that
// does not match its kind is an error at the boundary, never a runtime
// cast later.
package profile

import (
	"encoding/json"
	"fmt"
)

// Agent is a configured AI persona a visitor can chat with.
type Agent struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Profile is the full public profile document.
type Profile struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	DisplayName string   `json:"display_name,omitempty"`
	Bio         string   `json:"bio,omitempty"`
	Agents      []Agent  `json:"agents,omitempty"`
	Widgets     []Widget `json:"widgets,omitempty"`
}

// FirstAgent returns the profile's first agent, the default chat target
// when nothing else is selected.
func (p *Profile) FirstAgent() (Agent, bool) {
	if len(p.Agents) == 0 {
		return Agent{}, false
	}
	return p.Agents[0], true
}

// AgentByID looks up an agent by id.
func (p *Profile) AgentByID(id string) (Agent, bool) {
	for _, a := range p.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return Agent{}, false
}

// WidgetKind discriminates the widget union.
type WidgetKind string

const (
	WidgetLink    WidgetKind = "link"
	WidgetAgent   WidgetKind = "agent"
	WidgetGallery WidgetKind = "gallery"
	WidgetMedia   WidgetKind = "media"
)

// LinkWidget is a single outbound link.
type LinkWidget struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// AgentWidget launches a chat with one of the profile's agents.
type AgentWidget struct {
	AgentID  string `json:"agent_id"`
	Greeting string `json:"greeting,omitempty"`
}

// GalleryImage is one entry in a gallery widget.
type GalleryImage struct {
	URL     string `json:"url"`
	Caption string `json:"caption,omitempty"`
}

// GalleryWidget is an image gallery.
type GalleryWidget struct {
	Images []GalleryImage `json:"images"`
}

// MediaWidget embeds external media (video, audio, ...).
type MediaWidget struct {
	Provider string `json:"provider"`
	URL      string `json:"url"`
	Autoplay bool   `json:"autoplay,omitempty"`
}

// Widget is one positioned content block. Exactly one payload pointer is
// non-nil, matching Kind.
type Widget struct {
	ID       string
	Kind     WidgetKind
	Position int
	Enabled  bool

	Link    *LinkWidget
	Agent   *AgentWidget
	Gallery *GalleryWidget
	Media   *MediaWidget
}

// UnknownKindError reports a widget kind this client does not understand.
type UnknownKindError struct {
	Kind string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("profile: unknown widget kind %q", e.Kind)
}

// widgetEnvelope is the wire shape of a widget.
type widgetEnvelope struct {
	ID       string          `json:"id"`
	Kind     string          `json:"kind"`
	Position int             `json:"position"`
	Enabled  bool            `json:"enabled"`
	Data     json.RawMessage `json:"data"`
}

// UnmarshalJSON decodes the envelope and the kind-specific payload.
func (w *Widget) UnmarshalJSON(raw []byte) error {
	var env widgetEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("profile: decode widget: %w", err)
	}

	w.ID = env.ID
	w.Kind = WidgetKind(env.Kind)
	w.Position = env.Position
	w.Enabled = env.Enabled

	decode := func(out any) error {
		if len(env.Data) == 0 {
			return fmt.Errorf("profile: widget %s: missing data for kind %q", env.ID, env.Kind)
		}
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("profile: widget %s: decode %s payload: %w", env.ID, env.Kind, err)
		}
		return nil
	}

	switch w.Kind {
	case WidgetLink:
		w.Link = &LinkWidget{}
		return decode(w.Link)
	case WidgetAgent:
		w.Agent = &AgentWidget{}
		return decode(w.Agent)
	case WidgetGallery:
		w.Gallery = &GalleryWidget{}
		return decode(w.Gallery)
	case WidgetMedia:
		w.Media = &MediaWidget{}
		return decode(w.Media)
	default:
		return &UnknownKindError{Kind: env.Kind}
	}
}

// MarshalJSON encodes the widget back into its wire shape.
func (w Widget) MarshalJSON() ([]byte, error) {
	var payload any
	switch w.Kind {
	case WidgetLink:
		payload = w.Link
	case WidgetAgent:
		payload = w.Agent
	case WidgetGallery:
		payload = w.Gallery
	case WidgetMedia:
		payload = w.Media
	default:
		return nil, &UnknownKindError{Kind: string(w.Kind)}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("profile: encode %s payload: %w", w.Kind, err)
	}
	return json.Marshal(widgetEnvelope{
		ID:       w.ID,
		Kind:     string(w.Kind),
		Position: w.Position,
		Enabled:  w.Enabled,
		Data:     data,
	})
}

// ChatAgentID resolves the agent a widget points at, for agent widgets.
func (w Widget) ChatAgentID() (string, bool) {
	if w.Kind == WidgetAgent && w.Agent != nil {
		return w.Agent.AgentID, true
	}
	return "", false
}
