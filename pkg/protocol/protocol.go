// Package protocol defines the JSON messages exchanged with the live update
// endpoint: subscribe/unsubscribe requests and kind-discriminated responses.
package protocol

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/projectify/live/errors"
)

// EndpointSuffix is appended to the configured websocket path.
const EndpointSuffix = "/websocket/"

// ResourceType names a logical resource that can be subscribed to.
type ResourceType string

const (
	ResourceWorkspace ResourceType = "workspace"
	ResourceProject   ResourceType = "project"
	ResourceTask      ResourceType = "task"
)

// ResourceTypes is the closed set of subscribable resource types.
var ResourceTypes = []ResourceType{ResourceWorkspace, ResourceProject, ResourceTask}

// Valid reports whether t belongs to the closed set.
func (t ResourceType) Valid() bool {
	for _, known := range ResourceTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseResourceType validates a user supplied resource type name.
func ParseResourceType(s string) (ResourceType, error) {
	t := ResourceType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("unknown resource type %q", s)).
			WithDetail("resource", s)
	}
	return t, nil
}

// Resource addresses one instance of a resource type.
type Resource struct {
	Type ResourceType `json:"resource"`
	UUID string       `json:"uuid"`
}

func (r Resource) String() string {
	return fmt.Sprintf("%s/%s", r.Type, r.UUID)
}

// Action is the verb of a client request.
type Action string

const (
	ActionSubscribe   Action = "subscribe"
	ActionUnsubscribe Action = "unsubscribe"
)

// Kind discriminates server responses.
type Kind string

const (
	KindAlreadySubscribed Kind = "already_subscribed"
	KindNotSubscribed     Kind = "not_subscribed"
	KindNotFound          Kind = "not_found"
	KindGone              Kind = "gone"
	KindSubscribed        Kind = "subscribed"
	KindUnsubscribed      Kind = "unsubscribed"
	KindChanged           Kind = "changed"
)

var knownKinds = map[Kind]struct{}{
	KindAlreadySubscribed: {},
	KindNotSubscribed:     {},
	KindNotFound:          {},
	KindGone:              {},
	KindSubscribed:        {},
	KindUnsubscribed:      {},
	KindChanged:           {},
}

// Valid reports whether k is a kind the server may send.
func (k Kind) Valid() bool {
	_, ok := knownKinds[k]
	return ok
}

// KindSet is an immutable set of kinds a listener is interested in.
type KindSet map[Kind]struct{}

// Kinds builds a KindSet.
func Kinds(kinds ...Kind) KindSet {
	set := make(KindSet, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
	}
	return set
}

// Contains reports whether k is in the set.
func (s KindSet) Contains(k Kind) bool {
	_, ok := s[k]
	return ok
}

func (s KindSet) String() string {
	names := make([]string, 0, len(s))
	for k := range s {
		names = append(names, string(k))
	}
	sort.Strings(names)
	return "{" + strings.Join(names, ",") + "}"
}

// Kind sets used by the subscription handshake.
var (
	SubscribeResponseKinds   = Kinds(KindNotFound, KindAlreadySubscribed, KindSubscribed)
	UnsubscribeResponseKinds = Kinds(KindUnsubscribed, KindNotSubscribed)
	LiveKinds                = Kinds(KindGone, KindChanged)
)

// Request is sent from client to server.
type Request struct {
	Action   Action       `json:"action"`
	Resource ResourceType `json:"resource"`
	UUID     string       `json:"uuid"`
}

// Subscribe builds a subscribe request for r.
func Subscribe(r Resource) Request {
	return Request{Action: ActionSubscribe, Resource: r.Type, UUID: r.UUID}
}

// Unsubscribe builds an unsubscribe request for r.
func Unsubscribe(r Resource) Request {
	return Request{Action: ActionUnsubscribe, Resource: r.Type, UUID: r.UUID}
}

// Target returns the resource the request addresses.
func (r Request) Target() Resource {
	return Resource{Type: r.Resource, UUID: r.UUID}
}

// Response is sent from server to client. Content is only present on changed
// and always carries the full representation of the resource.
type Response struct {
	Kind     Kind            `json:"kind"`
	Resource ResourceType    `json:"resource"`
	UUID     string          `json:"uuid"`
	Content  json.RawMessage `json:"content,omitempty"`
}

// Source returns the resource the response is about.
func (r Response) Source() Resource {
	return Resource{Type: r.Resource, UUID: r.UUID}
}

// Encode serializes a request or response.
func Encode(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeProtocolDecode, "failed to encode message")
	}
	return data, nil
}

// DecodeResponse parses a server message and rejects unknown kinds and
// resource types.
func DecodeResponse(data []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return Response{}, errors.Wrap(err, errors.ErrCodeProtocolDecode, "malformed response")
	}
	if !resp.Kind.Valid() {
		return Response{}, errors.New(errors.ErrCodeProtocolDecode, fmt.Sprintf("unknown response kind %q", resp.Kind)).
			WithDetail("kind", string(resp.Kind))
	}
	if !resp.Resource.Valid() {
		return Response{}, errors.New(errors.ErrCodeProtocolDecode, fmt.Sprintf("unknown resource type %q", resp.Resource)).
			WithDetail("resource", string(resp.Resource))
	}
	if resp.Kind == KindChanged && len(resp.Content) == 0 {
		return Response{}, errors.New(errors.ErrCodeProtocolDecode, "changed message without content").
			WithDetail("uuid", resp.UUID)
	}
	return resp, nil
}

// DecodeRequest parses a client message.
func DecodeRequest(data []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, errors.Wrap(err, errors.ErrCodeProtocolDecode, "malformed request")
	}
	switch req.Action {
	case ActionSubscribe, ActionUnsubscribe:
	default:
		return Request{}, errors.New(errors.ErrCodeProtocolDecode, fmt.Sprintf("unknown action %q", req.Action))
	}
	if !req.Resource.Valid() {
		return Request{}, errors.New(errors.ErrCodeProtocolDecode, fmt.Sprintf("unknown resource type %q", req.Resource))
	}
	return req, nil
}
