package diff

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/crmarques/catalogsync/faults"
	"github.com/crmarques/catalogsync/resource"
)

// Action is one update action in platform wire shape:
// {"action": Name, <params>...}.
type Action struct {
	Name   string
	Params map[string]any
}

func NewAction(name string, params map[string]any) Action {
	if params == nil {
		params = map[string]any{}
	}
	return Action{Name: name, Params: params}
}

// Param returns a parameter and whether it is present with a non-nil value.
func (a Action) Param(name string) (any, bool) {
	value, ok := a.Params[name]
	return value, ok && value != nil
}

func (a Action) with(name string, value any) Action {
	params := make(map[string]any, len(a.Params)+1)
	for key, item := range a.Params {
		params[key] = item
	}
	params[name] = value
	return Action{Name: a.Name, Params: params}
}

func (a Action) MarshalJSON() ([]byte, error) {
	body := make(map[string]any, len(a.Params)+1)
	for key, value := range a.Params {
		body[key] = value
	}
	body["action"] = a.Name
	return json.Marshal(body)
}

func (a *Action) UnmarshalJSON(data []byte) error {
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		return err
	}
	parsed, err := ActionFromMap(body)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ActionFromMap converts a decoded {"action": ...} object into an Action.
func ActionFromMap(body map[string]any) (Action, error) {
	name, _ := body["action"].(string)
	if strings.TrimSpace(name) == "" {
		return Action{}, faults.NewTypedError(faults.ValidationError, "update action requires a non-empty \"action\" name", nil)
	}
	normalized, err := resource.Normalize(body)
	if err != nil {
		return Action{}, err
	}
	params := normalized.(map[string]any)
	delete(params, "action")
	return Action{Name: name, Params: params}, nil
}

func (a Action) String() string {
	names := make([]string, 0, len(a.Params))
	for key := range a.Params {
		names = append(names, key)
	}
	sort.Strings(names)
	return fmt.Sprintf("%s(%s)", a.Name, strings.Join(names, ","))
}

// Names lists action names in order, for messages.
func Names(actions []Action) []string {
	names := make([]string, len(actions))
	for idx, action := range actions {
		names[idx] = action.Name
	}
	return names
}
