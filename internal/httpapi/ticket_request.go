package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ticketFields is the raw decode target used to reject unknown fields
// before binding into ticketRequest (spec.md §4.6: "reject unknown fields").
type ticketFields struct {
	Kubeconfig *string          `json:"kubeconfig"`
	Namespace  *string          `json:"namespace"`
	Pod        *string          `json:"pod"`
	Container  *string          `json:"container"`
	Command    *json.RawMessage `json:"command"`
}

var allowedTicketFields = map[string]bool{
	"kubeconfig": true,
	"namespace":  true,
	"pod":        true,
	"container":  true,
	"command":    true,
}

func decodeStrict(body []byte) (*ticketFields, error) {
	var raw map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("malformed JSON body: %w", err)
	}
	for k := range raw {
		if !allowedTicketFields[k] {
			return nil, fmt.Errorf("unexpected field %q", k)
		}
	}

	var fields ticketFields
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("malformed JSON body: %w", err)
	}
	return &fields, nil
}

// bind validates required/optional fields into a ticketRequest.
func (f *ticketFields) bind() (*ticketRequest, error) {
	req := &ticketRequest{}

	kubeconfig, err := requireField(f.Kubeconfig, "kubeconfig")
	if err != nil {
		return nil, err
	}
	req.Kubeconfig = kubeconfig

	namespace, err := requireField(f.Namespace, "namespace")
	if err != nil {
		return nil, err
	}
	req.Namespace = namespace

	pod, err := requireField(f.Pod, "pod")
	if err != nil {
		return nil, err
	}
	req.Pod = pod

	if f.Container != nil {
		container, ok := trimmedNonEmpty(*f.Container)
		if !ok {
			return nil, fmt.Errorf("%q must be a non-empty string", "container")
		}
		req.Container = container
	}

	if f.Command != nil {
		var argv []string
		if err := json.Unmarshal(*f.Command, &argv); err != nil {
			return nil, fmt.Errorf("%q must be an array of strings: %w", "command", err)
		}
		if len(argv) == 0 {
			return nil, fmt.Errorf("%q must not be empty", "command")
		}
		for i, arg := range argv {
			trimmed, ok := trimmedNonEmpty(arg)
			if !ok {
				return nil, fmt.Errorf("%q[%d] must be a non-empty string", "command", i)
			}
			argv[i] = trimmed
		}
		req.Command = argv
	}

	return req, nil
}

func requireField(ptr *string, name string) (string, error) {
	if ptr == nil {
		return "", fmt.Errorf("missing %q field", name)
	}
	trimmed, ok := trimmedNonEmpty(*ptr)
	if !ok {
		return "", fmt.Errorf("%q must be a non-empty string", name)
	}
	return trimmed, nil
}
