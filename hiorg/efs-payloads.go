package hiorg

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Int64 decodes ids and unix timestamps that HiOrg-Server sends either as
// JSON numbers or as numeric strings.
type Int64 int64

func (i *Int64) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*i = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid numeric value %s: %w", data, err)
	}
	*i = Int64(n)
	return nil
}

type envelope struct {
	Status string `json:"status"`
	Error  string `json:"fehler"`
}

type operationsResponse struct {
	Operations []Operation `json:"einsaetze"`
}

type resourcesResponse struct {
	Resources []Resource `json:"freie_einsatzmittel"`
}

// Personnel is a helper assigned to an operation.
type Personnel struct {
	ID   Int64  `json:"id"`
	Name string `json:"name,omitempty"`
}

// Operation is an "Einsatz" as returned by the EFS API. Raw keeps the wire
// object untouched, including fields this package does not model.
type Operation struct {
	ID        Int64       `json:"id"`
	Start     Int64       `json:"start"`
	End       Int64       `json:"ende"`
	Personnel []Personnel `json:"helfer"`

	Raw json.RawMessage `json:"-"`
}

func (o *Operation) UnmarshalJSON(data []byte) error {
	type plain Operation
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*o = Operation(p)
	o.Raw = append(json.RawMessage(nil), data...)
	return nil
}

func (o Operation) MarshalJSON() ([]byte, error) {
	if len(o.Raw) > 0 {
		return o.Raw, nil
	}
	type plain Operation
	return json.Marshal(plain(o))
}

// Resource is an "Einsatzmittel" (vehicle or equipment).
type Resource struct {
	ID   Int64  `json:"id"`
	Type string `json:"typ"`
	Name string `json:"name"`

	Raw json.RawMessage `json:"-"`
}

func (r *Resource) UnmarshalJSON(data []byte) error {
	type plain Resource
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = Resource(p)
	r.Raw = append(json.RawMessage(nil), data...)
	return nil
}

func (r Resource) MarshalJSON() ([]byte, error) {
	if len(r.Raw) > 0 {
		return r.Raw, nil
	}
	type plain Resource
	return json.Marshal(plain(r))
}

// OperationDetails is the body of a "geteinsatz" answer without its
// transport fields. Values are kept as sent.
type OperationDetails map[string]json.RawMessage

// envelopeFields are removed from OperationDetails.
var envelopeFields = []string{"status", "apiversion", "timestamp"}

// Operation decodes the details into an Operation.
func (d OperationDetails) Operation() (Operation, error) {
	var op Operation
	data, err := json.Marshal(map[string]json.RawMessage(d))
	if err != nil {
		return op, err
	}
	err = json.Unmarshal(data, &op)
	return op, err
}

// WorkingHours is the time a helper spent on an operation, as expected by
// the "sethelferstunden" action.
type WorkingHours struct {
	ID    Int64 `json:"id"`
	Start Int64 `json:"start"`
	End   Int64 `json:"ende"`
}
