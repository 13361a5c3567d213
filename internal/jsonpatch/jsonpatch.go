package jsonpatch

import (
	"encoding/json"
	"fmt"

	jp "github.com/evanphx/json-patch/v5"
)

type PatchError struct {
	msg string
}

func (p *PatchError) Error() string {
	return p.msg
}

type Patch = jp.Patch

var opts = jp.ApplyOptions{
	EnsurePathExistsOnAdd:    true, // will create paths
	AllowMissingPathOnRemove: true,
}

// Decode parses an RFC 6902 patch document and rejects the operations Apply
// does not support.
func Decode(bs []byte) (Patch, error) {
	p, err := jp.DecodePatch(bs)
	if err != nil {
		return nil, err
	}
	if err := check(p); err != nil {
		return nil, err
	}
	return p, nil
}

func Apply(p Patch, doc json.RawMessage) (json.RawMessage, error) {
	if err := check(p); err != nil {
		return nil, err
	}
	return p.ApplyWithOptions(doc, &opts)
}

// We only support add/remove/replace
func check(p Patch) error {
	for _, op := range p {
		switch op.Kind() {
		case "replace", "remove", "add": // OK
		default:
			return &PatchError{fmt.Sprintf("unsupported patch operation %q, must be one of \"replace\", \"add\", \"remove\"", op.Kind())}
		}
	}
	return nil
}
