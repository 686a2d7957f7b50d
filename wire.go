package mcp

import (
	"encoding/json"
	"fmt"
)

// itemKind classifies a parsed wire item.
type itemKind int

const (
	itemRequest itemKind = iota
	itemNotification
	itemResponse
	itemParseError
)

// parsedItem is one classified element of an inbound message. For
// itemRequest and itemNotification, method and params are set; for
// itemResponse, result or errObj; for itemParseError, errObj carries the
// protocol error to report.
type parsedItem struct {
	kind   itemKind
	method string
	params any

	id    any // string, json.Number, or nil
	hasID bool

	result any
	errObj *JSONRPCError
}

// parseMessage validates one decoded JSON-RPC payload. It returns the
// ordered items and whether the payload was a batch array. Decode failures
// are passed in as err and reported as a single -32700 item.
func parseMessage(v any, err error) (items []parsedItem, batch bool) {
	if err != nil {
		return []parsedItem{{
			kind:   itemParseError,
			errObj: &JSONRPCError{Code: CodeParseError, Message: "Parse error", Data: err.Error()},
		}}, false
	}

	arr, isArr := v.([]any)
	if !isArr {
		item, ok := parseEnvelope(v, false)
		if !ok {
			return nil, false
		}
		return []parsedItem{item}, false
	}

	if len(arr) == 0 {
		return []parsedItem{{
			kind:   itemParseError,
			errObj: &JSONRPCError{Code: CodeInvalidRequest, Message: "Invalid Request", Data: "empty batch"},
		}}, false
	}

	for _, el := range arr {
		// Element failures that lack a usable id are dropped silently.
		if item, ok := parseEnvelope(el, true); ok {
			items = append(items, item)
		}
	}
	return items, true
}

// parseEnvelope validates a single envelope. The second return value is
// false when the envelope must be dropped without a response.
func parseEnvelope(v any, inBatch bool) (parsedItem, bool) {
	obj, isObj := v.(map[string]any)
	if !isObj {
		if inBatch {
			return parsedItem{}, false
		}
		return parsedItem{
			kind:   itemParseError,
			errObj: &JSONRPCError{Code: CodeInvalidRequest, Message: "Invalid Request", Data: "envelope is not an object"},
		}, true
	}

	id, hasID := obj["id"]
	idUsable := hasID && validRequestID(id)

	invalid := func(detail string) (parsedItem, bool) {
		if inBatch && !idUsable {
			return parsedItem{}, false
		}
		item := parsedItem{
			kind:   itemParseError,
			errObj: &JSONRPCError{Code: CodeInvalidRequest, Message: "Invalid Request", Data: detail},
		}
		if idUsable {
			item.id = id
			item.hasID = true
		}
		return item, true
	}

	if ver, _ := obj["jsonrpc"].(string); ver != JSONRPCVersion {
		return invalid(fmt.Sprintf("jsonrpc must be %q", JSONRPCVersion))
	}

	result, hasResult := obj["result"]
	errVal, hasErr := obj["error"]
	if hasID && (hasResult || hasErr) {
		item := parsedItem{kind: itemResponse, id: id, hasID: true, result: result}
		if hasErr {
			item.errObj = clientErrorObject(errVal)
		}
		return item, true
	}

	if hasID && !validRequestID(id) {
		return invalid("id must be a string, number, or null")
	}

	method, isStr := obj["method"].(string)
	if !isStr || method == "" {
		if !hasID {
			return parsedItem{}, false
		}
		return invalid("method must be a string")
	}

	params, hasParams := obj["params"]
	if hasParams {
		switch params.(type) {
		case map[string]any, []any, nil:
		default:
			if !hasID {
				return parsedItem{}, false
			}
			return invalid("params must be an array or object")
		}
	}

	if hasID {
		return parsedItem{kind: itemRequest, method: method, params: params, id: id, hasID: true}, true
	}
	return parsedItem{kind: itemNotification, method: method, params: params}, true
}

// validRequestID reports whether id is a legal JSON-RPC id value.
func validRequestID(id any) bool {
	switch id.(type) {
	case string, json.Number, nil:
		return true
	default:
		return false
	}
}

// idKey produces a map key for an id. String and numeric ids never collide
// because the key is prefixed by kind.
func idKey(id any) string {
	switch v := id.(type) {
	case string:
		return "s:" + v
	case json.Number:
		return "n:" + v.String()
	case int64:
		return fmt.Sprintf("n:%d", v)
	case float64:
		n, _ := json.Marshal(v)
		return "n:" + string(n)
	case nil:
		return "null"
	default:
		return fmt.Sprintf("?:%v", v)
	}
}

// tokenKey normalizes a progress token for registry lookup.
func tokenKey(token any) string {
	switch v := token.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func clientErrorObject(v any) *JSONRPCError {
	obj, ok := v.(map[string]any)
	if !ok {
		return &JSONRPCError{Code: CodeInternalError, Message: "malformed error object"}
	}
	e := &JSONRPCError{}
	if c, ok := obj["code"].(json.Number); ok {
		if n, err := c.Int64(); err == nil {
			e.Code = int(n)
		}
	}
	e.Message, _ = obj["message"].(string)
	e.Data = obj["data"]
	return e
}
