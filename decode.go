package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ResponseModel is a typed shape a response body can be decoded into.
// Implementations use pointer receivers and populate themselves from the decoded JSON object,
// returning an error when a required field is missing or has the wrong type.
//
// Example:
//
//	type Variable struct {
//	    Hash  string
//	    Key   string
//	    Value string
//	}
//
//	func (v *Variable) FromResponseData(data map[string]any) error {
//	    hash, ok := data["hash"].(string)
//	    if !ok {
//	        return errors.New("missing hash")
//	    }
//	    ...
//	}
type ResponseModel interface {
	FromResponseData(data map[string]any) error
}

// responseModelPtr lets the generic helpers allocate a T and call FromResponseData on *T.
type responseModelPtr[T any] interface {
	*T
	ResponseModel
}

// SendRequestAndMapResponse sends req and decodes the response body into a T.
//
// Example:
//
//	variable, err := vault.SendRequestAndMapResponse[Variable](ctx, client, req)
func SendRequestAndMapResponse[T any, PT responseModelPtr[T]](ctx context.Context, c *Client, req *Request) (*T, error) {
	resp, sendErr := c.send(ctx, req)
	if sendErr != nil {
		return nil, sendErr
	}

	body, err := decodeJSON(resp.Body)
	if err != nil {
		return nil, newDecodeClientError(err)
	}

	data, ok := body.(map[string]any)
	if !ok {
		return nil, newMappingClientError(&MappingError{Index: -1, Err: unexpectedShape("an object", body)})
	}

	model, err := buildModel[T, PT](data)
	if err != nil {
		return nil, newMappingClientError(&MappingError{Index: -1, Err: err})
	}
	return model, nil
}

// SendRequestAndMapListResponse sends req and decodes the response body, a JSON array
// of objects, into a slice of T. Elements are built independently and the first one
// that fails aborts the whole call.
func SendRequestAndMapListResponse[T any, PT responseModelPtr[T]](ctx context.Context, c *Client, req *Request) ([]*T, error) {
	resp, sendErr := c.send(ctx, req)
	if sendErr != nil {
		return nil, sendErr
	}

	body, err := decodeJSON(resp.Body)
	if err != nil {
		return nil, newDecodeClientError(err)
	}

	items, ok := body.([]any)
	if !ok {
		return nil, newMappingClientError(&MappingError{Index: -1, Err: unexpectedShape("an array", body)})
	}

	models := make([]*T, 0, len(items))
	for i, item := range items {
		data, ok := item.(map[string]any)
		if !ok {
			return nil, newMappingClientError(&MappingError{Index: i, Err: unexpectedShape("an object", item)})
		}
		model, err := buildModel[T, PT](data)
		if err != nil {
			return nil, newMappingClientError(&MappingError{Index: i, Err: err})
		}
		models = append(models, model)
	}
	return models, nil
}

func buildModel[T any, PT responseModelPtr[T]](data map[string]any) (model *T, err error) {
	// a model that panics on unexpected data is a mapping failure, not a crash
	defer func() {
		if r := recover(); r != nil {
			model, err = nil, fmt.Errorf("panic while mapping response: %v", r)
		}
	}()

	model = new(T)
	if err := PT(model).FromResponseData(data); err != nil {
		return nil, err
	}
	return model, nil
}

func newDecodeClientError(err error) *ClientError {
	return newClientError("Response is not a valid JSON: "+err.Error(), 0, &DecodeError{Err: err})
}

func newMappingClientError(err *MappingError) *ClientError {
	return newClientError("Failed to map response data: "+err.Error(), 0, err)
}

func unexpectedShape(want string, got any) error {
	return fmt.Errorf("expected %s, got %s", want, jsonKind(got))
}

// jsonKind names the JSON type of a value produced by decodeJSON.
func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "an object"
	case []any:
		return "an array"
	case string:
		return "a string"
	case json.Number:
		return "a number"
	case bool:
		return "a boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// decodeObject decodes body as a single JSON object.
func decodeObject(body []byte) (map[string]any, error) {
	v, err := decodeJSON(body)
	if err != nil {
		return nil, err
	}
	data, ok := v.(map[string]any)
	if !ok {
		return nil, unexpectedShape("an object", v)
	}
	return data, nil
}

// decodeJSON parses body as exactly one JSON value. Its errors are encoding errors only;
// the shape of the value is left to the caller.
func decodeJSON(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty response body")
		}
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON value")
	}
	return v, nil
}
