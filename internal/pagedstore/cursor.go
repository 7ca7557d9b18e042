package pagedstore

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ErrBadCursor reports a continuation cursor that could not be decoded.
// Callers must treat it as an invalid page token supplied by the client,
// never as the end of the result set: swallowing it would silently truncate
// legitimate results.
var ErrBadCursor = errors.New("malformed page cursor")

// cursorValue is the flattened form of a DynamoDB key attribute inside an
// encoded cursor. Exactly one field is set.
type cursorValue struct {
	S *string `json:"s,omitempty"`
	N *string `json:"n,omitempty"`
}

// EncodeCursor serializes a DynamoDB last-evaluated key into an opaque,
// transport-safe token. An empty key encodes to the empty string, meaning
// there are no further pages. Only string and number key attributes are
// supported, which covers every key and index attribute in the table schema.
func EncodeCursor(lastKey map[string]dynamodbtypes.AttributeValue) (string, error) {
	if len(lastKey) == 0 {
		return "", nil
	}

	flat := make(map[string]cursorValue, len(lastKey))

	for name, attr := range lastKey {
		switch v := attr.(type) {
		case *dynamodbtypes.AttributeValueMemberS:
			flat[name] = cursorValue{S: &v.Value}
		case *dynamodbtypes.AttributeValueMemberN:
			flat[name] = cursorValue{N: &v.Value}
		default:
			return "", fmt.Errorf("cannot encode cursor attribute %s of type %T", name, attr)
		}
	}

	raw, err := json.Marshal(flat)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cursor: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeCursor parses a token previously produced by [EncodeCursor] back into
// a DynamoDB exclusive-start key. The empty string decodes to nil (start from
// the beginning). A token that is not valid base64, not valid JSON, or whose
// entries are not well-formed fails with [ErrBadCursor].
func DecodeCursor(token string) (map[string]dynamodbtypes.AttributeValue, error) {
	if token == "" {
		return nil, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCursor, err)
	}

	var flat map[string]cursorValue
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCursor, err)
	}

	if len(flat) == 0 {
		return nil, fmt.Errorf("%w: empty key", ErrBadCursor)
	}

	key := make(map[string]dynamodbtypes.AttributeValue, len(flat))

	for name, v := range flat {
		switch {
		case v.S != nil && v.N == nil:
			key[name] = &dynamodbtypes.AttributeValueMemberS{Value: *v.S}
		case v.N != nil && v.S == nil:
			key[name] = &dynamodbtypes.AttributeValueMemberN{Value: *v.N}
		default:
			return nil, fmt.Errorf("%w: attribute %s must be exactly one of string or number", ErrBadCursor, name)
		}
	}

	return key, nil
}
