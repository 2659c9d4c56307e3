package opendata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/turtacn/livecare/pkg/errors"
)

// Item is one result row, kept as the raw field map returned by the service.
type Item map[string]interface{}

// String returns the field as text. Missing and null fields are "".
func (it Item) String(key string) string {
	v, ok := it[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// ItemName returns ITEM_NAME, the field every registry service shares.
func (it Item) ItemName() string { return it.String("ITEM_NAME") }

type envelope struct {
	Header *struct {
		ResultCode string `json:"resultCode"`
		ResultMsg  string `json:"resultMsg"`
	} `json:"header"`
	Body *struct {
		TotalCount json.Number     `json:"totalCount"`
		Items      json.RawMessage `json:"items"`
	} `json:"body"`
}

// decodeItems extracts body.items. The services use several shapes for the
// same field: a JSON array, {"item": [...]}, {"item": {...}}, "" or null.
// All of them are accepted; a missing body.items is treated as no items.
func decodeItems(data []byte) ([]Item, error) {
	var env envelope
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "opendata: malformed response envelope")
	}
	if env.Body == nil {
		return []Item{}, nil
	}
	return decodeItemsField(env.Body.Items)
}

func decodeItemsField(raw json.RawMessage) ([]Item, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte(`""`)) {
		return []Item{}, nil
	}

	switch raw[0] {
	case '[':
		var items []Item
		if err := unmarshalNumbers(raw, &items); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "opendata: malformed items array")
		}
		return compact(items), nil
	case '{':
		var wrapper struct {
			Item json.RawMessage `json:"item"`
		}
		if err := unmarshalNumbers(raw, &wrapper); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "opendata: malformed items object")
		}
		inner := bytes.TrimSpace(wrapper.Item)
		if len(inner) > 0 && inner[0] == '{' {
			var one Item
			if err := unmarshalNumbers(inner, &one); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeSerialization, "opendata: malformed item object")
			}
			return []Item{one}, nil
		}
		return decodeItemsField(inner)
	default:
		return nil, errors.New(errors.ErrCodeSerialization, "opendata: unexpected items shape").
			WithDetail(truncate(string(raw), 64))
	}
}

func unmarshalNumbers(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func compact(items []Item) []Item {
	out := items[:0]
	for _, it := range items {
		if it != nil {
			out = append(out, it)
		}
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
