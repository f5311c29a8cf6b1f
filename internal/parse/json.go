package parse

import (
	"bytes"
	"io"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"

	"github.com/sells-group/feedback-cli/internal/payload"
)

// DecodeJSON decodes a complete JSON document into a payload value, keeping
// object key order and full number precision.
func DecodeJSON(text string) (payload.Value, error) {
	if !validJSON([]byte(text)) {
		return payload.Null(), eris.New("json: invalid document")
	}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return payload.Null(), err
	}
	if _, err := dec.Token(); err != io.EOF {
		return payload.Null(), eris.New("json: trailing data after document")
	}
	return v, nil
}

// validJSON reports whether data is one JSON document. Numbers outside the
// float64 range are still valid syntax.
func validJSON(data []byte) bool {
	if json.Valid(data) {
		return true
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return false
	}
	_, err := dec.Token()
	return err == io.EOF
}

func decodeValue(dec *json.Decoder) (payload.Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return payload.Null(), eris.Wrap(err, "json: read token")
	}
	return decodeToken(dec, tok)
}

func decodeToken(dec *json.Decoder, tok any) (payload.Value, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return decodeObject(dec)
		case '[':
			return decodeArray(dec)
		default:
			return payload.Null(), eris.Errorf("json: unexpected delimiter %q", rune(t))
		}
	case string:
		return payload.String(t), nil
	case bool:
		return payload.Bool(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			// Out of float64 range: keep the literal.
			return payload.String(string(t)), nil
		}
		return payload.Number(f), nil
	case float64:
		return payload.Number(t), nil
	case nil:
		return payload.Null(), nil
	default:
		return payload.Null(), eris.Errorf("json: unexpected token %v", tok)
	}
}

func decodeObject(dec *json.Decoder) (payload.Value, error) {
	rec := payload.NewRecord()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return payload.Null(), eris.Wrap(err, "json: read object key")
		}
		key, ok := keyTok.(string)
		if !ok {
			return payload.Null(), eris.Errorf("json: object key is %T", keyTok)
		}
		v, err := decodeValue(dec)
		if err != nil {
			return payload.Null(), err
		}
		rec.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return payload.Null(), eris.Wrap(err, "json: read object end")
	}
	return payload.FromRecord(rec), nil
}

func decodeArray(dec *json.Decoder) (payload.Value, error) {
	items := []payload.Value{}
	for dec.More() {
		v, err := decodeValue(dec)
		if err != nil {
			return payload.Null(), err
		}
		items = append(items, v)
	}
	if _, err := dec.Token(); err != nil {
		return payload.Null(), eris.Wrap(err, "json: read array end")
	}
	return payload.List(items), nil
}
