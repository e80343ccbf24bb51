// Package codec converts a Student to and from the flat string map that
// is stored as a Redis hash (and that arrives as a submitted HTML form).
//
// Encoding is a total function: every field is written, numbers as base-10
// strings. Decoding is the inverse and is forgiving about what is missing
// (missing keys keep their zero value) but strict about what is present:
// a score that is not an integer is a *DecodeError.
package codec

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/aanand-mishra/records-api/internal/types"
)

// Field names inside the hash. They match the redis:"..." struct tags on
// types.Student.
const (
	FieldID          = "id"
	FieldName        = "name"
	FieldBirthday    = "birthday"
	FieldDescription = "description"
	FieldScore       = "score"
)

// Fields lists every hash field in a fixed order.
var Fields = []string{FieldID, FieldName, FieldBirthday, FieldDescription, FieldScore}

// DecodeError reports a field map that could not be turned into a Student.
type DecodeError struct {
	ID  string // value of the "id" key, if any, for logging
	Err error
}

func (e *DecodeError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("decode record: %v", e.Err)
	}
	return fmt.Sprintf("decode record %q: %v", e.ID, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ToFieldMap flattens s into the map written with HSET.
func ToFieldMap(s types.Student) map[string]string {
	return map[string]string{
		FieldID:          s.ID,
		FieldName:        s.Name,
		FieldBirthday:    s.Birthday,
		FieldDescription: s.Description,
		FieldScore:       strconv.Itoa(s.Score),
	}
}

// FromFieldMap builds a Student from a stored hash or a form.
// Unknown keys are ignored.
func FromFieldMap(m map[string]string) (types.Student, error) {
	var s types.Student

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "redis",
		Result:     &s,
		DecodeHook: mapstructure.DecodeHookFuncType(stringToIntHook),
	})
	if err != nil {
		return types.Student{}, err
	}

	if err := dec.Decode(m); err != nil {
		return types.Student{}, &DecodeError{ID: m[FieldID], Err: err}
	}

	return s, nil
}

// stringToIntHook parses base-10 integers and treats an empty string as 0.
// mapstructure's own weak typing uses base 0, which would read "010" as
// octal.
func stringToIntHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Int {
		return data, nil
	}

	str := strings.TrimSpace(data.(string))
	if str == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(str)
	if err != nil {
		return nil, fmt.Errorf("%q is not an integer", str)
	}
	return n, nil
}
