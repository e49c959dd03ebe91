package settings

import (
	"reflect"
	"strings"
)

// Equal compares every user-editable field, nested records included.
func Equal(a, b Values) bool {
	return a == b
}

// Diff lists the JSON paths (e.g. "qwen.refAudioPath") whose values differ.
func Diff(a, b Values) []string {
	var changed []string

	diffStruct(reflect.ValueOf(a), reflect.ValueOf(b), "", &changed)

	return changed
}

func diffStruct(a, b reflect.Value, prefix string, changed *[]string) {
	structType := a.Type()

	for index := range structType.NumField() {
		field := structType.Field(index)
		name := strings.Split(field.Tag.Get("json"), ",")[0]
		if name == "" {
			name = field.Name
		}

		path := prefix + name
		left := a.Field(index)
		right := b.Field(index)

		if left.Kind() == reflect.Struct {
			diffStruct(left, right, path+".", changed)

			continue
		}

		if !left.Equal(right) {
			*changed = append(*changed, path)
		}
	}
}
