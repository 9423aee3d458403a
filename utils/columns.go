package utils

import (
	"reflect"
)

// ColumnList returns the names of the "db" tags of a struct, in field order
func ColumnList[T any]() []string {
	var zero T
	t := reflect.TypeOf(zero)
	columns := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		columns = append(columns, tag)
	}
	return columns
}
