package utils

// Map returns a new slice with the values of src transformed by f. A nil src gives a nil result.
func Map[T, U any](src []T, f func(T) U) []U {
	if src == nil {
		return nil
	}
	us := make([]U, len(src))
	for i := range src {
		us[i] = f(src[i])
	}
	return us
}

// MapErr is Map with a fallible transformation, stopping at the first error
func MapErr[T, U any](src []T, f func(T) (U, error)) ([]U, error) {
	if src == nil {
		return nil, nil
	}
	us := make([]U, len(src))
	for i := range src {
		var err error
		us[i], err = f(src[i])
		if err != nil {
			return nil, err
		}
	}
	return us, nil
}
