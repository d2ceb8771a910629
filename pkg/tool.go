package pkg

// Contains check slice have val
func Contains[T comparable](slice []T, val T) bool {
	return IndexOf(slice, val) >= 0
}

// IndexOf first position of val in slice, -1 when absent
func IndexOf[T comparable](slice []T, val T) int {
	for i, v := range slice {
		if v == val {
			return i
		}
	}
	return -1
}

// Without remove the first val from slice in place, keep order
func Without[T comparable](slice []T, val T) []T {
	if i := IndexOf(slice, val); i >= 0 {
		return append(slice[:i], slice[i+1:]...)
	}
	return slice
}
