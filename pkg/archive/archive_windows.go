package archive

// Windows has no numeric owners to resolve.
func lookupUserName(int) string { return "" }

func lookupGroupName(int) string { return "" }
