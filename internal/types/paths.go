package types

// ArrayPathInfo is the result of parsing a path against the single
// ".$." placeholder convention.
type ArrayPathInfo struct {
	ArrayPath    string // prefix before the first placeholder
	RelativePath string // suffix after the first placeholder
	IsArrayPath  bool
}

// MultiArrayPathInfo describes every $ placeholder in a path.
type MultiArrayPathInfo struct {
	PlaceholderCount     int
	Segments             []string // as produced by paths.Split
	PlaceholderPositions []int    // zero-based indexes into Segments
}

// ArrayPlaceholder is the path segment standing in for any array index.
// A literal field named "$" cannot be told apart from it.
const ArrayPlaceholder = "$"
