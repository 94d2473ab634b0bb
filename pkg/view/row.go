package view

// RowKind classifies a logical row index.
type RowKind int

const (
	// RowItem is a loaded item.
	RowItem RowKind = iota

	// RowLoading is the status row while more pages are expected.
	RowLoading

	// RowError is the status row after a failed fetch when retry is disabled.
	RowError

	// RowRetry is the status row after a failed fetch when retry is enabled.
	RowRetry

	// RowEmpty is the status row when the first page was empty.
	RowEmpty

	// RowEnd is the status row once all pages are loaded.
	RowEnd

	// RowOutOfRange is any index outside [0, ItemCount()).
	RowOutOfRange
)

// String returns the row kind name.
func (k RowKind) String() string {
	switch k {
	case RowItem:
		return "item"
	case RowLoading:
		return "loading"
	case RowError:
		return "error"
	case RowRetry:
		return "retry"
	case RowEmpty:
		return "empty"
	case RowEnd:
		return "end"
	default:
		return "out_of_range"
	}
}

// IsStatus reports whether the kind is one of the trailing status row kinds.
func (k RowKind) IsStatus() bool {
	return k != RowItem && k != RowOutOfRange
}
