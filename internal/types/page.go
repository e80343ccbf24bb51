package types

import "math"

// Default paging values used when the caller sends nothing usable.
const (
	DefaultPageNum  = 1
	DefaultPageSize = 10

	// MaxPageSize bounds how many records one page can ask for.
	MaxPageSize = 100
)

// PageInfo describes one page of a ranked listing. It is never persisted;
// every request builds a fresh one with NewPageInfo and fills Records.
type PageInfo[T any] struct {
	PageNum    int   `json:"pageNum"`
	PageSize   int   `json:"pageSize"`
	TotalCount int64 `json:"totalCount"`
	StartIndex int   `json:"startIndex"`
	EndIndex   int   `json:"endIndex"`
	TotalPages int   `json:"totalPages"`
	PrevPage   int   `json:"prevPage"`
	NextPage   int   `json:"nextPage"`
	Records    []T   `json:"records"`
}

// NewPageInfo normalises the requested page and computes the offsets and
// navigation numbers for totalCount items. A pageNum or pageSize of zero
// (or less) means "not given" and falls back to the defaults. pageSize is
// capped at MaxPageSize, and pageNum is capped at the last page whose
// offsets fit in an int, which is always past the end of any real listing.
//
// When totalCount is 0, TotalPages is 0 and NextPage is min(pageNum+1, 0),
// which is not a real page. Callers must not treat NextPage as valid on an
// empty listing.
func NewPageInfo[T any](pageNum, pageSize int, totalCount int64) PageInfo[T] {
	if pageNum <= 0 {
		pageNum = DefaultPageNum
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	pageSize = min(pageSize, MaxPageSize)
	if lastNum := (math.MaxInt - pageSize) / pageSize; pageNum > lastNum {
		pageNum = lastNum
	}

	start := (pageNum - 1) * pageSize

	totalPages := int(totalCount / int64(pageSize))
	if totalCount%int64(pageSize) != 0 {
		totalPages++
	}

	return PageInfo[T]{
		PageNum:    pageNum,
		PageSize:   pageSize,
		TotalCount: totalCount,
		StartIndex: start,
		EndIndex:   start + pageSize - 1,
		TotalPages: totalPages,
		PrevPage:   max(pageNum-1, 1),
		NextPage:   min(pageNum+1, totalPages),
		Records:    make([]T, 0),
	}
}
