// internal/models/common.go
package models

// Enums
type PipelineStage string

const (
	StageCrawled    PipelineStage = "crawled"
	StageTranslated PipelineStage = "translated"
	StageMatched    PipelineStage = "matched"
	StageFailed     PipelineStage = "failed"
)

var stageRank = map[PipelineStage]int{
	StageCrawled:    0,
	StageTranslated: 1,
	StageMatched:    2,
}

func (s PipelineStage) Valid() bool {
	_, ok := stageRank[s]
	return ok || s == StageFailed
}

// CanAdvanceTo reports whether next is a forward move (or a move into
// failed). Leaving failed is only possible through an explicit reset.
func (s PipelineStage) CanAdvanceTo(next PipelineStage) bool {
	if next == StageFailed {
		return s != StageFailed
	}
	from, ok := stageRank[s]
	if !ok {
		return false
	}
	to, ok := stageRank[next]
	return ok && to >= from
}

type MatchingStatus string

const (
	MatchingPending  MatchingStatus = "pending"
	MatchingSuccess  MatchingStatus = "success"
	MatchingNotFound MatchingStatus = "not_found"
	MatchingError    MatchingStatus = "error"
)

func (s MatchingStatus) Valid() bool {
	switch s {
	case MatchingPending, MatchingSuccess, MatchingNotFound, MatchingError:
		return true
	}
	return false
}

type PriceType string

const (
	PriceTypeCoupang PriceType = "coupang"
	PriceTypeIHerb   PriceType = "iherb"
)

type ErrorStage string

const (
	ErrorStageCrawl     ErrorStage = "crawl"
	ErrorStageTranslate ErrorStage = "translate"
	ErrorStageMatch     ErrorStage = "match"
)

type Platform string

const (
	PlatformCoupang Platform = "coupang"
	PlatformIHerb   Platform = "iherb"
)
