package models

const (
	SourceTypeIndustryFeed  = "INDUSTRY_FEED"
	SourceTypeCarrier       = "CARRIER"
	SourceTypeCustoms       = "CUSTOMS"
	SourceTypeGroundHandler = "GROUND_HANDLER"
	SourceTypeManual        = "MANUAL"
)

// Source is reference data identifying where an event came from. Priority
// is lower-is-higher-precedence: when two sources supply the same logical
// event in the same time bucket, the lower-priority-number source wins and
// the other is treated as a duplicate. Priority lives in storage, not
// in pipeline code.
type Source struct {
	ID       uint64
	Name     string
	Type     string
	Priority int32
}
