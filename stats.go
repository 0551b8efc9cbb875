package priochan

// ChannelStats is a point-in-time, read-only snapshot of a channel's
// bookkeeping state, for observability. It costs no more than a handful of
// atomic loads to produce — no channel-wide lock is taken.
//
// LevelDepths is nil for DynamicChannel, whose storage isn't partitioned by
// level; FixedChannel populates it with one entry per level, in level
// order.
type ChannelStats struct {
	Count       int
	DoneWriting bool
	LevelDepths []int
}
