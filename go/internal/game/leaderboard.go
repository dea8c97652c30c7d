package game

import "sort"

// leaderboard keeps the best reaction times of a session, ascending.
type leaderboard struct {
	size  int
	times []int64
}

func newLeaderboard(size int) *leaderboard {
	return &leaderboard{size: size}
}

func (b *leaderboard) insert(ms int64) {
	i := sort.Search(len(b.times), func(i int) bool { return b.times[i] > ms })
	if i >= b.size {
		return
	}
	b.times = append(b.times, 0)
	copy(b.times[i+1:], b.times[i:])
	b.times[i] = ms
	if len(b.times) > b.size {
		b.times = b.times[:b.size]
	}
}

func (b *leaderboard) clear() {
	b.times = nil
}

func (b *leaderboard) entries() []int64 {
	out := make([]int64, len(b.times))
	copy(out, b.times)
	return out
}
