package app

import (
	"github.com/rs/zerolog/log"

	"reviewsync/internal/domain"
)

// Merger reconciles one cycle's adapter yields with each other and with
// the persisted set.
type Merger struct {
	priority domain.SourcePriority
	floor    int
}

func NewMerger(p domain.SourcePriority, ratingFloor int) *Merger {
	if len(p) == 0 {
		p = domain.DefaultPriority()
	}
	return &Merger{priority: p, floor: ratingFloor}
}

// Batch applies the rating floor, drops repeated identities (first seen
// wins) and keeps only the highest-priority copy of each content key.
// The surviving copy takes the position where its content key first
// appeared.
func (m *Merger) Batch(in []domain.Review) []domain.Review {
	seen := make(map[string]bool, len(in))
	byContent := make(map[string]int, len(in)) // content key -> index in out
	out := make([]domain.Review, 0, len(in))
	var belowFloor, dupes, downgraded int

	for _, r := range in {
		if r.Rating < m.floor {
			belowFloor++
			continue
		}
		uk := r.UniqueKey()
		if seen[uk] {
			dupes++
			continue
		}
		seen[uk] = true

		ck := r.ContentKey()
		if i, ok := byContent[ck]; ok {
			if m.priority.Outranks(r.Source, out[i].Source) {
				out[i] = r
			}
			downgraded++
			continue
		}
		byContent[ck] = len(out)
		out = append(out, r)
	}

	if belowFloor+dupes+downgraded > 0 {
		log.Debug().Int("in", len(in)).Int("out", len(out)).Int("below_floor", belowFloor).
			Int("duplicates", dupes).Int("content_collisions", downgraded).Msg("batch merged")
	}
	return out
}

// Delta merges a fetched batch against persisted rows:
//   - a content key already stored at equal or higher priority drops the new copy
//   - a new copy that strictly outranks every stored copy retires them all
//   - a stored identity whose content changed is retired and re-inserted
func (m *Merger) Delta(batch, persisted []domain.Review) (toInsert []domain.Review, toRetire []int64) {
	byUnique := make(map[string]domain.Review, len(persisted))
	byContent := make(map[string][]domain.Review, len(persisted))
	for _, p := range persisted {
		byUnique[p.UniqueKey()] = p
		ck := p.ContentKey()
		byContent[ck] = append(byContent[ck], p)
	}
	retired := map[int64]bool{}
	retire := func(id int64) {
		if !retired[id] {
			retired[id] = true
			toRetire = append(toRetire, id)
		}
	}

	for _, c := range m.Batch(batch) {
		ck := c.ContentKey()
		if p, ok := byUnique[c.UniqueKey()]; ok && !retired[p.ID] {
			if p.ContentKey() == ck {
				continue
			}
			// edited upstream: the stored copy is stale
			retire(p.ID)
		}

		drop := false
		var losers []int64
		for _, p := range byContent[ck] {
			if retired[p.ID] {
				continue
			}
			if !m.priority.Outranks(c.Source, p.Source) {
				drop = true
				break
			}
			losers = append(losers, p.ID)
		}
		if drop {
			continue
		}
		for _, id := range losers {
			retire(id)
		}
		toInsert = append(toInsert, c)
	}
	return toInsert, toRetire
}
