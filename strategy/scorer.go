package strategy

import (
	"fmt"
	"sort"

	"edgesim/config"
	"edgesim/market"
	"edgesim/model"
)

// Scorer attaches model probabilities and expected value to candidates and
// ranks them. One model call per bar covers all of that bar's candidates: the
// probability pair is directional, not per-setup.
type Scorer struct {
	cfg       config.ScoringConfig
	predictor model.Predictor
	adjuster  *model.ShrinkageAdjuster
}

// NewScorer builds a Scorer around a predictor. The shrinkage adjuster is
// shared with the settlement path, which feeds it trade outcomes.
func NewScorer(cfg config.ScoringConfig, p model.Predictor, adj *model.ShrinkageAdjuster) *Scorer {
	return &Scorer{cfg: cfg, predictor: p, adjuster: adj}
}

// Score evaluates candidates at one snapshot. Candidates whose adjusted win
// probability falls outside the configured band are dropped. A malformed
// probability pair aborts the run; it is a model bug, not a data condition.
func (s *Scorer) Score(snap market.Snapshot, cands []Candidate) ([]Scored, error) {
	if len(cands) == 0 {
		return nil, nil
	}
	down, up, err := s.predictor.Predict(snap)
	if err != nil {
		return nil, fmt.Errorf("predict at %s: %w", snap.Timestamp, err)
	}

	var out []Scored
	for _, c := range cands {
		p := up
		if c.Side == Short {
			p = down
		}
		adj, confidence := s.adjuster.Adjust(p)
		if adj < s.cfg.MinProb || adj > s.cfg.MaxProb {
			continue
		}
		out = append(out, Scored{
			Candidate:  c,
			ProbWin:    adj,
			EVR:        adj*c.RR() - (1 - adj),
			Confidence: confidence,
		})
	}
	return out, nil
}

// Rank orders scored candidates best-first and keeps the top K. The sort is
// stable over generation order, so equal scores preserve family precedence.
func (s *Scorer) Rank(scored []Scored) []Scored {
	out := make([]Scored, len(scored))
	copy(out, scored)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].EVR != out[j].EVR {
			return out[i].EVR > out[j].EVR
		}
		if out[i].ProbWin != out[j].ProbWin {
			return out[i].ProbWin > out[j].ProbWin
		}
		return out[i].Confidence > out[j].Confidence
	})
	if s.cfg.TopK > 0 && len(out) > s.cfg.TopK {
		out = out[:s.cfg.TopK]
	}
	return out
}
