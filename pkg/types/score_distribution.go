package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
)

// ScoreDistribution counts ratings per star value ("1".."5") and is persisted as JSONB.
type ScoreDistribution map[string]int

// NewScoreDistribution returns a histogram with every star value present.
func NewScoreDistribution(minScore, maxScore int) ScoreDistribution {
	dist := make(ScoreDistribution, maxScore-minScore+1)
	for score := minScore; score <= maxScore; score++ {
		dist[strconv.Itoa(score)] = 0
	}
	return dist
}

// Add records count ratings with the given score.
func (d ScoreDistribution) Add(score, count int) {
	d[strconv.Itoa(score)] += count
}

// Value marshals the histogram into JSON.
func (d ScoreDistribution) Value() (driver.Value, error) {
	if d == nil {
		return "{}", nil
	}
	buf, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(buf), nil
}

// Scan decodes JSONB into the histogram.
func (d *ScoreDistribution) Scan(value interface{}) error {
	if value == nil {
		*d = nil
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("score distribution: unsupported scan type %T", value)
	}

	result := make(ScoreDistribution)
	if err := json.Unmarshal(raw, &result); err != nil {
		return err
	}
	*d = result
	return nil
}
